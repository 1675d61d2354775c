// Package textutil provides the name handling shared by reconciliation,
// storage, and enrichment.
//
// The primary use cases are:
//   - Case folding titles so "HALF-LIFE 2" and "Half-Life 2" group together
//   - Building comparable keys for install paths
//   - Scoring how closely a provider's title matches a catalog name
//
// Folding uses Unicode case folding from golang.org/x/text rather than
// strings.ToLower so titles with non-ASCII letters compare consistently.
package textutil

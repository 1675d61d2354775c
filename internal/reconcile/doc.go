// Package reconcile merges the candidates of every detector into one list
// with at most one record per case-insensitive name.
//
// The inventory scan runs first and forms the baseline. Each baseline record
// with an install path is offered to the platform detectors in precedence
// order; the first detector that claims the path replaces the record with its
// own view. Platform candidates not claimed that way are appended, then
// duplicates by name are collapsed: a platform record beats an inventory
// record, a categorized record beats an uncategorized one, and otherwise the
// first one seen wins. When duplicates have different install paths, only the
// representative's path survives.
package reconcile

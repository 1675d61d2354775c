// Package main implements the softdex command-line interface.
//
// The CLI works directly against the catalog and installation databases for
// scans, listings, enrichment and catalog maintenance, and talks to a running
// softdexd instance over its HTTP API for status and remote scans. The
// daemon itself is started with `softdex daemon`.
package main

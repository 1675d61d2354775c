// Package sqlitedb opens the SQLite databases backing the reference catalog
// and the local installation store.
//
// Both stores share the same connection setup (WAL, foreign keys, busy
// timeout), the same schema_version bookkeeping, and the same timestamp
// encoding. Timestamps are written as fixed-width UTC strings so that SQL
// comparisons and ORDER BY agree with chronological order.
package sqlitedb

// Package catalog persists the reference catalog: one canonical row per
// software title, keyed by (source, external id) when the platform supplies an
// id and by (name, source) otherwise.
//
// FindOrCreate is the only write path used during detection. The enrichment
// scheduler reads candidates through GetUnenrichedEntries and writes back with
// RecordEnrichmentAttempt and ApplyEnrichment. The catalog file may be shared
// between machines, so nothing machine-specific is stored here.
package catalog

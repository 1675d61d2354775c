// Package enrich runs the bounded enrichment loop that attaches external
// metadata to reference catalog entries.
//
// Each loop pulls batches of entries that are stale and not attempted today,
// stamps every attempted entry before calling the provider chain, and stores
// attributes only for titles the chain found. The attempt stamp is what
// enforces the daily limit, so failed and cancelled lookups are never retried
// before the next UTC day. A fixed delay separates batches and the loop stops
// when a batch comes back empty or the batch budget is spent.
//
// Scheduler.Run executes a loop synchronously; Scheduler.Trigger starts one in
// the background for callers such as a detection pass that must not wait.
package enrich

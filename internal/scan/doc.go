// Package scan runs detection passes: reconcile detector output, resolve each
// representative in the reference catalog, upsert local installations in a
// single batch and sweep installations that have not been observed within the
// stale window.
//
// Passes are serialized in-process by a mutex and across processes by an
// optional file lock. A successful pass can hand off to a background
// enrichment loop.
package scan

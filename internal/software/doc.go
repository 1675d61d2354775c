// Package software defines the records that flow through detection,
// reconciliation, storage, and enrichment.
//
// A Candidate is what a single detector saw on this machine during one pass;
// it is never stored. A ReferenceEntry is the canonical, shareable identity of
// a title and carries enrichment metadata. A LocalInstallation is a
// machine-specific fact pointing at exactly one ReferenceEntry. MergedView is
// the read-only join of the two handed to display consumers.
//
// Enrichment progress is not stored as a field: StateOf derives it
// from the two enrichment timestamps and the current time.
package software

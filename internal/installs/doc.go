// Package installs persists machine-specific installation facts. Each row
// points at one reference catalog entry through ReferenceID.
//
// The catalog lives in a separate, shareable database file, so the foreign
// key cannot be declared in SQL. Writers resolve the reference through the
// catalog before upserting, and readers treat a dangling ReferenceID as an
// integrity condition to skip rather than an error.
package installs

// Package api defines the wire-format types of the daemon HTTP API and a small
// client used by the CLI to reach a running daemon.
//
// Software listings pass software.MergedView through unchanged and detection
// passes are reported as scan.Summary, so API consumers see the same field
// names as `softdex list --json` and `softdex scan --json`. Timestamps use
// RFC3339 with milliseconds.
package api

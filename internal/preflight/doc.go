// Package preflight provides readiness checks for the paths, databases,
// platform roots and network endpoints softdex depends on.
//
// The CLI "softdex doctor" command runs RunAll and renders every Result.
// Missing platforms are reported but never fail a run; a machine without
// Epic installed is a normal machine.
package preflight

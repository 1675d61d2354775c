// Package daemon runs softdex as a long-lived process.
//
// A daemon holds a flock-based single-instance lock per data directory and
// supervises its components with an errgroup: the scan loop (startup pass,
// periodic passes, debounced rescans), the HTTP API, the udev netlink monitor
// that notices removable libraries on Linux, and an fsnotify watcher over the
// platform manifest folders.
//
// Keep detection and persistence logic out of this package; the daemon only
// decides when a pass runs and exposes the results.
package daemon

// Package detect discovers installed software on this machine.
//
// Every source implements Detector. Platform detectors (Steam, Epic, GOG)
// read their launcher's on-disk metadata and can claim an arbitrary install
// path through ClassifyPath. The inventory detector enumerates every
// installed program the OS knows about (freedesktop entries on Unix, the
// Uninstall registry keys on Windows) without platform knowledge and never
// classifies paths.
//
// Detectors skip malformed items and log them; only whole-platform failures
// are returned as errors. Registry holds the static, ordered detector list
// the reconciler walks.
package detect

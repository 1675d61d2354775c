package textutil

import (
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/text/cases"
)

// Fold returns the case-folded, whitespace-trimmed form of s. Two names that
// differ only by case fold to the same string.
func Fold(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return cases.Fold().String(s)
}

// EqualFold reports whether a and b are equal after folding.
func EqualFold(a, b string) bool {
	return Fold(a) == Fold(b)
}

// CompareFolded orders two strings by their folded form using ordinal
// comparison, falling back to the raw strings so the order is total.
func CompareFolded(a, b string) int {
	if c := strings.Compare(Fold(a), Fold(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// IsBlank reports whether s is empty or whitespace only.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// foldPathCase is set where the default filesystems ignore case.
var foldPathCase = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

// PathKey builds a comparison key for an install path: cleaned, separators
// unified, trailing separator dropped. Case is folded on Windows and macOS,
// and for drive-letter or backslash paths on any OS; elsewhere /opt/Foo and
// /opt/foo stay distinct.
func PathKey(path string) string {
	return pathKey(path, foldPathCase)
}

func pathKey(path string, foldCase bool) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if isWindowsPath(path) {
		foldCase = true
	}
	path = strings.ReplaceAll(path, `\`, "/")
	path = filepath.ToSlash(filepath.Clean(filepath.FromSlash(path)))
	path = strings.TrimRight(path, "/")
	if path == "" {
		path = "/"
	}
	if foldCase {
		return Fold(path)
	}
	return path
}

// isWindowsPath reports a drive-letter or backslash spelling, as written by
// Windows launchers and the uninstall registry.
func isWindowsPath(path string) bool {
	if strings.Contains(path, `\`) {
		return true
	}
	if len(path) >= 2 && path[1] == ':' {
		c := path[0] | 0x20
		return c >= 'a' && c <= 'z'
	}
	return false
}

// PathWithin reports whether path equals root or lies beneath it, comparing
// with PathKey semantics.
func PathWithin(path, root string) bool {
	p, r := PathKey(path), PathKey(root)
	if p == "" || r == "" {
		return false
	}
	if p == r {
		return true
	}
	if r == "/" {
		return strings.HasPrefix(p, "/")
	}
	return strings.HasPrefix(p, r+"/")
}

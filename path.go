package mimic

import "strings"

// Separator is the path separator used by every tree
const Separator = "/"

// NormalizeDirPath appends a trailing separator to a non-empty path that
// does not already end with one. The empty path is returned unchanged.
func NormalizeDirPath(path string) string {
	if path != "" && !strings.HasSuffix(path, Separator) {
		return path + Separator
	}
	return path
}

// IsRoot reports whether path names the root directory
func IsRoot(path string) bool {
	return strings.Trim(path, Separator) == ""
}

// CleanPath strips leading and trailing separators so "/a/b/" and "a/b"
// address the same entry.
func CleanPath(path string) string {
	return strings.Trim(path, Separator)
}

// SplitPath returns the non-empty segments of path.
func SplitPath(path string) []string {
	cleaned := CleanPath(path)
	if cleaned == "" {
		return nil
	}
	parts := strings.Split(cleaned, Separator)
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

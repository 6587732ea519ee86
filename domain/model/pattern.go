package model

import "path/filepath"

// MatchAny reports whether the basename of path matches one of the glob
// patterns. No patterns matches everything.
func MatchAny(patterns []string, path string) bool {
	if len(patterns) == 0 {
		return true
	}
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

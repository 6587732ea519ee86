package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// fixed width, lexicographically sortable, millisecond resolution
const timeLayout = "20060102T150405.000Z"

const tempPrefix = ".tmp-"

// FormatTime renders t in the layout used by version and change file names
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime is the inverse of FormatTime
func ParseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// Truncate drops sub-millisecond precision so that stored times match file names
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// writeFileAtomic writes data to a temporary file in dir, then renames it onto
// target, so readers never observe a partially written file.
func writeFileAtomic(target string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(target)
	tmp := filepath.Join(dir, tempPrefix+uuid.NewString())

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}

	return nil
}

func isTempName(name string) bool {
	return strings.HasPrefix(name, tempPrefix)
}

// within reports whether path is inside root
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

package storage

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// manifestName is the per-path version index. Version file names start with
// a digit, so the leading dot can never collide with a version.
const manifestName = ".manifest"

// manifestEntry is one line of a manifest: "<capture time>\t<version file name>"
type manifestEntry struct {
	Time time.Time
	Name string
}

func (e manifestEntry) line() string {
	return FormatTime(e.Time) + "\t" + e.Name + "\n"
}

// manifest is the append-only, ordered index of one versions directory
type manifest struct {
	dir string
}

func (m manifest) path() string {
	return filepath.Join(m.dir, manifestName)
}

// entries loads the index, rebuilding it from the directory listing when the
// index file is missing. Malformed lines (a torn trailing append) are skipped.
func (m manifest) entries() ([]manifestEntry, error) {
	data, err := os.ReadFile(m.path())
	if errors.Is(err, os.ErrNotExist) {
		return m.rebuild()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var entries []manifestEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		timeStr, name, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		t, err := ParseTime(timeStr)
		if err != nil {
			continue
		}
		entries = append(entries, manifestEntry{Time: t, Name: name})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan manifest: %w", err)
	}

	return entries, nil
}

func (m manifest) contains(name string) (bool, error) {
	entries, err := m.entries()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// append adds one entry unless the version is already indexed
func (m manifest) append(entry manifestEntry) error {
	exists, err := m.contains(entry.Name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	f, err := os.OpenFile(m.path(), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	line := entry.line()
	// terminate a torn trailing line so the new entry stays readable
	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err == nil && last[0] != '\n' {
			line = "\n" + line
		}
	}

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to append manifest: %w", err)
	}
	return nil
}

// remove rewrites the index without the named version
func (m manifest) remove(name string) (remaining int, err error) {
	entries, err := m.entries()
	if err != nil {
		return 0, err
	}

	kept := entries[:0]
	for _, e := range entries {
		if e.Name != name {
			kept = append(kept, e)
		}
	}

	if err := m.write(kept); err != nil {
		return 0, err
	}
	return len(kept), nil
}

func (m manifest) write(entries []manifestEntry) error {
	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(e.line())
	}
	return writeFileAtomic(m.path(), buf.Bytes(), 0644)
}

// rebuild reconstructs the index from version file names, ordered by capture time.
// A missing directory yields no entries.
func (m manifest) rebuild() ([]manifestEntry, error) {
	dirEntries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list versions dir: %w", err)
	}

	var entries []manifestEntry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		if t, ok := parseVersionName(de.Name()); ok {
			entries = append(entries, manifestEntry{Time: t, Name: de.Name()})
		}
	}

	if len(entries) == 0 {
		return nil, nil
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.Before(entries[j].Time)
	})

	if err := m.write(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// parseVersionName extracts the capture time from "<time>_<basename>"
func parseVersionName(name string) (time.Time, bool) {
	if strings.HasPrefix(name, ".") {
		return time.Time{}, false
	}
	timeStr, _, ok := strings.Cut(name, "_")
	if !ok {
		return time.Time{}, false
	}
	t, err := ParseTime(timeStr)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ajkula/plistener/domain/model"
	"github.com/ajkula/plistener/domain/port/outbound"
)

// implements VersionStore on the local filesystem:
// <dataDir>/<system path>/<capture time>_<basename>, indexed by a manifest
type FileVersionStore struct {
	dataDir string
	logger  outbound.Logger
	mu      sync.RWMutex
}

// creates a version store rooted at dataDir
func NewFileVersionStore(dataDir string, logger outbound.Logger) (*FileVersionStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &FileVersionStore{
		dataDir: dataDir,
		logger:  logger,
	}, nil
}

// returns the directory holding every version of systemPath
func (s *FileVersionStore) VersionsDir(systemPath string) string {
	return filepath.Join(s.dataDir, filepath.Clean(systemPath))
}

func (s *FileVersionStore) VersionPath(t time.Time, systemPath string) string {
	name := FormatTime(t) + "_" + filepath.Base(systemPath)
	return filepath.Join(s.VersionsDir(systemPath), name)
}

func (s *FileVersionStore) CaptureTime(systemPath string) (time.Time, error) {
	info, err := os.Stat(systemPath)
	if err != nil {
		return time.Time{}, &model.AccessError{Path: systemPath, Err: err}
	}
	return Truncate(info.ModTime()), nil
}

// copies the current bytes of systemPath into its versions directory, named
// after the file's modification time. Re-recording an unchanged file overwrites
// the same version with the same bytes.
func (s *FileVersionStore) RecordVersion(systemPath string) (*model.Version, error) {
	data, modTime, err := readSource(systemPath)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.VersionsDir(systemPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create versions directory: %w", err)
	}

	captured := Truncate(modTime)
	versionPath := s.VersionPath(captured, systemPath)

	if err := writeFileAtomic(versionPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to store version of %s: %w", systemPath, err)
	}

	entry := manifestEntry{Time: captured, Name: filepath.Base(versionPath)}
	if err := (manifest{dir: dir}).append(entry); err != nil {
		return nil, fmt.Errorf("failed to index version of %s: %w", systemPath, err)
	}

	s.logger.Debug("Version recorded", "path", systemPath, "version", versionPath, "bytes", len(data))

	return &model.Version{
		SystemPath: systemPath,
		Path:       versionPath,
		Time:       captured,
	}, nil
}

// reads the source file and its modification time from the same open handle
func readSource(systemPath string) ([]byte, time.Time, error) {
	f, err := os.Open(systemPath)
	if err != nil {
		return nil, time.Time{}, &model.AccessError{Path: systemPath, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, time.Time{}, &model.AccessError{Path: systemPath, Err: err}
	}
	if info.IsDir() {
		return nil, time.Time{}, &model.AccessError{Path: systemPath, Err: fmt.Errorf("is a directory")}
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, time.Time{}, &model.AccessError{Path: systemPath, Err: err}
	}

	return data, info.ModTime(), nil
}

func (s *FileVersionStore) Last(systemPath string) (*model.Version, error) {
	versions, err := s.Versions(systemPath)
	if err != nil {
		return nil, err
	}

	var last *model.Version
	for _, v := range versions {
		if last == nil || v.Time.After(last.Time) {
			last = v
		}
	}
	return last, nil
}

func (s *FileVersionStore) Versions(systemPath string) ([]*model.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := s.VersionsDir(systemPath)
	entries, err := (manifest{dir: dir}).entries()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(entries))
	versions := make([]*model.Version, 0, len(entries))
	for _, e := range entries {
		if seen[e.Name] {
			continue
		}
		seen[e.Name] = true

		versionPath := filepath.Join(dir, e.Name)
		if _, err := os.Stat(versionPath); err != nil {
			s.logger.Warn("Indexed version missing on disk", "path", systemPath, "version", versionPath, "error", err)
			continue
		}

		versions = append(versions, &model.Version{
			SystemPath: systemPath,
			Path:       versionPath,
			Time:       e.Time,
		})
	}

	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].Time.Before(versions[j].Time)
	})

	return versions, nil
}

// resolves a version file under dataDir back to its system path and capture time
func (s *FileVersionStore) Lookup(versionPath string) (*model.Version, error) {
	versionPath = filepath.Clean(versionPath)
	if !within(s.dataDir, versionPath) {
		return nil, fmt.Errorf("%w: %s is outside the data directory", model.ErrVersionNotFound, versionPath)
	}

	captured, ok := parseVersionName(filepath.Base(versionPath))
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a version file", model.ErrVersionNotFound, versionPath)
	}

	info, err := os.Stat(versionPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", model.ErrVersionNotFound, versionPath)
		}
		return nil, &model.AccessError{Path: versionPath, Err: err}
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", model.ErrVersionNotFound, versionPath)
	}

	rel, err := filepath.Rel(s.dataDir, filepath.Dir(versionPath))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", versionPath, err)
	}

	return &model.Version{
		SystemPath: string(filepath.Separator) + rel,
		Path:       versionPath,
		Time:       captured,
	}, nil
}

// removes one version file and its manifest entry, and the versions
// directory once it is empty
func (s *FileVersionStore) Delete(versionPath string) error {
	if !within(s.dataDir, versionPath) {
		return fmt.Errorf("refusing to delete %s: outside data directory", versionPath)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(versionPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete version %s: %w", versionPath, err)
	}

	dir := filepath.Dir(versionPath)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	remaining, err := (manifest{dir: dir}).remove(filepath.Base(versionPath))
	if err != nil {
		return fmt.Errorf("failed to update manifest for %s: %w", versionPath, err)
	}

	if remaining == 0 {
		os.Remove(filepath.Join(dir, manifestName))
		// only succeeds when nothing else lives there
		os.Remove(dir)
	}

	s.logger.Debug("Version deleted", "version", versionPath)
	return nil
}

// lists every system path that has a versions directory
func (s *FileVersionStore) Paths() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := make(map[string]bool)
	err := filepath.WalkDir(s.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		name := d.Name()
		if name != manifestName {
			if _, ok := parseVersionName(name); !ok {
				return nil
			}
		}

		rel, err := filepath.Rel(s.dataDir, filepath.Dir(path))
		if err != nil {
			return err
		}
		found[string(filepath.Separator)+rel] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk data directory: %w", err)
	}

	paths := make([]string, 0, len(found))
	for p := range found {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// removes every stored version
func (s *FileVersionStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.dataDir); err != nil {
		return fmt.Errorf("failed to remove data directory: %w", err)
	}
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to recreate data directory: %w", err)
	}

	s.logger.Info("All versions removed", "dataDir", s.dataDir)
	return nil
}

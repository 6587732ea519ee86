package filewatcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ajkula/plistener/domain/model"
	"github.com/ajkula/plistener/domain/port/outbound"
)

// Options configures which files are reported and how events are coalesced
type Options struct {
	// Patterns are matched against file basenames; empty matches everything
	Patterns []string

	// Debounce is the quiet period after the last event before a batch is emitted
	Debounce time.Duration

	// MaxWait bounds how long a busy stream can delay a batch. Defaults to 10x Debounce.
	MaxWait time.Duration

	// Exclude lists directories never watched (the tracker's own working dir)
	Exclude []string
}

// FsWatcher watches roots recursively and emits one classified batch per
// quiet period. A path is classified at flush time from whether it exists
// and whether it was known before, so an atomic save (write temp, rename
// over the original) is reported as a modification.
type FsWatcher struct {
	watcher     *fsnotify.Watcher
	opts        Options
	logger      outbound.Logger
	batches     chan model.Batch
	errors      chan error
	pending     map[string]struct{}
	known       map[string]bool
	watchedDirs map[string]bool
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	running     bool
	closed      chan struct{}
	stopOnce    sync.Once
}

func NewFSWatcher(opts Options, logger outbound.Logger) (*FsWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 10 * opts.Debounce
	}
	for i, dir := range opts.Exclude {
		if abs, err := filepath.Abs(dir); err == nil {
			opts.Exclude[i] = abs
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	fw := &FsWatcher{
		watcher:     fsWatcher,
		opts:        opts,
		logger:      logger,
		batches:     make(chan model.Batch, 16),
		errors:      make(chan error, 100),
		pending:     make(map[string]struct{}),
		known:       make(map[string]bool),
		watchedDirs: make(map[string]bool),
		ctx:         ctx,
		cancel:      cancel,
		closed:      make(chan struct{}),
	}

	go fw.run()

	return fw, nil
}

// Watch adds root and every directory below it. Matching files already
// present are remembered so later events on them classify as modified.
func (fw *FsWatcher) Watch(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for %s: %w", root, err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", absRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("failed to watch %s: not a directory", absRoot)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.ctx.Err() != nil {
		return fmt.Errorf("watcher is stopped")
	}

	if err := fw.addTree(ctx, absRoot, false); err != nil {
		return err
	}

	fw.running = true
	fw.logger.Info("Watching directory tree", "root", absRoot, "dirs", len(fw.watchedDirs), "files", len(fw.known))
	return nil
}

// addTree watches dir recursively. When markPending is set, matching files
// found are queued as events (a directory that appeared after startup).
// Caller must hold mu.
func (fw *FsWatcher) addTree(ctx context.Context, dir string, markPending bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == dir {
				return fmt.Errorf("failed to walk %s: %w", dir, err)
			}
			fw.logger.Warn("Skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if fw.excluded(path) {
				return filepath.SkipDir
			}
			if fw.watchedDirs[path] {
				return nil
			}
			if err := fw.watcher.Add(path); err != nil {
				if path == dir {
					return fmt.Errorf("failed to watch directory %s: %w", path, err)
				}
				fw.logger.Warn("Failed to watch directory", "path", path, "error", err)
				return filepath.SkipDir
			}
			fw.watchedDirs[path] = true
			return nil
		}

		if !d.Type().IsRegular() || !fw.Matches(path) {
			return nil
		}
		if markPending {
			fw.pending[path] = struct{}{}
		} else {
			fw.known[path] = true
		}
		return nil
	})
}

// Matches reports whether the basename of path matches one of the patterns
func (fw *FsWatcher) Matches(path string) bool {
	return model.MatchAny(fw.opts.Patterns, path)
}

func (fw *FsWatcher) excluded(path string) bool {
	for _, dir := range fw.opts.Exclude {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (fw *FsWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		fw.mu.Lock()
		fw.running = false
		fw.mu.Unlock()

		// cancel context to stop processing
		fw.cancel()

		if closeErr := fw.watcher.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close fsnotify watcher: %w", closeErr)
		}

		// wait for the loop to finish
		<-fw.closed

		close(fw.batches)
		close(fw.errors)
	})
	return err
}

func (fw *FsWatcher) Batches() <-chan model.Batch {
	return fw.batches
}

func (fw *FsWatcher) Errors() <-chan error {
	return fw.errors
}

func (fw *FsWatcher) IsWatching() bool {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	return fw.running
}

func (fw *FsWatcher) GetWatchedPaths() []string {
	fw.mu.RLock()
	defer fw.mu.RUnlock()

	paths := make([]string, 0, len(fw.watchedDirs))
	for path := range fw.watchedDirs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// run owns the debounce timer: every relevant event pushes the flush back
// until the stream has been quiet for Debounce, or MaxWait has elapsed
func (fw *FsWatcher) run() {
	defer close(fw.closed)

	timer := time.NewTimer(fw.opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	var timerC <-chan time.Time
	var firstPending time.Time

	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !fw.handleEvent(event) {
				continue
			}

			now := time.Now()
			if timerC == nil {
				firstPending = now
			}
			wait := fw.opts.Debounce
			if remaining := fw.opts.MaxWait - now.Sub(firstPending); remaining < wait {
				wait = max(remaining, 0)
			}
			timer.Reset(wait)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			batch := fw.flush()
			if batch.IsEmpty() {
				continue
			}
			fw.logger.Debug("Emitting change batch",
				"modified", len(batch.Modified), "added", len(batch.Added), "removed", len(batch.Removed))

			select {
			case fw.batches <- batch:
			case <-fw.ctx.Done():
				return
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case fw.errors <- err:
			default:
				fw.logger.Warn("Dropping watcher error", "error", err)
			}
		}
	}
}

// handleEvent records the path of a relevant event and reports whether
// anything was queued
func (fw *FsWatcher) handleEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}

	path := filepath.Clean(event.Name)

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.excluded(path) {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Lstat(path); err == nil && info.IsDir() {
			if err := fw.addTree(fw.ctx, path, true); err != nil {
				fw.logger.Warn("Failed to watch new directory", "path", path, "error", err)
			}
			return len(fw.pending) > 0
		}
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		if fw.watchedDirs[path] {
			fw.forgetTree(path)
			return len(fw.pending) > 0
		}
	}

	if !fw.Matches(path) {
		return false
	}

	fw.pending[path] = struct{}{}
	return true
}

// forgetTree handles a watched directory that went away: its known files are
// queued (they will flush as removed) and its watches are dropped.
// Caller must hold mu.
func (fw *FsWatcher) forgetTree(dir string) {
	prefix := dir + string(filepath.Separator)
	for path := range fw.known {
		if strings.HasPrefix(path, prefix) {
			fw.pending[path] = struct{}{}
		}
	}
	for watched := range fw.watchedDirs {
		if watched == dir || strings.HasPrefix(watched, prefix) {
			// the kernel already dropped the watch, ignore the error
			_ = fw.watcher.Remove(watched)
			delete(fw.watchedDirs, watched)
		}
	}
}

// flush classifies every pending path:
// exists and known -> modified, exists and new -> added,
// gone and known -> removed, gone and never seen -> dropped
func (fw *FsWatcher) flush() model.Batch {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	var batch model.Batch
	for path := range fw.pending {
		exists := regularFileExists(path)
		switch {
		case exists && fw.known[path]:
			batch.Modified = append(batch.Modified, path)
		case exists:
			batch.Added = append(batch.Added, path)
			fw.known[path] = true
		case fw.known[path]:
			batch.Removed = append(batch.Removed, path)
			delete(fw.known, path)
		}
	}
	fw.pending = make(map[string]struct{})

	sort.Strings(batch.Modified)
	sort.Strings(batch.Added)
	sort.Strings(batch.Removed)
	return batch
}

func regularFileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			// unreadable but present: let the processor report the access error
			return true
		}
		return false
	}
	return info.Mode().IsRegular()
}

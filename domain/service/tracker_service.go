package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ajkula/plistener/domain/model"
	"github.com/ajkula/plistener/domain/port/inbound"
	"github.com/ajkula/plistener/domain/port/outbound"
)

// TrackerOptions configures what the tracker scans and how long it keeps history
type TrackerOptions struct {
	Roots    []string
	Patterns []string
	Keep     time.Duration

	// Exclude lists directories never scanned (the working dir)
	Exclude []string
}

type trackerService struct {
	processor inbound.EventProcessor
	retention inbound.RetentionService
	versions  outbound.VersionStore
	recorder  outbound.ChangeRecorder
	publisher outbound.ChangePublisher
	watcher   outbound.FileWatcher
	opts      TrackerOptions
	logger    outbound.Logger

	// single worker: one batch (or scan) at a time
	mu      sync.Mutex
	running bool
}

func NewTrackerService(
	processor inbound.EventProcessor,
	retention inbound.RetentionService,
	versions outbound.VersionStore,
	recorder outbound.ChangeRecorder,
	publisher outbound.ChangePublisher,
	watcher outbound.FileWatcher,
	opts TrackerOptions,
	logger outbound.Logger,
) *trackerService {
	return &trackerService{
		processor: processor,
		retention: retention,
		versions:  versions,
		recorder:  recorder,
		publisher: publisher,
		watcher:   watcher,
		opts:      opts,
		logger:    logger,
	}
}

// Scan walks every root and processes what changed since the last run:
// files without versions are added, files whose current mtime has no
// version yet are modified, the rest are skipped
func (s *trackerService) Scan(ctx context.Context) (*model.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	batch, result, err := s.collect(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Scan collected files",
		"added", len(batch.Added), "modified", len(batch.Modified), "failed", len(result.Results))

	for _, r := range s.processor.ProcessBatch(batch).Results {
		result.Add(r)
	}
	s.recordFailures(result)

	s.logger.Info("Scan complete",
		"processed", len(result.Results),
		"recoverable", result.Count(model.StatusRecoverable),
		"fatal", result.Count(model.StatusFatal),
		"duration", time.Since(start).String(),
	)
	return result, nil
}

// collect classifies every matching file under the roots. Files whose
// state could not even be determined come back as failed results.
func (s *trackerService) collect(ctx context.Context) (model.Batch, *model.BatchResult, error) {
	var batch model.Batch
	result := &model.BatchResult{}

	for _, root := range s.opts.Roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				if path == root {
					return err
				}
				s.logger.Warn("Skipping unreadable path during scan", "path", path, "error", err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				if s.excluded(path) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !model.MatchAny(s.opts.Patterns, path) {
				return nil
			}

			eventType, err := s.classify(path)
			if err != nil {
				result.Add(model.NewPathResult(path, model.EventAdded, err))
				return nil
			}
			switch eventType {
			case model.EventAdded:
				batch.Added = append(batch.Added, path)
			case model.EventModified:
				batch.Modified = append(batch.Modified, path)
			}
			return nil
		})

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return batch, nil, ctxErr
			}
			if errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("Scan root does not exist", "root", root)
				continue
			}
			s.logger.Warn("Failed to scan root", "root", root, "error", err)
		}
	}

	return batch, result, nil
}

// classify returns the event a scanned file needs, or "" when its current
// state is already stored
func (s *trackerService) classify(path string) (model.EventType, error) {
	last, err := s.versions.Last(path)
	if err != nil {
		return "", fmt.Errorf("failed to look up last version of %s: %w", path, err)
	}
	if last == nil {
		return model.EventAdded, nil
	}

	captured, err := s.versions.CaptureTime(path)
	if err != nil {
		return "", err
	}
	if last.Path == s.versions.VersionPath(captured, path) {
		return "", nil
	}
	return model.EventModified, nil
}

func (s *trackerService) excluded(path string) bool {
	for _, dir := range s.opts.Exclude {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (s *trackerService) Prune(ctx context.Context) (*model.PruneResult, error) {
	return s.retention.Prune(ctx, s.opts.Keep)
}

// Run scans, prunes and then processes batches until ctx is done. The batch
// in progress when ctx is cancelled is finished first.
func (s *trackerService) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("tracker already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("Starting tracker", "roots", s.opts.Roots, "patterns", s.opts.Patterns, "keep", s.opts.Keep.String())

	// watch before scanning so nothing written during the scan is missed
	watching := 0
	for _, root := range s.opts.Roots {
		if err := s.watcher.Watch(ctx, root); err != nil {
			s.logger.Warn("Failed to watch root", "root", root, "error", err)
			continue
		}
		watching++
	}
	defer func() {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Error("Error stopping file watcher", "error", err)
		}
	}()

	if _, err := s.Scan(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("initial scan failed: %w", err)
	}

	if _, err := s.Prune(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("Initial prune failed", "error", err)
	}

	if watching == 0 {
		s.logger.Warn("No roots could be watched, only the initial scan ran")
	}

	s.logger.Info("Tracker started", "watchedRoots", watching)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Tracker stopped")
			return nil

		case batch, ok := <-s.watcher.Batches():
			if !ok {
				s.logger.Warn("Watcher closed its batch channel")
				return nil
			}
			s.HandleBatch(context.WithoutCancel(ctx), batch)

		case err, ok := <-s.watcher.Errors():
			if ok {
				s.logger.Error("File watcher error", "error", err)
			}
		}
	}
}

// HandleBatch processes one batch, records every failure and prunes
func (s *trackerService) HandleBatch(ctx context.Context, batch model.Batch) *model.BatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.processor.ProcessBatch(batch)
	s.recordFailures(result)

	if _, err := s.retention.Prune(ctx, s.opts.Keep); err != nil {
		s.logger.Error("Prune after batch failed", "error", err)
	}

	s.logger.Debug("Batch processed",
		"paths", len(result.Results),
		"recoverable", result.Count(model.StatusRecoverable),
		"fatal", result.Count(model.StatusFatal),
	)
	return result
}

// recordFailures turns every failed path into a degraded record. When even
// that fails the original error is surfaced at error level.
func (s *trackerService) recordFailures(result *model.BatchResult) {
	for _, failed := range result.Failed() {
		if failed.Status == model.StatusFatal {
			s.logger.Error("Change processing failed", "path", failed.Path, "type", failed.Type, "error", failed.Err)
		} else {
			s.logger.Warn("Change processing failed", "path", failed.Path, "type", failed.Type, "error", failed.Err)
		}

		event, err := s.recorder.RecordError(failed.Path, failed.Type, failed.Err)
		if err != nil {
			s.logger.Error("Failed to record change error",
				"path", failed.Path, "type", failed.Type, "cause", failed.Err, "error", err)
			continue
		}
		publish(s.publisher, s.logger, event)
	}
}

func (s *trackerService) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.recorder.Clear(); err != nil {
		return fmt.Errorf("failed to clear changes: %w", err)
	}
	return nil
}

func (s *trackerService) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.versions.Reset(); err != nil {
		return fmt.Errorf("failed to reset versions: %w", err)
	}
	if err := s.recorder.Clear(); err != nil {
		return fmt.Errorf("failed to clear changes: %w", err)
	}
	return nil
}

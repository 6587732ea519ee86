package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ajkula/plistener/domain/model"
	"github.com/ajkula/plistener/domain/port/outbound"
)

type retentionService struct {
	versions outbound.VersionStore
	recorder outbound.ChangeRecorder
	now      func() time.Time
	logger   outbound.Logger
}

// NewRetentionService builds the pruner; a nil clock means time.Now
func NewRetentionService(
	versions outbound.VersionStore,
	recorder outbound.ChangeRecorder,
	clock func() time.Time,
	logger outbound.Logger,
) *retentionService {
	if clock == nil {
		clock = time.Now
	}
	return &retentionService{
		versions: versions,
		recorder: recorder,
		now:      clock,
		logger:   logger,
	}
}

// Prune deletes events older than keep, then the versions that only deleted
// events referenced. It is two-pass because a version can be the current of
// an expired event and the prev of a surviving one.
func (s *retentionService) Prune(ctx context.Context, keep time.Duration) (*model.PruneResult, error) {
	if keep <= 0 {
		return nil, fmt.Errorf("invalid retention window %s", keep)
	}

	limit := s.now().Add(-keep)
	result := &model.PruneResult{}

	events, err := s.recorder.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}

	// version path -> system path
	candidates := make(map[string]string)
	referenced := make(map[string]bool)

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if !event.Age().Before(limit) {
			markReferenced(referenced, event)
			continue
		}

		if err := s.recorder.Delete(event.ID); err != nil {
			s.logger.Warn("Failed to delete expired change", "id", event.ID, "error", err)
			markReferenced(referenced, event)
			continue
		}

		result.EventsDeleted++
		for _, versionPath := range event.VersionPaths() {
			candidates[versionPath] = event.Path
		}
	}

	for versionPath, systemPath := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if referenced[versionPath] {
			continue
		}

		if err := s.versions.Delete(versionPath); err != nil {
			s.logger.Warn("Failed to delete unreferenced version", "path", systemPath, "version", versionPath, "error", err)
			continue
		}
		result.VersionsDeleted++
	}

	s.logger.Info("Retention pass complete",
		"limit", limit.UTC().Format(time.RFC3339),
		"eventsDeleted", result.EventsDeleted,
		"versionsDeleted", result.VersionsDeleted,
	)

	return result, nil
}

func markReferenced(referenced map[string]bool, event *model.ChangeEvent) {
	for _, versionPath := range event.VersionPaths() {
		referenced[versionPath] = true
	}
}

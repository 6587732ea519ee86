package inbound

import (
	"context"
	"time"

	"github.com/ajkula/plistener/domain/model"
)

// EventProcessor handles one watched-path event to completion
type EventProcessor interface {
	// Added records a first version and an "added" change
	Added(systemPath string) (*model.ChangeEvent, error)

	// Modified records a new version and a "modified" change against the last one
	Modified(systemPath string) (*model.ChangeEvent, error)

	// Removed records a "removed" change against the last version
	Removed(systemPath string) (*model.ChangeEvent, error)

	// Process dispatches on the event type
	Process(eventType model.EventType, systemPath string) (*model.ChangeEvent, error)

	// ProcessBatch processes modified, then added, then removed paths,
	// isolating failures per path. A started batch always runs to completion.
	ProcessBatch(batch model.Batch) *model.BatchResult
}

// RetentionService deletes expired change events and the versions only they referenced
type RetentionService interface {
	Prune(ctx context.Context, keep time.Duration) (*model.PruneResult, error)
}

// TrackerService is the boundary the CLI and the process bootstrap drive
type TrackerService interface {
	// Scan processes every matching file under the configured roots
	Scan(ctx context.Context) (*model.BatchResult, error)

	// Prune runs retention with the configured window
	Prune(ctx context.Context) (*model.PruneResult, error)

	// Run scans, prunes, then processes watcher batches until ctx is done
	Run(ctx context.Context) error

	// HandleBatch processes one batch, records failures and prunes
	HandleBatch(ctx context.Context, batch model.Batch) *model.BatchResult

	// Clear deletes all change events
	Clear(ctx context.Context) error

	// Reset deletes all versions and all change events
	Reset(ctx context.Context) error
}

// HistoryService is the read side used by the presentation adapters
type HistoryService interface {
	// ListChanges returns records newest first, optionally for one system path
	ListChanges(ctx context.Context, systemPath string) ([]*model.ChangeEvent, error)

	// GetChange fetches one record
	GetChange(ctx context.Context, id string) (*model.ChangeEvent, error)

	// FileHistory lists the stored versions of one system path
	FileHistory(ctx context.Context, systemPath string) ([]*model.Version, error)

	// ViewVersion parses one stored version
	ViewVersion(ctx context.Context, versionPath string) (*model.VersionView, error)

	// Subscribe / Unsubscribe expose the live change feed
	Subscribe(handler func(*model.ChangeEvent) error) (string, error)
	Unsubscribe(subscriptionID string) error
}

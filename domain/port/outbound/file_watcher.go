package outbound

import (
	"context"

	"github.com/ajkula/plistener/domain/model"
)

// defines operations for monitoring watched roots for changes
type FileWatcher interface {
	// starts monitoring a root directory (recursively) for matching files
	Watch(ctx context.Context, root string) error

	// stops watching all roots and releases resources
	Stop() error

	// returns a channel of debounced, classified change batches
	Batches() <-chan model.Batch

	// returns a channel for receiving file watcher errors
	Errors() <-chan error

	// returns true if the watcher is currently monitoring files
	IsWatching() bool

	// returns a list of currently watched directories
	GetWatchedPaths() []string
}

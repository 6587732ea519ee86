package cli

import (
	"fmt"

	"github.com/ajkula/plistener/adapter/outbound/filewatcher"
	"github.com/ajkula/plistener/adapter/outbound/reader"
	"github.com/ajkula/plistener/adapter/outbound/storage"
	"github.com/ajkula/plistener/adapter/outbound/storage/memory"
	"github.com/ajkula/plistener/config"
	"github.com/ajkula/plistener/domain/port/inbound"
	"github.com/ajkula/plistener/domain/port/outbound"
	"github.com/ajkula/plistener/domain/service"
)

// App is the wired tracker
type App struct {
	Config    *config.Config
	Logger    outbound.Logger
	Versions  *storage.FileVersionStore
	Changes   *storage.FileChangeRepository
	Publisher *memory.SubscriptionRegistry
	Reader    *reader.Reader
	Watcher   *filewatcher.FsWatcher
	Processor inbound.EventProcessor
	Retention inbound.RetentionService
	Tracker   inbound.TrackerService
	History   inbound.HistoryService
}

// NewApp wires every component from cfg. The file watcher is only created
// when watch is set, since it holds OS resources.
func NewApp(cfg *config.Config, logger outbound.Logger, watch bool) (*App, error) {
	versions, err := storage.NewFileVersionStore(cfg.DataDir(), logger)
	if err != nil {
		return nil, err
	}

	changes, err := storage.NewFileChangeRepository(cfg.ChangesDir(), nil, logger)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		Logger:    logger,
		Versions:  versions,
		Changes:   changes,
		Publisher: memory.NewSubscriptionRegistry(logger),
		Reader:    reader.New(logger),
	}

	var watcher outbound.FileWatcher
	if watch {
		fsWatcher, err := filewatcher.NewFSWatcher(filewatcher.Options{
			Patterns: cfg.Watch.Patterns,
			Debounce: cfg.Watch.Debounce,
			Exclude:  []string{cfg.General.WorkingDir},
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		app.Watcher = fsWatcher
		watcher = fsWatcher
	}

	app.Processor = service.NewEventProcessor(versions, changes, app.Reader, app.Publisher, logger)
	app.Retention = service.NewRetentionService(versions, changes, nil, logger)
	app.History = service.NewHistoryService(versions, changes, app.Reader, app.Publisher, logger)
	app.Tracker = service.NewTrackerService(
		app.Processor,
		app.Retention,
		versions,
		changes,
		app.Publisher,
		watcher,
		service.TrackerOptions{
			Roots:    cfg.Watch.Paths,
			Patterns: cfg.Watch.Patterns,
			Keep:     cfg.Keep(),
			Exclude:  []string{cfg.General.WorkingDir},
		},
		logger,
	)

	return app, nil
}

package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/ajkula/plistener/domain/model"
	"github.com/ajkula/plistener/domain/port/outbound"
)

type historyService struct {
	versions  outbound.VersionStore
	recorder  outbound.ChangeRecorder
	reader    outbound.DataReader
	publisher outbound.ChangePublisher
	logger    outbound.Logger
}

func NewHistoryService(
	versions outbound.VersionStore,
	recorder outbound.ChangeRecorder,
	reader outbound.DataReader,
	publisher outbound.ChangePublisher,
	logger outbound.Logger,
) *historyService {
	return &historyService{
		versions:  versions,
		recorder:  recorder,
		reader:    reader,
		publisher: publisher,
		logger:    logger,
	}
}

// ListChanges returns records newest first; an empty systemPath means all
func (s *historyService) ListChanges(ctx context.Context, systemPath string) ([]*model.ChangeEvent, error) {
	events, err := s.recorder.List()
	if err != nil {
		return nil, err
	}

	if systemPath != "" {
		systemPath = filepath.Clean(systemPath)
		filtered := events[:0]
		for _, event := range events {
			if event.Path == systemPath {
				filtered = append(filtered, event)
			}
		}
		events = filtered
	}

	SortNewestFirst(events)
	return events, nil
}

// SortNewestFirst orders by event time, then by ID so equal times stay stable
func SortNewestFirst(events []*model.ChangeEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Time.Equal(events[j].Time) {
			return events[i].Time.After(events[j].Time)
		}
		return events[i].ID > events[j].ID
	})
}

func (s *historyService) GetChange(ctx context.Context, id string) (*model.ChangeEvent, error) {
	return s.recorder.Get(id)
}

func (s *historyService) FileHistory(ctx context.Context, systemPath string) ([]*model.Version, error) {
	if systemPath == "" {
		return nil, fmt.Errorf("path is required")
	}
	return s.versions.Versions(filepath.Clean(systemPath))
}

// ViewVersion parses a stored version and lists the events that reference it
func (s *historyService) ViewVersion(ctx context.Context, versionPath string) (*model.VersionView, error) {
	version, err := s.versions.Lookup(versionPath)
	if err != nil {
		return nil, err
	}

	data, err := s.reader.Read(version.Path)
	if err != nil {
		return nil, err
	}

	events, err := s.recorder.List()
	if err != nil {
		return nil, err
	}

	seen := make([]*model.ChangeEvent, 0)
	for _, event := range events {
		for _, ref := range event.VersionPaths() {
			if ref == version.Path {
				seen = append(seen, event)
				break
			}
		}
	}
	SortNewestFirst(seen)

	leaves := model.Leaves(data)
	if leaves == nil {
		leaves = []model.Leaf{}
	}

	return &model.VersionView{
		Version: version,
		Data:    data,
		Leaves:  leaves,
		Seen:    seen,
	}, nil
}

func (s *historyService) Subscribe(handler func(*model.ChangeEvent) error) (string, error) {
	if s.publisher == nil {
		return "", fmt.Errorf("live changes are not available")
	}
	return s.publisher.Subscribe(handler)
}

func (s *historyService) Unsubscribe(subscriptionID string) error {
	if s.publisher == nil {
		return fmt.Errorf("live changes are not available")
	}
	return s.publisher.Unsubscribe(subscriptionID)
}

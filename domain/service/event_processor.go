package service

import (
	"errors"
	"fmt"
	"os"

	"github.com/ajkula/plistener/domain/model"
	"github.com/ajkula/plistener/domain/port/outbound"
)

type eventProcessor struct {
	versions  outbound.VersionStore
	recorder  outbound.ChangeRecorder
	reader    outbound.DataReader
	publisher outbound.ChangePublisher
	logger    outbound.Logger
}

// NewEventProcessor builds the per-path processor. publisher may be nil.
func NewEventProcessor(
	versions outbound.VersionStore,
	recorder outbound.ChangeRecorder,
	reader outbound.DataReader,
	publisher outbound.ChangePublisher,
	logger outbound.Logger,
) *eventProcessor {
	return &eventProcessor{
		versions:  versions,
		recorder:  recorder,
		reader:    reader,
		publisher: publisher,
		logger:    logger,
	}
}

func (p *eventProcessor) Process(eventType model.EventType, systemPath string) (*model.ChangeEvent, error) {
	switch eventType {
	case model.EventAdded:
		return p.Added(systemPath)
	case model.EventModified:
		return p.Modified(systemPath)
	case model.EventRemoved:
		return p.Removed(systemPath)
	default:
		return nil, fmt.Errorf("unknown event type %q for %s", eventType, systemPath)
	}
}

func (p *eventProcessor) ProcessBatch(batch model.Batch) *model.BatchResult {
	result := &model.BatchResult{}

	p.logger.Debug("Processing batch",
		"modified", len(batch.Modified), "added", len(batch.Added), "removed", len(batch.Removed))

	for _, group := range []struct {
		eventType model.EventType
		paths     []string
	}{
		{model.EventModified, batch.Modified},
		{model.EventAdded, batch.Added},
		{model.EventRemoved, batch.Removed},
	} {
		for _, path := range group.paths {
			_, err := p.Process(group.eventType, path)
			result.Add(model.NewPathResult(path, group.eventType, err))
		}
	}

	return result
}

func (p *eventProcessor) Added(systemPath string) (*model.ChangeEvent, error) {
	current, err := p.versions.RecordVersion(systemPath)
	if err != nil {
		return nil, err
	}

	data, err := p.read(current.Path)
	if err != nil {
		p.discard(current, err)
		return nil, err
	}

	return p.record(systemPath, model.EventAdded, current.Ref(), nil, Diff(model.EmptyTree(), data))
}

// Modified reads the previous version before recording the current one: a
// rewrite within the same millisecond lands on the same version file.
func (p *eventProcessor) Modified(systemPath string) (*model.ChangeEvent, error) {
	prev, err := p.last(systemPath, model.EventModified)
	if err != nil {
		return nil, err
	}

	prevData, prevAvailable, err := p.readPrevious(prev)
	if err != nil {
		return nil, err
	}

	current, err := p.versions.RecordVersion(systemPath)
	if err != nil {
		return nil, err
	}

	currentData, err := p.read(current.Path)
	if err != nil {
		// a same-millisecond rewrite already replaced prev, keep it indexed
		if current.Path != prev.Path {
			p.discard(current, err)
		}
		return nil, err
	}

	var diff []model.DiffOp
	if prevAvailable {
		diff = Diff(prevData, currentData)
	}

	return p.record(systemPath, model.EventModified, current.Ref(), prev.Ref(), diff)
}

// Removed records no version: the file is gone
func (p *eventProcessor) Removed(systemPath string) (*model.ChangeEvent, error) {
	prev, err := p.last(systemPath, model.EventRemoved)
	if err != nil {
		return nil, err
	}

	prevData, prevAvailable, err := p.readPrevious(prev)
	if err != nil {
		return nil, err
	}

	var diff []model.DiffOp
	if prevAvailable {
		diff = Diff(prevData, model.EmptyTree())
	}

	return p.record(systemPath, model.EventRemoved, nil, prev.Ref(), diff)
}

func (p *eventProcessor) last(systemPath string, eventType model.EventType) (*model.Version, error) {
	prev, err := p.versions.Last(systemPath)
	if err != nil {
		return nil, fmt.Errorf("failed to look up last version of %s: %w", systemPath, err)
	}
	if prev == nil {
		return nil, &model.PreviousVersionNotFoundError{Path: systemPath, Type: eventType}
	}
	return prev, nil
}

// readPrevious parses the previous version. A version that vanished between
// lookup and read, or that no longer parses, leaves the diff unavailable
// rather than failing the event.
func (p *eventProcessor) readPrevious(prev *model.Version) (model.Value, bool, error) {
	data, err := p.read(prev.Path)
	if err == nil {
		return data, true, nil
	}

	var accessErr *model.AccessError
	if errors.As(err, &accessErr) && errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("Previous version missing on disk, diff unavailable", "path", prev.SystemPath, "version", prev.Path)
		return nil, false, nil
	}

	var parseErr *model.ParseError
	if errors.As(err, &parseErr) {
		p.logger.Warn("Previous version unparseable, diff unavailable", "path", prev.SystemPath, "version", prev.Path, "error", err)
		return nil, false, nil
	}
	return nil, false, err
}

// discard drops a version whose content could not be parsed, so no stored
// version is left without a change event referencing it
func (p *eventProcessor) discard(version *model.Version, cause error) {
	if err := p.versions.Delete(version.Path); err != nil {
		p.logger.Error("Failed to discard unparseable version", "version", version.Path, "cause", cause, "error", err)
		return
	}
	p.logger.Debug("Discarded unparseable version", "version", version.Path)
}

// read parses a stored version; anything that is not an access error is a parse error
func (p *eventProcessor) read(versionPath string) (model.Value, error) {
	data, err := p.reader.Read(versionPath)
	if err == nil {
		return data, nil
	}

	var accessErr *model.AccessError
	var parseErr *model.ParseError
	if errors.As(err, &accessErr) || errors.As(err, &parseErr) {
		return nil, err
	}
	return nil, &model.ParseError{Path: versionPath, Err: err}
}

func (p *eventProcessor) record(
	systemPath string,
	eventType model.EventType,
	current, prev *model.VersionRef,
	diff []model.DiffOp,
) (*model.ChangeEvent, error) {
	event, err := p.recorder.Record(systemPath, eventType, current, prev, diff)
	if err != nil {
		return nil, err
	}

	publish(p.publisher, p.logger, event)
	return event, nil
}

// publish hands a recorded event to live subscribers; delivery problems are only logged
func publish(publisher outbound.ChangePublisher, logger outbound.Logger, event *model.ChangeEvent) {
	if publisher == nil || event == nil {
		return
	}
	if err := publisher.Publish(event); err != nil {
		logger.Warn("Failed to publish change", "id", event.ID, "error", err)
	}
}

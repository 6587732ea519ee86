package service

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajkula/plistener/adapter/outbound/storage"
	"github.com/ajkula/plistener/domain/model"
)

func TestEventProcessorLifecycle(t *testing.T) {
	env := newTestEnv(t)
	t1 := baseTime
	t2 := baseTime.Add(time.Minute)

	path := env.write(t, "settings.yml", "x: ex\n", t1)

	t.Run("added", func(t *testing.T) {
		event, err := env.processor.Added(path)
		require.NoError(t, err)

		assert.Equal(t, model.EventAdded, event.Type)
		assert.Equal(t, path, event.Path)
		assert.Nil(t, event.Prev)
		require.NotNil(t, event.Current)
		assert.Equal(t, env.versions.VersionPath(t1, path), event.Current.Path)
		assert.True(t, event.Current.Time.Equal(t1))
		assertOps(t, []model.DiffOp{model.NewAdd("x", model.String("ex"))}, event.Diff)
	})

	first, err := env.versions.Last(path)
	require.NoError(t, err)

	t.Run("modified", func(t *testing.T) {
		env.write(t, "settings.yml", "x: oh\n", t2)

		event, err := env.processor.Modified(path)
		require.NoError(t, err)

		assert.Equal(t, model.EventModified, event.Type)
		require.NotNil(t, event.Prev)
		require.NotNil(t, event.Current)
		assert.Equal(t, first.Path, event.Prev.Path)
		assert.Equal(t, env.versions.VersionPath(t2, path), event.Current.Path)
		assertOps(t, []model.DiffOp{model.NewModify("x", model.String("ex"), model.String("oh"))}, event.Diff)
	})

	t.Run("removed", func(t *testing.T) {
		require.NoError(t, os.Remove(path))

		event, err := env.processor.Removed(path)
		require.NoError(t, err)

		assert.Equal(t, model.EventRemoved, event.Type)
		assert.Nil(t, event.Current)
		require.NotNil(t, event.Prev)
		assert.Equal(t, env.versions.VersionPath(t2, path), event.Prev.Path)
		assertOps(t, []model.DiffOp{model.NewRemove("x", model.String("oh"))}, event.Diff)
	})

	events := env.events(t)
	require.Len(t, events, 3)
	assert.Equal(t, model.EventRemoved, events[0].Type)
	assert.Equal(t, model.EventModified, events[1].Type)
	assert.Equal(t, model.EventAdded, events[2].Type)
}

func TestEventProcessorUnchangedModify(t *testing.T) {
	env := newTestEnv(t)
	path := env.write(t, "settings.yml", "x: ex\n", baseTime)

	_, err := env.processor.Added(path)
	require.NoError(t, err)

	// touched, same content
	env.write(t, "settings.yml", "x: ex\n", baseTime.Add(time.Second))
	event, err := env.processor.Modified(path)
	require.NoError(t, err)

	require.NotNil(t, event.Diff, "both sides available")
	assert.Empty(t, event.Diff)
}

func TestEventProcessorSameMillisecondRewrite(t *testing.T) {
	env := newTestEnv(t)
	path := env.write(t, "settings.yml", "x: ex\n", baseTime)

	_, err := env.processor.Added(path)
	require.NoError(t, err)

	env.write(t, "settings.yml", "x: oh\n", baseTime)
	event, err := env.processor.Modified(path)
	require.NoError(t, err)

	assert.Equal(t, event.Prev.Path, event.Current.Path, "same capture time, same version file")
	assertOps(t, []model.DiffOp{model.NewModify("x", model.String("ex"), model.String("oh"))}, event.Diff)
}

func TestEventProcessorPreviousVersionNotFound(t *testing.T) {
	env := newTestEnv(t)
	path := env.write(t, "settings.yml", "x: ex\n", baseTime)

	for _, eventType := range []model.EventType{model.EventModified, model.EventRemoved} {
		t.Run(string(eventType), func(t *testing.T) {
			_, err := env.processor.Process(eventType, path)
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrPreviousVersionNotFound)
			assert.Equal(t, model.StatusRecoverable, model.Classify(err))

			var notFound *model.PreviousVersionNotFoundError
			require.True(t, errors.As(err, &notFound))
			assert.Equal(t, eventType, notFound.Type)
		})
	}

	assert.Empty(t, env.events(t), "nothing is recorded for a failed event")
	versions, err := env.versions.Versions(path)
	require.NoError(t, err)
	assert.Empty(t, versions, "modify without history stores no version")
}

func TestEventProcessorPreviousVersionMissingOnDisk(t *testing.T) {
	env := newTestEnv(t)
	path := env.write(t, "settings.yml", "x: ex\n", baseTime)

	_, err := env.processor.Added(path)
	require.NoError(t, err)
	first, err := env.versions.Last(path)
	require.NoError(t, err)

	// listed by the patched store below, gone on disk
	require.NoError(t, os.Remove(first.Path))
	processor := NewEventProcessor(&staleLastStore{env.versions, first}, env.changes, env.reader, nil, env.logger)

	require.NoError(t, os.Remove(path))
	event, err := processor.Removed(path)
	require.NoError(t, err)

	assert.Nil(t, event.Diff, "diff unavailable")
	assert.Equal(t, first.Path, event.Prev.Path)
	assert.True(t, env.logger.has("warn", "Previous version missing on disk, diff unavailable"))
}

// staleLastStore reports a version the underlying store no longer has
type staleLastStore struct {
	*storage.FileVersionStore
	last *model.Version
}

func (s *staleLastStore) Last(systemPath string) (*model.Version, error) {
	return s.last, nil
}

func TestEventProcessorParseError(t *testing.T) {
	env := newTestEnv(t)
	path := env.write(t, "settings.yml", "x: ex\n", baseTime)

	_, err := env.processor.Added(path)
	require.NoError(t, err)

	env.write(t, "settings.yml", "x: [unterminated\n", baseTime.Add(time.Second))
	_, err = env.processor.Modified(path)
	require.Error(t, err)

	var parseErr *model.ParseError
	assert.True(t, errors.As(err, &parseErr))
	assert.Equal(t, model.StatusRecoverable, model.Classify(err))
}

func TestEventProcessorMalformedAddedLeavesNoVersion(t *testing.T) {
	env := newTestEnv(t)
	path := env.write(t, "broken.yml", "x: [unterminated\n", baseTime)

	_, err := env.processor.Added(path)
	var parseErr *model.ParseError
	require.True(t, errors.As(err, &parseErr))

	assert.False(t, exists(env.versions.VersionsDir(path)), "no version without a change")
	last, err := env.versions.Last(path)
	require.NoError(t, err)
	assert.Nil(t, last)
	assert.Zero(t, env.count())

	// once fixed the file is added from scratch
	env.write(t, "broken.yml", "x: ok\n", baseTime.Add(time.Second))
	event, err := env.processor.Added(path)
	require.NoError(t, err)
	assertOps(t, []model.DiffOp{model.NewAdd("x", model.String("ok"))}, event.Diff)
}

func TestEventProcessorMalformedModifyKeepsLastGoodVersion(t *testing.T) {
	env := newTestEnv(t)
	path := env.write(t, "settings.yml", "x: ex\n", baseTime)
	added, err := env.processor.Added(path)
	require.NoError(t, err)

	env.write(t, "settings.yml", "x: [unterminated\n", baseTime.Add(time.Second))
	_, err = env.processor.Modified(path)
	require.Error(t, err)

	versions, err := env.versions.Versions(path)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, added.Current.Path, versions[0].Path)

	env.write(t, "settings.yml", "x: oh\n", baseTime.Add(2*time.Second))
	event, err := env.processor.Modified(path)
	require.NoError(t, err)
	assert.Equal(t, added.Current.Path, event.Prev.Path)
	assertOps(t, []model.DiffOp{model.NewModify("x", model.String("ex"), model.String("oh"))}, event.Diff)
}

func TestEventProcessorUnparseablePreviousVersion(t *testing.T) {
	env := newTestEnv(t)
	path := env.write(t, "settings.yml", "x: ex\n", baseTime)
	_, err := env.processor.Added(path)
	require.NoError(t, err)

	// a version stored without going through the processor
	env.write(t, "settings.yml", "x: [unterminated\n", baseTime.Add(time.Second))
	bad, err := env.versions.RecordVersion(path)
	require.NoError(t, err)

	env.write(t, "settings.yml", "x: oh\n", baseTime.Add(2*time.Second))
	event, err := env.processor.Modified(path)
	require.NoError(t, err)
	assert.Equal(t, model.EventModified, event.Type)
	assert.Equal(t, bad.Path, event.Prev.Path)
	assert.Nil(t, event.Diff, "diff unavailable")
	assert.True(t, env.logger.has("warn", "Previous version unparseable, diff unavailable"))

	// the recovered version is the baseline for the next change
	env.write(t, "settings.yml", "x: again\n", baseTime.Add(3*time.Second))
	next, err := env.processor.Modified(path)
	require.NoError(t, err)
	assert.Equal(t, event.Current.Path, next.Prev.Path)
	assertOps(t, []model.DiffOp{model.NewModify("x", model.String("oh"), model.String("again"))}, next.Diff)

	require.NoError(t, os.Remove(path))
	removed, err := env.processor.Removed(path)
	require.NoError(t, err)
	assertOps(t, []model.DiffOp{model.NewRemove("x", model.String("again"))}, removed.Diff)
}

func TestEventProcessorAccessError(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.processor.Added(filepath.Join(env.root, "missing.yml"))
	require.Error(t, err)

	var accessErr *model.AccessError
	assert.True(t, errors.As(err, &accessErr))
	assert.Equal(t, model.StatusRecoverable, model.Classify(err))
}

func TestEventProcessorRecordConflictIsFatal(t *testing.T) {
	env := newTestEnv(t)
	recorder := &failingRecorder{FileChangeRepository: env.changes, recordErr: &model.ChangePathConflictError{Path: "x"}}
	processor := NewEventProcessor(env.versions, recorder, env.reader, nil, env.logger)

	path := env.write(t, "settings.yml", "x: ex\n", baseTime)
	_, err := processor.Added(path)
	require.Error(t, err)
	assert.Equal(t, model.StatusFatal, model.Classify(err))
}

func TestEventProcessorUnknownType(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.processor.Process(model.EventType("renamed"), "/p/a.yml")
	assert.Error(t, err)
}

func TestProcessBatchOrderAndIsolation(t *testing.T) {
	env := newTestEnv(t)

	modified := env.write(t, "modified.yml", "v: 1\n", baseTime)
	removed := env.write(t, "removed.yml", "v: 1\n", baseTime)
	_, err := env.processor.Added(modified)
	require.NoError(t, err)
	_, err = env.processor.Added(removed)
	require.NoError(t, err)

	env.write(t, "modified.yml", "v: 2\n", baseTime.Add(time.Second))
	added := env.write(t, "added.yml", "v: 1\n", baseTime)
	broken := env.write(t, "broken.yml", "v: [\n", baseTime)
	require.NoError(t, os.Remove(removed))

	var mu sync.Mutex
	var order []string
	_, err = env.publisher.Subscribe(func(event *model.ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, string(event.Type)+":"+event.Path)
		return nil
	})
	require.NoError(t, err)

	result := env.processor.ProcessBatch(model.Batch{
		Removed:  []string{removed},
		Added:    []string{broken, added},
		Modified: []string{modified},
	})

	require.Len(t, result.Results, 4)
	assert.Equal(t, modified, result.Results[0].Path)
	assert.Equal(t, broken, result.Results[1].Path)
	assert.Equal(t, model.StatusRecoverable, result.Results[1].Status)
	assert.Equal(t, added, result.Results[2].Path)
	assert.Equal(t, removed, result.Results[3].Path)
	assert.Equal(t, 3, result.Count(model.StatusSuccess))
	require.Len(t, result.Failed(), 1)

	assert.Equal(t, []string{
		"modified:" + modified,
		"added:" + added,
		"removed:" + removed,
	}, order)
}

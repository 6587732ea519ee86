package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajkula/plistener/domain/model"
)

func newTestHistory(env *testEnv) *historyService {
	return NewHistoryService(env.versions, env.changes, env.reader, env.publisher, env.logger)
}

func TestListChanges(t *testing.T) {
	env := newTestEnv(t)
	history := newTestHistory(env)
	ctx := context.Background()

	a := env.write(t, "a.yml", "x: 1\n", baseTime)
	b := env.write(t, "b.yml", "y: 1\n", baseTime)
	_, err := env.processor.Added(a)
	require.NoError(t, err)
	_, err = env.processor.Added(b)
	require.NoError(t, err)
	env.write(t, "a.yml", "x: 2\n", baseTime.Add(time.Second))
	_, err = env.processor.Modified(a)
	require.NoError(t, err)

	all, err := history.ListChanges(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, model.EventModified, all[0].Type)
	assert.Equal(t, b, all[1].Path)
	assert.Equal(t, model.EventAdded, all[2].Type)

	onlyA, err := history.ListChanges(ctx, a+"/")
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	for _, event := range onlyA {
		assert.Equal(t, a, event.Path)
	}

	got, err := history.GetChange(ctx, all[1].ID)
	require.NoError(t, err)
	assert.Equal(t, b, got.Path)

	_, err = history.GetChange(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrChangeNotFound)
}

func TestSortNewestFirstTieBreak(t *testing.T) {
	at := baseTime
	events := []*model.ChangeEvent{
		{ID: "a", Time: at},
		{ID: "c", Time: at.Add(time.Second)},
		{ID: "b", Time: at},
	}

	SortNewestFirst(events)
	assert.Equal(t, "c", events[0].ID)
	assert.Equal(t, "b", events[1].ID)
	assert.Equal(t, "a", events[2].ID)
}

func TestFileHistory(t *testing.T) {
	env := newTestEnv(t)
	history := newTestHistory(env)
	ctx := context.Background()

	path := env.write(t, "a.yml", "x: 1\n", baseTime)
	_, err := env.processor.Added(path)
	require.NoError(t, err)
	env.write(t, "a.yml", "x: 2\n", baseTime.Add(time.Second))
	_, err = env.processor.Modified(path)
	require.NoError(t, err)

	versions, err := history.FileHistory(ctx, path)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.True(t, versions[0].Time.Before(versions[1].Time))

	_, err = history.FileHistory(ctx, "")
	assert.Error(t, err)
}

func TestViewVersion(t *testing.T) {
	env := newTestEnv(t)
	history := newTestHistory(env)
	ctx := context.Background()

	path := env.write(t, "a.yml", "x: 1\nnested:\n  flag: true\n", baseTime)
	added, err := env.processor.Added(path)
	require.NoError(t, err)
	env.write(t, "a.yml", "x: 2\nnested:\n  flag: true\n", baseTime.Add(time.Second))
	modified, err := env.processor.Modified(path)
	require.NoError(t, err)

	view, err := history.ViewVersion(ctx, added.Current.Path)
	require.NoError(t, err)

	assert.Equal(t, path, view.Version.SystemPath)
	assert.True(t, model.Equal(model.Dict{
		"x":      model.Int(1),
		"nested": model.Dict{"flag": model.Bool(true)},
	}, view.Data))

	require.Len(t, view.Leaves, 2)
	assert.Equal(t, model.Leaf{Key: "nested.flag", Type: "bool", Value: model.Bool(true)}, view.Leaves[0])
	assert.Equal(t, model.Leaf{Key: "x", Type: "int", Value: model.Int(1)}, view.Leaves[1])

	// current of the added event, prev of the modified one
	require.Len(t, view.Seen, 2)
	assert.Equal(t, modified.ID, view.Seen[0].ID)
	assert.Equal(t, added.ID, view.Seen[1].ID)

	_, err = history.ViewVersion(ctx, path)
	assert.ErrorIs(t, err, model.ErrVersionNotFound)
}

func TestHistorySubscribe(t *testing.T) {
	env := newTestEnv(t)
	history := newTestHistory(env)

	received := make(chan *model.ChangeEvent, 1)
	id, err := history.Subscribe(func(event *model.ChangeEvent) error {
		received <- event
		return nil
	})
	require.NoError(t, err)

	path := env.write(t, "a.yml", "x: 1\n", baseTime)
	_, err = env.processor.Added(path)
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, path, event.Path)
	default:
		t.Fatal("subscriber was not notified")
	}

	require.NoError(t, history.Unsubscribe(id))
	assert.Error(t, history.Unsubscribe(id))

	noFeed := NewHistoryService(env.versions, env.changes, env.reader, nil, env.logger)
	_, err = noFeed.Subscribe(func(*model.ChangeEvent) error { return nil })
	assert.Error(t, err)
}

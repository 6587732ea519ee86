package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ajkula/plistener/adapter/outbound/reader"
	"github.com/ajkula/plistener/adapter/outbound/storage"
	"github.com/ajkula/plistener/adapter/outbound/storage/memory"
	"github.com/ajkula/plistener/domain/model"
)

type logEntry struct {
	level string
	msg   string
}

type mockLogger struct {
	mu   sync.Mutex
	logs []logEntry
}

func (m *mockLogger) record(level, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, logEntry{level: level, msg: msg})
}

func (m *mockLogger) Debug(msg string, args ...any) { m.record("debug", msg) }
func (m *mockLogger) Info(msg string, args ...any)  { m.record("info", msg) }
func (m *mockLogger) Warn(msg string, args ...any)  { m.record("warn", msg) }
func (m *mockLogger) Error(msg string, args ...any) { m.record("error", msg) }
func (m *mockLogger) UpdateLevel(level string)      {}
func (m *mockLogger) Shutdown()                     {}

func (m *mockLogger) has(level, msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.logs {
		if entry.level == level && entry.msg == msg {
			return true
		}
	}
	return false
}

// testClock is a settable clock; each reading advances it by a millisecond
// so that records written in sequence get distinct identities
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(time.Millisecond)
	return now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var baseTime = time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)

// testEnv wires the real file-backed adapters under temp dirs
type testEnv struct {
	work      string
	root      string
	clock     *testClock
	logger    *mockLogger
	versions  *storage.FileVersionStore
	changes   *storage.FileChangeRepository
	reader    *reader.Reader
	publisher *memory.SubscriptionRegistry
	processor *eventProcessor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		work:   t.TempDir(),
		root:   t.TempDir(),
		clock:  &testClock{now: baseTime.Add(time.Hour)},
		logger: &mockLogger{},
	}

	var err error
	env.versions, err = storage.NewFileVersionStore(filepath.Join(env.work, "data"), env.logger)
	require.NoError(t, err)
	env.changes, err = storage.NewFileChangeRepository(filepath.Join(env.work, "changes"), env.clock.Now, env.logger)
	require.NoError(t, err)

	env.reader = reader.New(env.logger)
	env.publisher = memory.NewSubscriptionRegistry(env.logger)
	env.processor = NewEventProcessor(env.versions, env.changes, env.reader, env.publisher, env.logger)
	return env
}

// write creates or replaces a watched file with the given modification time
func (e *testEnv) write(t *testing.T, name, content string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(e.root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func (e *testEnv) events(t *testing.T) []*model.ChangeEvent {
	t.Helper()
	events, err := e.changes.List()
	require.NoError(t, err)
	SortNewestFirst(events)
	return events
}

// count is safe to call from assertion goroutines
func (e *testEnv) count() int {
	events, err := e.changes.List()
	if err != nil {
		return -1
	}
	return len(events)
}

// failingRecorder wraps a recorder and fails the selected operations
type failingRecorder struct {
	*storage.FileChangeRepository
	recordErr      error
	recordErrorErr error
}

func (f *failingRecorder) Record(
	systemPath string,
	eventType model.EventType,
	current, prev *model.VersionRef,
	diff []model.DiffOp,
) (*model.ChangeEvent, error) {
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	return f.FileChangeRepository.Record(systemPath, eventType, current, prev, diff)
}

func (f *failingRecorder) RecordError(systemPath string, eventType model.EventType, cause error) (*model.ChangeEvent, error) {
	if f.recordErrorErr != nil {
		return nil, f.recordErrorErr
	}
	return f.FileChangeRepository.RecordError(systemPath, eventType, cause)
}

// fakeWatcher feeds batches by hand
type fakeWatcher struct {
	mu      sync.Mutex
	roots   []string
	batches chan model.Batch
	errors  chan error
	stopped bool
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		batches: make(chan model.Batch, 10),
		errors:  make(chan error, 10),
	}
}

func (w *fakeWatcher) Watch(ctx context.Context, root string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.roots = append(w.roots, root)
	return nil
}

func (w *fakeWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	return nil
}

func (w *fakeWatcher) Batches() <-chan model.Batch { return w.batches }
func (w *fakeWatcher) Errors() <-chan error        { return w.errors }

func (w *fakeWatcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.roots) > 0 && !w.stopped
}

func (w *fakeWatcher) GetWatchedPaths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

func (w *fakeWatcher) isStopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type mockLogger struct {
	mu   sync.Mutex
	logs []string
}

func (m *mockLogger) record(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, msg)
}

func (m *mockLogger) Debug(msg string, args ...any) { m.record(msg) }
func (m *mockLogger) Info(msg string, args ...any)  { m.record(msg) }
func (m *mockLogger) Warn(msg string, args ...any)  { m.record(msg) }
func (m *mockLogger) Error(msg string, args ...any) { m.record(msg) }

func (m *mockLogger) UpdateLevel(level string) {}

func (m *mockLogger) Shutdown() {}

func (m *mockLogger) contains(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.logs {
		if l == msg {
			return true
		}
	}
	return false
}

// writeSource writes a watched file with a fixed modification time
func writeSource(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

// fixedClock returns a clock that always reports t
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

package machineid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type mockLogger struct {
	warns int
}

func (m *mockLogger) Debug(msg string, args ...any) {}
func (m *mockLogger) Info(msg string, args ...any)  {}
func (m *mockLogger) Warn(msg string, args ...any)  { m.warns++ }
func (m *mockLogger) Error(msg string, args ...any) {}
func (m *mockLogger) UpdateLevel(level string)      {}
func (m *mockLogger) Shutdown()                     {}

type stubMachineID struct {
	id  string
	err error
}

func (s stubMachineID) GetMachineID() (string, error) {
	return s.id, s.err
}

func TestInstanceID(t *testing.T) {
	logger := &mockLogger{}

	assert.Equal(t, "0123456789ab", InstanceID(stubMachineID{id: "0123456789abcdef0123"}, logger))
	assert.Equal(t, "short", InstanceID(stubMachineID{id: "short"}, logger))
	assert.Equal(t, 0, logger.warns)

	assert.Equal(t, "unknown", InstanceID(stubMachineID{err: errors.New("no /etc/machine-id")}, logger))
	assert.Equal(t, 1, logger.warns)
}

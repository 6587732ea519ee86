package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajkula/plistener/config"
	"github.com/ajkula/plistener/domain/port/outbound"
)

type nopLogger struct{}

func (nopLogger) Error(msg string, args ...any) {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) UpdateLevel(logLvl string)     {}
func (nopLogger) Shutdown()                     {}

func testRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{
		NewLogger: func(*config.Config) outbound.Logger { return nopLogger{} },
	})
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := testRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const dockPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>autohide</key>
	<true/>
	<key>tilesize</key>
	<integer>48</integer>
</dict>
</plist>
`

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "plistener", cmd.Use)
	assert.Contains(t, cmd.Long, "structured diff")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "scan", "prune", "clear", "reset", "changes", "init", "version"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	dirFlag := cmd.PersistentFlags().Lookup("dir")
	require.NotNil(t, dirFlag)
	assert.Equal(t, "d", dirFlag.Shorthand)
	assert.Equal(t, ".", dirFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}

func TestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	cases := []struct {
		command string
		flag    string
		defVal  string
	}{
		{"run", "http", "false"},
		{"scan", "path", "[]"},
		{"prune", "keep", "0"},
		{"changes", "path", ""},
		{"changes", "limit", "0"},
		{"init", "force", "false"},
	}

	for _, tc := range cases {
		t.Run(tc.command+"/"+tc.flag, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{tc.command})
			require.NoError(t, err)
			flag := subCmd.Flags().Lookup(tc.flag)
			require.NotNil(t, flag)
			assert.Equal(t, tc.defVal, flag.DefValue)
		})
	}
}

func TestInitWritesDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "init", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, config.DefaultFileName))

	_, err = os.Stat(filepath.Join(dir, config.DefaultFileName))
	require.NoError(t, err)

	_, err = execute(t, "init", "--dir", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "init", "--dir", dir, "--force")
	require.NoError(t, err)
}

func TestScanChangesAndReset(t *testing.T) {
	workDir := t.TempDir()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "com.apple.dock.plist"), []byte(dockPlist), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("ignored"), 0644))

	out, err := execute(t, "scan", "--dir", workDir, "--path", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Processed 1 file(s): 1 ok, 0 recoverable, 0 fatal")

	// nothing changed, nothing to process
	out, err = execute(t, "scan", "--dir", workDir, "--path", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Processed 0 file(s)")

	out, err = execute(t, "changes", "--dir", workDir, "--path", filepath.Join(root, "com.apple.dock.plist"))
	require.NoError(t, err)
	assert.Contains(t, out, "type: added")
	assert.Contains(t, out, "key: autohide")
	assert.Contains(t, out, "key: tilesize")

	_, err = execute(t, "changes", "--dir", workDir, "no-such-change")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = execute(t, "clear", "--dir", workDir)
	require.NoError(t, err)
	out, err = execute(t, "changes", "--dir", workDir)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = execute(t, "reset", "--dir", workDir)
	require.NoError(t, err)

	// versions are gone too, so the file is added again
	out, err = execute(t, "scan", "--dir", workDir, "--path", root)
	require.NoError(t, err)
	assert.Contains(t, out, "1 ok")
}

func TestPruneRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.DefaultFileName),
		[]byte("retention:\n  keepMinutes: -5\n"), 0644))

	_, err := execute(t, "prune", "--dir", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPrune(t *testing.T) {
	out, err := execute(t, "prune", "--dir", t.TempDir(), "--keep", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 0 change(s) and 0 version(s)")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "plistener "+Version)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad", nil)))
	assert.Equal(t, ExitFailure, GetExitCode(os.ErrNotExist))

	err := WrapExitError(ExitFailure, "scan failed", os.ErrNotExist)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, "scan failed: file does not exist", err.Error())
}

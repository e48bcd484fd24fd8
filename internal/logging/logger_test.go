package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveLogPathUsesXDGStateHome(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)
	t.Setenv("HOME", t.TempDir())

	path, err := resolveLogPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdgStateHome, "trace", "log.jsonl"), path)
}

func TestResolveLogPathFallsBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)

	path, err := resolveLogPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "state", "trace", "log.jsonl"), path)
}

func TestNewCreatesWritableJSONLogFile(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	runtime, err := New(Options{})
	require.NoError(t, err)

	runtime.Logger.Info("unit-test-log", "component", "logging")
	runtime.Logger.Debug("hidden-debug-line")
	require.NoError(t, runtime.Close())

	contents, err := os.ReadFile(runtime.Path)
	require.NoError(t, err)
	require.Contains(t, string(contents), `"msg":"unit-test-log"`)
	require.Contains(t, string(contents), `"component":"logging"`)
	require.Contains(t, string(contents), `"pid":`)
	require.NotContains(t, string(contents), "hidden-debug-line")

	stat, err := os.Stat(runtime.Path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), stat.Mode().Perm())
}

func TestNewVerboseMirrorsDebugRecords(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	var mirror bytes.Buffer
	runtime, err := New(Options{Verbose: true, Mirror: &mirror})
	require.NoError(t, err)

	runtime.Logger.Debug("debug-line", "route", "/analyze")
	require.NoError(t, runtime.Close())

	require.Contains(t, mirror.String(), `"msg":"debug-line"`)
	contents, err := os.ReadFile(runtime.Path)
	require.NoError(t, err)
	require.Contains(t, string(contents), `"route":"/analyze"`)
}

func TestDiscardAcceptsRecords(t *testing.T) {
	logger := Discard()
	logger.Info("dropped")
	require.NotNil(t, logger)
}

// Package logging configures runtime JSONL logging output.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options tunes the runtime logger.
type Options struct {
	// Verbose lowers the level to debug.
	Verbose bool
	// Mirror, when set, also receives every record (e.g. stderr for `trace serve`).
	Mirror io.Writer
}

// Runtime bundles the configured logger and its open file handle lifecycle.
type Runtime struct {
	Logger *slog.Logger
	Path   string
	closer io.Closer
}

// Close flushes and closes the logger output sink.
func (r Runtime) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// New builds a JSONL logger rooted at the resolved state path.
func New(opts Options) (Runtime, error) {
	path, err := resolveLogPath()
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Runtime{}, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return Runtime{}, err
	}

	var sink io.Writer = f
	if opts.Mirror != nil {
		sink = io.MultiWriter(f, opts.Mirror)
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: level})
	logger := slog.New(h).With("pid", os.Getpid())
	return Runtime{Logger: logger, Path: path, closer: f}, nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// StateDir returns the per-user trace state directory.
func StateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "trace"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "trace"), nil
}

func resolveLogPath() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "log.jsonl"), nil
}

// Package dump writes optional debug artifacts (raw model replies and captured
// audio) under the trace state directory.
package dump

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/trace/internal/config"
	"github.com/rbright/trace/internal/logging"
	"github.com/rbright/trace/internal/payload"
)

// Writer persists debug artifacts. A nil Writer, or one with every dump
// disabled, does nothing.
type Writer struct {
	cfg    config.DebugConfig
	logger *slog.Logger
	dir    string
	now    func() time.Time
}

// New builds a Writer rooted at $XDG_STATE_HOME/trace/debug.
func New(cfg config.DebugConfig, logger *slog.Logger) *Writer {
	return &Writer{cfg: cfg, logger: logger, now: time.Now}
}

// Enabled reports whether any artifact kind is enabled.
func (w *Writer) Enabled() bool {
	return w != nil && (w.cfg.EnableAudioDump || w.cfg.EnableResponseDump)
}

// Response stores the raw model reply text.
func (w *Writer) Response(text string) {
	if w == nil || !w.cfg.EnableResponseDump || text == "" {
		return
	}
	path, err := w.write("response", "txt", []byte(text))
	w.report("response", path, err)
}

// Audio stores the captured clip bytes.
func (w *Writer) Audio(p *payload.Payload) {
	if w == nil || !w.cfg.EnableAudioDump || p == nil || p.SizeBytes() == 0 {
		return
	}
	ext := strings.TrimPrefix(filepath.Ext(p.Name()), ".")
	if ext == "" {
		ext = "bin"
	}
	path, err := w.write("audio", ext, p.Data())
	w.report("audio", path, err)
}

// Dir returns the resolved debug directory.
func (w *Writer) Dir() (string, error) {
	if w.dir != "" {
		return w.dir, nil
	}
	stateDir, err := logging.StateDir()
	if err != nil {
		return "", fmt.Errorf("resolve state dir: %w", err)
	}
	return filepath.Join(stateDir, "debug"), nil
}

func (w *Writer) write(prefix string, extension string, data []byte) (string, error) {
	dir, err := w.Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := w.now().Format("20060102-150405.000")
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write debug file %q: %w", path, err)
	}
	return path, nil
}

func (w *Writer) report(kind string, path string, err error) {
	if w.logger == nil {
		return
	}
	if err != nil {
		w.logger.Warn("debug dump failed", "kind", kind, "error", err.Error())
		return
	}
	w.logger.Debug("debug dump written", "kind", kind, "path", path)
}

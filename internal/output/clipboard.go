// Package output applies report side effects outside the terminal.
package output

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/trace/internal/analysis"
	"github.com/rbright/trace/internal/config"
)

const clipboardTimeout = 2 * time.Second

// Clipboard copies a report's one-line summary through the configured command.
type Clipboard struct {
	argv   []string
	logger *slog.Logger
}

// NewClipboard constructs a clipboard writer from runtime config.
func NewClipboard(cmd config.CommandConfig, logger *slog.Logger) *Clipboard {
	return &Clipboard{argv: cmd.Argv, logger: logger}
}

// CopySummary writes the verdict line to the clipboard.
func (c *Clipboard) CopySummary(ctx context.Context, report analysis.Report) error {
	text := SummaryLine(report)
	if text == "" {
		return nil
	}

	clipboardCtx, cancel := context.WithTimeout(ctx, clipboardTimeout)
	defer cancel()
	if err := runCommandWithInput(clipboardCtx, c.argv, text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	if c.logger != nil {
		c.logger.Debug("report summary copied", "decision", string(report.Decision))
	}
	return nil
}

// SummaryLine renders "DECISION: summary". Empty for a zero report.
func SummaryLine(report analysis.Report) string {
	if report.Decision == "" {
		return ""
	}
	summary := strings.TrimSpace(report.Summary)
	if summary == "" {
		return string(report.Decision)
	}
	return string(report.Decision) + ": " + summary
}

// runCommandWithInput executes argv and optionally writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}

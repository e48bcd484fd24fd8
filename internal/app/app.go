// Package app wires the trace command tree to config, logging, and the runtime packages.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/rbright/trace/internal/analysis"
	"github.com/rbright/trace/internal/audio"
	"github.com/rbright/trace/internal/cli"
	"github.com/rbright/trace/internal/config"
	"github.com/rbright/trace/internal/dump"
	"github.com/rbright/trace/internal/ipc"
	"github.com/rbright/trace/internal/logging"
)

// errReported marks a failure whose details were already written for the user.
var errReported = errors.New("failure reported")

// Runner executes one trace invocation. Zero-value hooks select the production collaborators.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	// NewAnalyzer replaces the Gemini client.
	NewAnalyzer func(cfg config.Loaded, logger *slog.Logger, dumps *dump.Writer) analysis.Analyzer
	// Opener replaces the PulseAudio input opener used by record.
	Opener audio.DeviceOpener
	// SelectDevice replaces live device selection in doctor.
	SelectDevice func(ctx context.Context, input string, fallback string) (audio.Selection, error)
}

var _ cli.Handlers = Runner{}

// Execute runs a Runner over the process streams.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

// Execute parses args, dispatches the command, and returns the process exit code:
// 0 on success, 2 for invalid usage, 1 for everything else.
func (r Runner) Execute(ctx context.Context, args []string) int {
	root := cli.NewRoot(r, r.Stdout, r.Stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case cli.IsUsage(err):
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, root.UsageString())
		return 2
	case errors.Is(err, errReported):
		return 1
	default:
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
}

// env is the per-command runtime: loaded config plus the open log sink.
type env struct {
	loaded config.Loaded
	logger *slog.Logger
	close  func()
}

func (r Runner) setup(g cli.Globals, command string) (env, error) {
	var mirror io.Writer
	if g.Verbose {
		mirror = r.Stderr
	}
	logRuntime, err := logging.New(logging.Options{Verbose: g.Verbose, Mirror: mirror})
	if err != nil {
		return env{}, fmt.Errorf("setup logging: %w", err)
	}

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	loaded, err := config.Load(g.ConfigPath)
	if err != nil {
		logger.Error("load config failed", "error", err.Error())
		_ = logRuntime.Close()
		return env{}, err
	}
	for _, w := range loaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", command,
		"config", loaded.Path,
		"config_exists", loaded.Exists,
		"log", logRuntime.Path,
	)

	return env{
		loaded: loaded,
		logger: logger,
		close:  func() { _ = logRuntime.Close() },
	}, nil
}

// analyzer builds the configured analyzer and reports whether a credential is present.
func (r Runner) analyzer(e env, dumps *dump.Writer) (analysis.Analyzer, bool) {
	configured := strings.TrimSpace(e.loaded.APIKey) != ""
	if r.NewAnalyzer != nil {
		return r.NewAnalyzer(e.loaded, e.logger, dumps), configured
	}

	cfg := e.loaded.Config.Analysis
	return analysis.New(analysis.Options{
		APIKey:     e.loaded.APIKey,
		APIKeyEnv:  cfg.APIKeyEnv,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		APIVersion: cfg.APIVersion,
		Timeout:    cfg.Timeout(),
		Logger:     e.logger,
		OnReply:    dumps.Response,
	}), configured
}

// Forward relays stop, cancel, or reset to the running record owner.
func (r Runner) Forward(ctx context.Context, _ cli.Globals, command string) error {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		return errors.New("no active trace recording")
	}
	if err != nil {
		return err
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return nil
}

// Status prints the record owner's state, or idle when none is running.
func (r Runner) Status(ctx context.Context, _ cli.Globals) error {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return nil
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandStatus)
	if !handled {
		fmt.Fprintln(r.Stdout, "idle")
		return nil
	}
	if err != nil {
		return err
	}
	if resp.State == "" {
		resp.State = "idle"
	}
	if resp.Message == "" {
		fmt.Fprintln(r.Stdout, resp.State)
		return nil
	}
	fmt.Fprintf(r.Stdout, "%s: %s\n", resp.State, resp.Message)
	return nil
}

func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, 220*time.Millisecond)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) {
		return ipc.Response{}, false, nil
	}
	if isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

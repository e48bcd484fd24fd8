// Package doctor runs readiness diagnostics for config, credentials, tools, audio, and the API server.
package doctor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/trace/internal/audio"
	"github.com/rbright/trace/internal/config"
	"github.com/rbright/trace/internal/probe"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Options selects optional checks and overrides live collaborators.
type Options struct {
	// Server probes the configured HTTP and gRPC listeners.
	Server bool
	// SelectDevice defaults to audio.SelectDevice.
	SelectDevice func(ctx context.Context, input string, fallback string) (audio.Selection, error)
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded, opts Options) Report {
	if opts.SelectDevice == nil {
		opts.SelectDevice = audio.SelectDevice
	}

	checks := []Check{checkConfig(cfg), checkAPIKey(cfg)}

	if cfg.Config.Report.CopySummary {
		checks = append(checks, checkCommand(cfg.Config.Clipboard.Argv, "clipboard_cmd"))
	}
	if cfg.Config.Indicator.Enable {
		checks = append(checks, checkBinary("busctl", "desktop notifications"))
	}

	checks = append(checks, checkAudioSelection(ctx, cfg.Config, opts.SelectDevice))

	if opts.Server {
		checks = append(checks, checkServerHTTP(ctx, cfg.Config), checkServerGRPC(ctx, cfg.Config))
	}

	return Report{Checks: checks}
}

func checkConfig(cfg config.Loaded) Check {
	if !cfg.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", cfg.Path)}
	}
	return Check{Name: "config", Pass: true, Message: fmt.Sprintf("loaded %q", cfg.Path)}
}

// checkAPIKey reports whether the credential environment variable is populated.
func checkAPIKey(cfg config.Loaded) Check {
	name := cfg.Config.Analysis.APIKeyEnv
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Check{Name: "analysis.api_key", Pass: false, Message: fmt.Sprintf("%s is not set", name)}
	}
	return Check{
		Name:    "analysis.api_key",
		Pass:    true,
		Message: fmt.Sprintf("%s is set (model %s)", name, cfg.Config.Analysis.Model),
	}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(
	ctx context.Context,
	cfg config.Config,
	selectDevice func(context.Context, string, string) (audio.Selection, error),
) Check {
	selection, err := selectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

func checkServerHTTP(ctx context.Context, cfg config.Config) Check {
	result, err := probe.HTTP(ctx, cfg.Server.Listen, probeTimeout)
	if err != nil {
		return Check{Name: "server.http", Pass: false, Message: err.Error()}
	}
	if !result.Serving {
		return Check{Name: "server.http", Pass: false, Message: fmt.Sprintf("%s from %s", result.Status, result.Address)}
	}
	return Check{Name: "server.http", Pass: true, Message: fmt.Sprintf("%s at %s", result.Status, result.Address)}
}

func checkServerGRPC(ctx context.Context, cfg config.Config) Check {
	result, err := probe.GRPC(ctx, cfg.Server.GRPCListen, probe.ServiceName, probeTimeout)
	if err != nil {
		return Check{Name: "server.grpc", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("%s reports %s", result.Address, result.Status)
	return Check{Name: "server.grpc", Pass: result.Serving, Message: message}
}

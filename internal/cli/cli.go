// Package cli defines the trace command tree. Command behavior lives behind
// the Handlers interface so the tree can be exercised without devices or
// network access.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// Globals are the persistent flags shared by every command.
type Globals struct {
	ConfigPath string
	Verbose    bool
}

// RenderOptions override the report section of the config for one invocation.
type RenderOptions struct {
	Format  string
	NoColor bool
	Copy    bool
}

// AnalyzeOptions configures `trace analyze`.
type AnalyzeOptions struct {
	Path string
	RenderOptions
}

// RecordOptions configures `trace record`.
type RecordOptions struct {
	Duration time.Duration
	RenderOptions
}

// HealthOptions configures `trace health`.
type HealthOptions struct {
	GRPCAddr string
	HTTPAddr string
	Timeout  time.Duration
}

// DoctorOptions configures `trace doctor`.
type DoctorOptions struct {
	Server bool
}

// Handlers implements the behavior behind each command.
type Handlers interface {
	Analyze(context.Context, Globals, AnalyzeOptions) error
	Record(context.Context, Globals, RecordOptions) error
	Forward(ctx context.Context, g Globals, command string) error
	Status(context.Context, Globals) error
	Serve(context.Context, Globals) error
	Health(context.Context, Globals, HealthOptions) error
	Devices(context.Context, Globals) error
	Doctor(context.Context, Globals, DoctorOptions) error
	Version(context.Context, Globals) error
}

// UsageError marks invalid invocations (exit status 2).
type UsageError struct {
	Err error
}

func (e UsageError) Error() string { return e.Err.Error() }
func (e UsageError) Unwrap() error { return e.Err }

// IsUsage reports whether err stems from an invalid invocation.
func IsUsage(err error) bool {
	var usage UsageError
	return errors.As(err, &usage)
}

// usageArgs wraps a cobra positional-args validator so failures become usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return UsageError{Err: err}
		}
		return nil
	}
}

// NewRoot builds the command tree.
func NewRoot(h Handlers, stdout io.Writer, stderr io.Writer) *cobra.Command {
	var g Globals

	root := &cobra.Command{
		Use:   "trace",
		Short: "Screen speech recordings for synthetic voices",
		Long: `trace submits an audio clip to a hosted Gemini model with a fixed forensic
prompt and reports whether the speech is authentic (BONAFIDE) or synthetic (SPOOF).

Configuration is read from $XDG_CONFIG_HOME/trace/config.yaml; the API key is read
from the environment variable named by analysis.api_key_env (default GEMINI_API_KEY).

Examples:
  trace analyze interview.wav
  trace analyze --format json clip.mp3
  trace record --duration 10s
  trace serve`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return UsageError{Err: err}
	})
	root.PersistentFlags().StringVar(&g.ConfigPath, "config", "", "config file path (default $XDG_CONFIG_HOME/trace/config.yaml)")
	root.PersistentFlags().BoolVarP(&g.Verbose, "verbose", "v", false, "debug-level logging")

	root.AddCommand(
		newAnalyzeCmd(h, &g),
		newRecordCmd(h, &g),
		newForwardCmd(h, &g, "stop", "Stop the active recording and analyze it"),
		newForwardCmd(h, &g, "cancel", "Cancel the active recording and discard it"),
		newForwardCmd(h, &g, "reset", "Clear the report or error of the active recording session"),
		&cobra.Command{
			Use:   "status",
			Short: "Print the state of the active recording session",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				return h.Status(cmd.Context(), g)
			},
		},
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API, WebSocket events, and gRPC health service",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				return h.Serve(cmd.Context(), g)
			},
		},
		newHealthCmd(h, &g),
		&cobra.Command{
			Use:   "devices",
			Short: "List available input devices",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				return h.Devices(cmd.Context(), g)
			},
		},
		newDoctorCmd(h, &g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				return h.Version(cmd.Context(), g)
			},
		},
	)

	return root
}

func addRenderFlags(cmd *cobra.Command, opts *RenderOptions) {
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "output format: text, json, or yaml (default from config)")
	cmd.Flags().BoolVar(&opts.NoColor, "no-color", false, "disable colored text output")
	cmd.Flags().BoolVar(&opts.Copy, "copy", false, "copy the verdict summary to the clipboard")
}

func newAnalyzeCmd(h Handlers, g *Globals) *cobra.Command {
	var opts AnalyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Analyze an audio file",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Path = args[0]
			return h.Analyze(cmd.Context(), *g, opts)
		},
	}
	addRenderFlags(cmd, &opts.RenderOptions)
	return cmd
}

func newRecordCmd(h Handlers, g *Globals) *cobra.Command {
	var opts RecordOptions
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the microphone until `trace stop`, then analyze",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Duration < 0 {
				return UsageError{Err: fmt.Errorf("--duration must be >= 0")}
			}
			return h.Record(cmd.Context(), *g, opts)
		},
	}
	cmd.Flags().DurationVarP(&opts.Duration, "duration", "d", 0, "stop automatically after this long (0 waits for `trace stop`)")
	addRenderFlags(cmd, &opts.RenderOptions)
	return cmd
}

func newForwardCmd(h Handlers, g *Globals, command string, short string) *cobra.Command {
	return &cobra.Command{
		Use:   command,
		Short: short,
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return h.Forward(cmd.Context(), *g, command)
		},
	}
}

func newHealthCmd(h Handlers, g *Globals) *cobra.Command {
	var opts HealthOptions
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe a running `trace serve` over gRPC health and HTTP",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return h.Health(cmd.Context(), *g, opts)
		},
	}
	cmd.Flags().StringVar(&opts.GRPCAddr, "grpc", "", "gRPC health address (default server.grpc_listen)")
	cmd.Flags().StringVar(&opts.HTTPAddr, "http", "", "HTTP address (default server.listen)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 2*time.Second, "probe timeout")
	return cmd
}

func newDoctorCmd(h Handlers, g *Globals) *cobra.Command {
	var opts DoctorOptions
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run configuration and environment checks",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return h.Doctor(cmd.Context(), *g, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Server, "server", false, "also probe the configured `trace serve` listeners")
	return cmd
}

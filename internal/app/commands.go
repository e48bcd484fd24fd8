package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rbright/trace/internal/analysis"
	"github.com/rbright/trace/internal/audio"
	"github.com/rbright/trace/internal/cli"
	"github.com/rbright/trace/internal/doctor"
	"github.com/rbright/trace/internal/dump"
	"github.com/rbright/trace/internal/metrics"
	"github.com/rbright/trace/internal/probe"
	"github.com/rbright/trace/internal/server"
	"github.com/rbright/trace/internal/version"
)

// Serve runs the HTTP API and gRPC health service until ctx is done.
func (r Runner) Serve(ctx context.Context, g cli.Globals) error {
	e, err := r.setup(g, "serve")
	if err != nil {
		return err
	}
	defer e.close()

	provider, err := metrics.NewProvider(metrics.ProviderConfig{
		ServiceName:    "trace",
		ServiceVersion: version.Version,
	})
	if err != nil {
		return fmt.Errorf("setup metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			e.logger.Warn("metrics shutdown failed", "error", err.Error())
		}
	}()

	cfg := e.loaded.Config
	analyzer, configured := r.analyzer(e, dump.New(cfg.Debug, e.logger))
	if !configured {
		fmt.Fprintf(r.Stderr, "warning: %s is not set; analysis requests will fail\n", cfg.Analysis.APIKeyEnv)
	}

	srv := server.New(server.Options{
		Config:         cfg.Server,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		Analyzer:       analysis.WithMetrics(analyzer, provider.Metrics),
		Configured:     configured,
		Metrics:        provider.Metrics,
		MetricsHandler: provider.Handler,
		Logger:         e.logger,
	})
	fmt.Fprintf(r.Stderr, "trace serving http on %s, grpc health on %s\n", cfg.Server.Listen, cfg.Server.GRPCListen)
	return srv.Run(ctx)
}

// Health probes a running server over gRPC health and HTTP.
func (r Runner) Health(ctx context.Context, g cli.Globals, opts cli.HealthOptions) error {
	e, err := r.setup(g, "health")
	if err != nil {
		return err
	}
	defer e.close()

	grpcAddr := opts.GRPCAddr
	if grpcAddr == "" {
		grpcAddr = e.loaded.Config.Server.GRPCListen
	}
	httpAddr := opts.HTTPAddr
	if httpAddr == "" {
		httpAddr = e.loaded.Config.Server.Listen
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	healthy := true
	if result, err := probe.GRPC(ctx, grpcAddr, probe.ServiceName, timeout); err != nil {
		healthy = false
		fmt.Fprintf(r.Stdout, "grpc  %s  %v\n", grpcAddr, err)
	} else {
		healthy = healthy && result.Serving
		fmt.Fprintf(r.Stdout, "grpc  %s  %s\n", result.Address, result.Status)
	}
	if result, err := probe.HTTP(ctx, httpAddr, timeout); err != nil {
		healthy = false
		fmt.Fprintf(r.Stdout, "http  %s  %v\n", httpAddr, err)
	} else {
		healthy = healthy && result.Serving
		fmt.Fprintf(r.Stdout, "http  %s  %s\n", result.Address, result.Status)
	}

	e.logger.Info("health probe", "grpc", grpcAddr, "http", httpAddr, "healthy", healthy)
	if !healthy {
		return errReported
	}
	return nil
}

// Devices lists Pulse input sources.
func (r Runner) Devices(ctx context.Context, _ cli.Globals) error {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return errReported
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}
	return nil
}

// Doctor prints readiness checks.
func (r Runner) Doctor(ctx context.Context, g cli.Globals, opts cli.DoctorOptions) error {
	e, err := r.setup(g, "doctor")
	if err != nil {
		return err
	}
	defer e.close()

	result := doctor.Run(ctx, e.loaded, doctor.Options{Server: opts.Server, SelectDevice: r.SelectDevice})
	fmt.Fprintln(r.Stdout, result.String())
	if !result.OK() {
		return errReported
	}
	return nil
}

// Version prints build metadata.
func (r Runner) Version(context.Context, cli.Globals) error {
	fmt.Fprintln(r.Stdout, version.String())
	return nil
}

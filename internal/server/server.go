// Package server exposes trace over HTTP: the one-shot /analyze endpoint, the
// session API driven by the web front-end, live session events over
// WebSocket, Prometheus metrics, and a gRPC health service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rbright/trace/internal/analysis"
	"github.com/rbright/trace/internal/config"
	"github.com/rbright/trace/internal/metrics"
	"github.com/rbright/trace/internal/payload"
	"github.com/rbright/trace/internal/probe"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 5 * time.Second

// Options wires the server's collaborators. Configured marks the analyzer as
// holding a credential; the gRPC health service reports NOT_SERVING otherwise.
type Options struct {
	Config         config.ServerConfig
	MaxUploadBytes int64
	Analyzer       analysis.Analyzer
	Configured     bool
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// Server owns the HTTP router, the session registry, and the health service.
type Server struct {
	cfg       config.ServerConfig
	maxUpload int64
	analyzer  analysis.Analyzer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	sessions  *registry
	health    *health.Server
	handler   http.Handler
	now       func() time.Time
	upgrader  websocket.Upgrader
}

// New builds a server. Listeners are opened by Run or supplied to Serve.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = payload.DefaultMaxBytes
	}
	if opts.Config.MaxSessions <= 0 {
		opts.Config.MaxSessions = config.Default().Server.MaxSessions
	}
	if opts.Config.SessionIdleTimeoutMS <= 0 {
		opts.Config.SessionIdleTimeoutMS = config.Default().Server.SessionIdleTimeoutMS
	}

	s := &Server{
		cfg:       opts.Config,
		maxUpload: opts.MaxUploadBytes,
		analyzer:  opts.Analyzer,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		health:    health.NewServer(),
		now:       time.Now,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.allowOrigin}
	s.sessions = newRegistry(opts.Config.MaxSessions, opts.Analyzer, opts.Metrics, opts.Logger,
		func() time.Time { return s.now() })

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if opts.Configured {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(probe.ServiceName, status)

	s.handler = s.routes(opts.MetricsHandler)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured addresses and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	httpLis, err := lc.Listen(ctx, "tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", s.cfg.Listen, err)
	}
	grpcLis, err := lc.Listen(ctx, "tcp", s.cfg.GRPCListen)
	if err != nil {
		_ = httpLis.Close()
		return fmt.Errorf("listen grpc %s: %w", s.cfg.GRPCListen, err)
	}
	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve runs the HTTP and gRPC servers on the given listeners until ctx is
// done or either server fails, then shuts both down and closes every session.
// Idle sessions are evicted while it runs.
func (s *Server) Serve(ctx context.Context, httpLis net.Listener, grpcLis net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, s.health)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		s.logger.Info("http server listening", "addr", httpLis.Addr().String())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		s.logger.Info("grpc health server listening", "addr", grpcLis.Addr().String())
		if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve grpc: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		s.sessions.sweep(egCtx, s.cfg.SessionIdleTimeout())
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		s.logger.Info("server shutting down")

		s.health.Shutdown()
		s.sessions.closeAll(context.Background())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		grpcSrv.GracefulStop()
		if err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		return nil
	})

	return eg.Wait()
}

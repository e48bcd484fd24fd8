// Package probe checks the health of a running trace server over gRPC and HTTP.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name registered by `trace serve`.
const ServiceName = "trace.Analyzer"

// Result is the outcome of a health check.
type Result struct {
	Address string
	Status  string
	Serving bool
}

// GRPC dials addr and runs grpc.health.v1 Check for service.
func GRPC(ctx context.Context, addr string, service string, timeout time.Duration) (Result, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Result{}, errors.New("grpc address is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return Result{}, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	conn.Connect()
	if err := waitForReady(ctx, conn); err != nil {
		return Result{}, fmt.Errorf("connect %s: %w", addr, err)
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return Result{}, fmt.Errorf("health check %s: %w", addr, err)
	}

	status := resp.GetStatus()
	return Result{
		Address: addr,
		Status:  status.String(),
		Serving: status == healthpb.HealthCheckResponse_SERVING,
	}, nil
}

// HTTP fetches base + "/healthz" and expects a 2xx reply.
func HTTP(ctx context.Context, base string, timeout time.Duration) (Result, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return Result{}, errors.New("http address is empty")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	url := strings.TrimRight(base, "/") + "/healthz"

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	status := strings.TrimSpace(string(body))
	if status == "" {
		status = resp.Status
	}
	return Result{
		Address: url,
		Status:  status,
		Serving: resp.StatusCode >= 200 && resp.StatusCode < 300,
	}, nil
}

// waitForReady blocks until the connection enters Ready or fails.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}

package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning reports that another `trace record` owns the socket.
var ErrAlreadyRunning = errors.New("trace recording already running")

// RuntimeSocketPath returns $XDG_RUNTIME_DIR/trace.sock.
func RuntimeSocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, "trace.sock"), nil
}

// Acquire listens on path. A socket file left by a crashed owner is removed
// and the listen retried up to retries times; rescue, when set, runs after
// each removal. A responsive owner yields ErrAlreadyRunning, and a probe that
// cannot decide leaves the file in place.
func Acquire(
	ctx context.Context,
	path string,
	probeTimeout time.Duration,
	retries int,
	rescue func(context.Context) error,
) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 0; ; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) && !strings.Contains(err.Error(), "address already in use") {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		if err := reclaimStale(ctx, path, probeTimeout); err != nil {
			return nil, err
		}
		if rescue != nil {
			_ = rescue(ctx)
		}

		if attempt >= retries {
			return nil, fmt.Errorf("failed to acquire socket %s after %d retries", path, retries)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
		}
	}
}

// reclaimStale removes path when nothing answers on it.
func reclaimStale(ctx context.Context, path string, probeTimeout time.Duration) error {
	alive, err := Probe(ctx, path, probeTimeout)
	if alive {
		return ErrAlreadyRunning
	}
	if err != nil {
		return fmt.Errorf("probe existing socket %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	return nil
}

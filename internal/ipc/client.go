package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// Send performs one request/response exchange with the owner at path. The
// whole exchange, dial included, is bounded by timeout.
func Send(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	if err := writeLine(conn, req); err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	var resp Response
	if err := readLine(bufio.NewReader(conn), &resp, "response"); err != nil {
		return Response{}, err
	}
	return resp, nil
}

// Probe reports whether a responsive owner is listening on path. A missing
// socket or refused connection is a definite no.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Send(ctx, path, Request{Command: CommandStatus}, timeout)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ECONNREFUSED):
		return false, nil
	default:
		return false, fmt.Errorf("probe socket: %w", err)
	}
}

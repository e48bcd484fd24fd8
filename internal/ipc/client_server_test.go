package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// startServer serves handler on a fresh socket and returns its path plus a
// stop func that waits for Serve to return cleanly.
func startServer(t *testing.T, handler Handler) (string, func()) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "trace.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, listener, handler) }()

	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		require.NoError(t, <-done)
	}
	t.Cleanup(stop)
	return socketPath, stop
}

// rawServer accepts one connection and hands it to fn.
func rawServer(t *testing.T, fn func(net.Conn)) string {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "trace.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fn(conn)
	}()
	return socketPath
}

func send(t *testing.T, path string, command string) (Response, error) {
	t.Helper()
	return Send(context.Background(), path, Request{Command: command}, 200*time.Millisecond)
}

func TestSendRoundTrip(t *testing.T) {
	var got atomic.Value
	path, _ := startServer(t, HandlerFunc(func(_ context.Context, req Request) Response {
		got.Store(req.Command)
		return Response{OK: true, State: "recording", Message: "capturing", Decision: "BONAFIDE"}
	}))

	resp, err := send(t, path, CommandStatus)
	require.NoError(t, err)
	require.Equal(t, Response{OK: true, State: "recording", Message: "capturing", Decision: "BONAFIDE"}, resp)
	require.Equal(t, CommandStatus, got.Load())
}

func TestSendTransportErrors(t *testing.T) {
	cases := []struct {
		name  string
		serve func(net.Conn)
		want  string
	}{
		{
			name: "garbage reply",
			serve: func(conn net.Conn) {
				_, _ = bufio.NewReader(conn).ReadBytes('\n')
				_, _ = conn.Write([]byte("not-json\n"))
			},
			want: "decode response",
		},
		{
			name: "hangup",
			serve: func(conn net.Conn) {
				_, _ = bufio.NewReader(conn).ReadBytes('\n')
			},
			want: "read response",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := send(t, rawServer(t, tc.serve), CommandStatus)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestServeRejectsBeforeHandler(t *testing.T) {
	var calls atomic.Int32
	path, _ := startServer(t, HandlerFunc(func(context.Context, Request) Response {
		calls.Add(1)
		return Response{OK: true}
	}))

	resp, err := send(t, path, "")
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, "missing command", resp.Error)

	resp, err = send(t, path, "pause")
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, "unknown command: pause", resp.Error)

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("not-json\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)
	var raw Response
	require.NoError(t, json.Unmarshal(line, &raw))
	require.False(t, raw.OK)
	require.Contains(t, raw.Error, "decode request")

	require.Zero(t, calls.Load())
}

func TestProbe(t *testing.T) {
	path, stop := startServer(t, HandlerFunc(func(context.Context, Request) Response {
		return Response{OK: true, State: "idle"}
	}))

	alive, err := Probe(context.Background(), path, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, alive)

	stop()

	alive, err = Probe(context.Background(), path, 100*time.Millisecond)
	require.NoError(t, err)
	require.False(t, alive)

	alive, err = Probe(context.Background(), filepath.Join(t.TempDir(), "absent.sock"), 100*time.Millisecond)
	require.NoError(t, err)
	require.False(t, alive)
}

func TestKnownCommands(t *testing.T) {
	for _, cmd := range []string{CommandStop, CommandCancel, CommandStatus, CommandReset} {
		require.True(t, Known(cmd), cmd)
	}
	require.False(t, Known("pause"))
	require.False(t, Known(""))

	resp := Unknown("idle", "pause")
	require.False(t, resp.OK)
	require.Equal(t, "idle", resp.State)
	require.Equal(t, "unknown command: pause", resp.Error)
}

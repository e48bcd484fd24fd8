package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rbright/trace/internal/probe"
	"github.com/stretchr/testify/require"
)

func jsonDecode(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return lis
}

func TestServeHealthAndShutdown(t *testing.T) {
	for _, configured := range []bool{true, false} {
		s := newTestServer(t, nil, func(o *Options) { o.Configured = configured })
		httpLis, grpcLis := listen(t), listen(t)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Serve(ctx, httpLis, grpcLis) }()

		res, err := probe.GRPC(context.Background(), grpcLis.Addr().String(), probe.ServiceName, 2*time.Second)
		require.NoError(t, err)
		require.Equal(t, configured, res.Serving)

		httpRes, err := probe.HTTP(context.Background(), httpLis.Addr().String(), 2*time.Second)
		require.NoError(t, err)
		require.True(t, httpRes.Serving)
		require.Equal(t, "ok", httpRes.Status)

		_, _, err = s.sessions.create(context.Background())
		require.NoError(t, err)

		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not shut down")
		}
		require.Zero(t, s.sessions.count())
	}
}

func TestRunReportsListenErrors(t *testing.T) {
	occupied := listen(t)
	defer occupied.Close()

	s := newTestServer(t, nil, func(o *Options) {
		o.Config.Listen = occupied.Addr().String()
		o.Config.GRPCListen = "127.0.0.1:0"
	})
	err := s.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "listen http")
}

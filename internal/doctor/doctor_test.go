package doctor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rbright/trace/internal/audio"
	"github.com/rbright/trace/internal/config"
	"github.com/rbright/trace/internal/probe"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "clipboard_cmd")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinaryFound(t *testing.T) {
	check := checkBinary("sh", "shell available")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell available")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckCommandUsesBinaryFromPath(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-bin")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/usr/bin/env bash\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	check := checkCommand([]string{"fake-bin", "--arg"}, "clipboard_cmd")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "clipboard_cmd command is available")
}

func TestCheckConfig(t *testing.T) {
	missing := checkConfig(config.Loaded{Path: "/tmp/none.yaml"})
	require.True(t, missing.Pass)
	require.Contains(t, missing.Message, "using defaults")

	loaded := checkConfig(config.Loaded{Path: "/tmp/trace.yaml", Exists: true})
	require.Equal(t, `loaded "/tmp/trace.yaml"`, loaded.Message)
}

func TestCheckAPIKey(t *testing.T) {
	cfg := config.Default()

	missing := checkAPIKey(config.Loaded{Config: cfg})
	require.False(t, missing.Pass)
	require.Equal(t, "GEMINI_API_KEY is not set", missing.Message)

	present := checkAPIKey(config.Loaded{Config: cfg, APIKey: "secret"})
	require.True(t, present.Pass)
	require.Contains(t, present.Message, cfg.Analysis.Model)
	require.NotContains(t, present.Message, "secret")
}

func TestCheckAudioSelection(t *testing.T) {
	cfg := config.Default()

	ok := checkAudioSelection(context.Background(), cfg, func(context.Context, string, string) (audio.Selection, error) {
		return audio.Selection{Device: audio.Device{ID: "alsa_input.usb"}, Warning: "fell back", Fallback: true}, nil
	})
	require.True(t, ok.Pass)
	require.Equal(t, `selected "alsa_input.usb" (fell back)`, ok.Message)

	failed := checkAudioSelection(context.Background(), cfg, func(context.Context, string, string) (audio.Selection, error) {
		return audio.Selection{}, errors.New("no input devices")
	})
	require.False(t, failed.Pass)
	require.Equal(t, "audio.device", failed.Name)
}

func TestCheckAudioSelectionFailureWithInvalidPulseServer(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	check := checkAudioSelection(context.Background(), config.Default(), audio.SelectDevice)
	require.False(t, check.Pass)
	require.Contains(t, check.Name, "audio.device")
}

func TestRunIncludesOptionalChecks(t *testing.T) {
	binDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "fake-copy"), []byte("#!/usr/bin/env sh\nexit 0\n"), 0o755))
	t.Setenv("PATH", binDir+":"+os.Getenv("PATH"))

	cfg := config.Default()
	cfg.Report.CopySummary = true
	cfg.Clipboard = config.CommandConfig{Raw: "fake-copy", Argv: []string{"fake-copy"}}
	cfg.Indicator.Enable = false

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.yaml", Config: cfg, APIKey: "k"}, Options{
		SelectDevice: func(context.Context, string, string) (audio.Selection, error) {
			return audio.Selection{Device: audio.Device{ID: "mic"}}, nil
		},
	})

	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	require.Equal(t, []string{"config", "analysis.api_key", "fake-copy", "audio.device"}, names)
	require.True(t, report.OK())
}

func TestRunProbesServer(t *testing.T) {
	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/healthz", r.URL.Path)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(httpSrv.Close)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	grpcSrv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus(probe.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(grpcSrv, hs)
	go func() { _ = grpcSrv.Serve(lis) }()
	t.Cleanup(grpcSrv.Stop)

	cfg := config.Default()
	cfg.Indicator.Enable = false
	cfg.Server.Listen = strings.TrimPrefix(httpSrv.URL, "http://")
	cfg.Server.GRPCListen = lis.Addr().String()

	report := Run(context.Background(), config.Loaded{Config: cfg, APIKey: "k"}, Options{
		Server: true,
		SelectDevice: func(context.Context, string, string) (audio.Selection, error) {
			return audio.Selection{Device: audio.Device{ID: "mic"}}, nil
		},
	})

	byName := map[string]Check{}
	for _, check := range report.Checks {
		byName[check.Name] = check
	}
	require.True(t, byName["server.http"].Pass)
	require.Contains(t, byName["server.http"].Message, "ok at")
	require.False(t, byName["server.grpc"].Pass)
	require.Contains(t, byName["server.grpc"].Message, "NOT_SERVING")
	require.False(t, report.OK())
}

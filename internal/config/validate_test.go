package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsInvalidCoreFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "empty model", mutate: func(c *Config) { c.Analysis.Model = " " }, wantErr: "analysis.model"},
		{name: "prefixed model", mutate: func(c *Config) { c.Analysis.Model = "models/gemini-2.0-flash" }, wantErr: "models/"},
		{name: "empty key env", mutate: func(c *Config) { c.Analysis.APIKeyEnv = "" }, wantErr: "api_key_env"},
		{name: "zero timeout", mutate: func(c *Config) { c.Analysis.TimeoutMS = 0 }, wantErr: "timeout_ms"},
		{name: "relative base url", mutate: func(c *Config) { c.Analysis.BaseURL = "/v1" }, wantErr: "base_url"},
		{name: "sample rate", mutate: func(c *Config) { c.Audio.SampleRate = 4000 }, wantErr: "sample_rate"},
		{name: "max bytes", mutate: func(c *Config) { c.Upload.MaxBytes = 0 }, wantErr: "upload.max_bytes"},
		{name: "listen", mutate: func(c *Config) { c.Server.Listen = "8000" }, wantErr: "server.listen"},
		{name: "grpc listen", mutate: func(c *Config) { c.Server.GRPCListen = "" }, wantErr: "server.grpc_listen"},
		{name: "same listeners", mutate: func(c *Config) { c.Server.GRPCListen = c.Server.Listen }, wantErr: "must differ"},
		{name: "max sessions", mutate: func(c *Config) { c.Server.MaxSessions = 0 }, wantErr: "max_sessions"},
		{name: "session idle timeout", mutate: func(c *Config) { c.Server.SessionIdleTimeoutMS = 0 }, wantErr: "session_idle_timeout_ms"},
		{name: "report format", mutate: func(c *Config) { c.Report.Format = "xml" }, wantErr: "report.format"},
		{name: "indicator app name", mutate: func(c *Config) { c.Indicator.DesktopAppName = "" }, wantErr: "desktop_app_name"},
		{name: "negative error timeout", mutate: func(c *Config) { c.Indicator.ErrorTimeoutMS = -1 }, wantErr: "error_timeout"},
		{name: "copy without clipboard", mutate: func(c *Config) {
			c.Report.CopySummary = true
			c.Clipboard = CommandConfig{}
		}, wantErr: "clipboard_cmd"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := Default()
	cfg.Analysis.BaseURL = "http://127.0.0.1:9999"
	cfg.Upload.MaxBytes = 32 << 20

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	require.Contains(t, warnings[0].Message, "not https")
	require.Contains(t, warnings[1].Message, "20 MiB")
}

func TestResolveAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Analysis.APIKeyEnv = "TRACE_TEST_KEY"

	t.Setenv("TRACE_TEST_KEY", "  secret  ")
	require.Equal(t, "secret", ResolveAPIKey(cfg))

	t.Setenv("TRACE_TEST_KEY", "")
	require.Empty(t, ResolveAPIKey(cfg))

	cfg.Analysis.APIKeyEnv = ""
	require.Empty(t, ResolveAPIKey(cfg))
}

func TestAnalysisTimeout(t *testing.T) {
	require.Equal(t, "45s", Default().Analysis.Timeout().String())
}

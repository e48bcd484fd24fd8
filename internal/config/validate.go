package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Analysis.Model) == "" {
		return nil, fmt.Errorf("analysis.model must not be empty")
	}
	if strings.HasPrefix(strings.TrimSpace(cfg.Analysis.Model), "models/") {
		return nil, fmt.Errorf("analysis.model must not start with \"models/\"")
	}
	if strings.TrimSpace(cfg.Analysis.APIKeyEnv) == "" {
		return nil, fmt.Errorf("analysis.api_key_env must not be empty")
	}
	if cfg.Analysis.TimeoutMS <= 0 {
		return nil, fmt.Errorf("analysis.timeout_ms must be > 0")
	}
	if raw := strings.TrimSpace(cfg.Analysis.BaseURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("analysis.base_url must be an absolute URL")
		}
		if u.Scheme != "https" {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("analysis.base_url %q is not https; the API key will be sent in clear text", raw)})
		}
	}

	if cfg.Audio.SampleRate < 8000 || cfg.Audio.SampleRate > 48000 {
		return nil, fmt.Errorf("audio.sample_rate must be between 8000 and 48000")
	}
	if cfg.Upload.MaxBytes <= 0 {
		return nil, fmt.Errorf("upload.max_bytes must be > 0")
	}
	if cfg.Upload.MaxBytes > 20<<20 {
		warnings = append(warnings, Warning{Message: "upload.max_bytes exceeds 20 MiB; larger inline requests may be rejected upstream"})
	}

	if err := validateListen("server.listen", cfg.Server.Listen); err != nil {
		return nil, err
	}
	if err := validateListen("server.grpc_listen", cfg.Server.GRPCListen); err != nil {
		return nil, err
	}
	if cfg.Server.Listen == cfg.Server.GRPCListen {
		return nil, fmt.Errorf("server.listen and server.grpc_listen must differ")
	}
	if cfg.Server.MaxSessions <= 0 {
		return nil, fmt.Errorf("server.max_sessions must be > 0")
	}
	if cfg.Server.SessionIdleTimeoutMS <= 0 {
		return nil, fmt.Errorf("server.session_idle_timeout_ms must be > 0")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Report.Format)) {
	case "text", "json", "yaml":
	default:
		return nil, fmt.Errorf("report.format must be one of: text, json, yaml")
	}

	if cfg.Indicator.Enable && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.enable=true")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}
	if cfg.Report.CopySummary && len(cfg.Clipboard.Argv) == 0 {
		return nil, fmt.Errorf("clipboard_cmd must not be empty when report.copy_summary=true")
	}

	return warnings, nil
}

func validateListen(field string, addr string) error {
	if strings.TrimSpace(addr) == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s must be host:port: %w", field, err)
	}
	return nil
}

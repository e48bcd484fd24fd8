// Package config resolves, parses, validates, and defaults trace configuration.
package config

import (
	"os"
	"strings"
	"time"
)

// Config is the fully materialized runtime configuration used by trace.
type Config struct {
	Analysis  AnalysisConfig
	Audio     AudioConfig
	Upload    UploadConfig
	Server    ServerConfig
	Report    ReportConfig
	Indicator IndicatorConfig
	Clipboard CommandConfig
	Debug     DebugConfig
}

// AnalysisConfig controls the hosted inference call.
type AnalysisConfig struct {
	Model      string
	BaseURL    string
	APIVersion string
	APIKeyEnv  string
	TimeoutMS  int
}

// Timeout returns the per-call deadline.
func (a AnalysisConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutMS) * time.Millisecond
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input      string
	Fallback   string
	SampleRate int
}

// UploadConfig bounds accepted clip sizes.
type UploadConfig struct {
	MaxBytes int64
}

// ServerConfig controls the HTTP API and gRPC health listeners.
type ServerConfig struct {
	Listen         string
	GRPCListen     string
	AllowedOrigins []string
	MaxSessions    int
	// SessionIdleTimeoutMS evicts API sessions nobody has touched for this long.
	SessionIdleTimeoutMS int
}

// SessionIdleTimeout returns the API session idle eviction threshold.
func (s ServerConfig) SessionIdleTimeout() time.Duration {
	return time.Duration(s.SessionIdleTimeoutMS) * time.Millisecond
}

// ReportConfig controls terminal rendering of verdicts.
type ReportConfig struct {
	Format       string
	Color        bool
	CopySummary  bool
	ShowFindings bool
}

// IndicatorConfig controls desktop notifications.
type IndicatorConfig struct {
	Enable         bool
	DesktopAppName string
	ErrorTimeoutMS int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump    bool
	EnableResponseDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// ResolveAPIKey reads the inference credential from the configured environment variable.
func ResolveAPIKey(cfg Config) string {
	name := strings.TrimSpace(cfg.Analysis.APIKeyEnv)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}

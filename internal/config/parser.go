package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors config.yaml. It is seeded from a base Config so keys the
// file omits keep their current value.
type fileConfig struct {
	Analysis struct {
		Model      string `yaml:"model"`
		BaseURL    string `yaml:"base_url"`
		APIVersion string `yaml:"api_version"`
		APIKeyEnv  string `yaml:"api_key_env"`
		TimeoutMS  int    `yaml:"timeout_ms"`
	} `yaml:"analysis"`

	Audio struct {
		Input      string `yaml:"input"`
		Fallback   string `yaml:"fallback"`
		SampleRate int    `yaml:"sample_rate"`
	} `yaml:"audio"`

	Upload struct {
		MaxBytes int64 `yaml:"max_bytes"`
	} `yaml:"upload"`

	Server struct {
		Listen         string     `yaml:"listen"`
		GRPCListen     string     `yaml:"grpc_listen"`
		AllowedOrigins originList `yaml:"allowed_origins"`
		MaxSessions    int        `yaml:"max_sessions"`
		SessionIdleMS  int        `yaml:"session_idle_timeout_ms"`
	} `yaml:"server"`

	Report struct {
		Format       string `yaml:"format"`
		Color        bool   `yaml:"color"`
		CopySummary  bool   `yaml:"copy_summary"`
		ShowFindings bool   `yaml:"show_findings"`
	} `yaml:"report"`

	Indicator struct {
		Enable         bool   `yaml:"enable"`
		DesktopAppName string `yaml:"desktop_app_name"`
		ErrorTimeoutMS int    `yaml:"error_timeout_ms"`
	} `yaml:"indicator"`

	ClipboardCmd string `yaml:"clipboard_cmd"`

	Debug struct {
		AudioDump    bool `yaml:"audio_dump"`
		ResponseDump bool `yaml:"response_dump"`
	} `yaml:"debug"`
}

// originList accepts either a YAML sequence or one comma-separated string.
type originList []string

func (l *originList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*l = list
	case yaml.ScalarNode:
		*l = strings.Split(node.Value, ",")
	default:
		return fmt.Errorf("line %d: allowed_origins must be a list or a comma-separated string", node.Line)
	}
	return nil
}

func seed(base Config) fileConfig {
	var f fileConfig
	f.Analysis.Model = base.Analysis.Model
	f.Analysis.BaseURL = base.Analysis.BaseURL
	f.Analysis.APIVersion = base.Analysis.APIVersion
	f.Analysis.APIKeyEnv = base.Analysis.APIKeyEnv
	f.Analysis.TimeoutMS = base.Analysis.TimeoutMS
	f.Audio.Input = base.Audio.Input
	f.Audio.Fallback = base.Audio.Fallback
	f.Audio.SampleRate = base.Audio.SampleRate
	f.Upload.MaxBytes = base.Upload.MaxBytes
	f.Server.Listen = base.Server.Listen
	f.Server.GRPCListen = base.Server.GRPCListen
	f.Server.AllowedOrigins = append(originList(nil), base.Server.AllowedOrigins...)
	f.Server.MaxSessions = base.Server.MaxSessions
	f.Server.SessionIdleMS = base.Server.SessionIdleTimeoutMS
	f.Report.Format = base.Report.Format
	f.Report.Color = base.Report.Color
	f.Report.CopySummary = base.Report.CopySummary
	f.Report.ShowFindings = base.Report.ShowFindings
	f.Indicator.Enable = base.Indicator.Enable
	f.Indicator.DesktopAppName = base.Indicator.DesktopAppName
	f.Indicator.ErrorTimeoutMS = base.Indicator.ErrorTimeoutMS
	f.ClipboardCmd = base.Clipboard.Raw
	f.Debug.AudioDump = base.Debug.EnableAudioDump
	f.Debug.ResponseDump = base.Debug.EnableResponseDump
	return f
}

func (f fileConfig) materialize() (Config, []Warning, error) {
	var warnings []Warning

	clipboard, err := ParseCommand(f.ClipboardCmd)
	if err != nil {
		return Config{}, nil, fmt.Errorf("invalid clipboard_cmd: %w", err)
	}

	origins := make([]string, 0, len(f.Server.AllowedOrigins))
	for _, origin := range f.Server.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		warnings = append(warnings, Warning{Message: "server.allowed_origins is empty; browsers on other origins will be refused"})
	}

	cfg := Config{
		Analysis: AnalysisConfig{
			Model:      strings.TrimSpace(f.Analysis.Model),
			BaseURL:    strings.TrimSpace(f.Analysis.BaseURL),
			APIVersion: strings.TrimSpace(f.Analysis.APIVersion),
			APIKeyEnv:  strings.TrimSpace(f.Analysis.APIKeyEnv),
			TimeoutMS:  f.Analysis.TimeoutMS,
		},
		Audio: AudioConfig{
			Input:      f.Audio.Input,
			Fallback:   f.Audio.Fallback,
			SampleRate: f.Audio.SampleRate,
		},
		Upload: UploadConfig{MaxBytes: f.Upload.MaxBytes},
		Server: ServerConfig{
			Listen:         strings.TrimSpace(f.Server.Listen),
			GRPCListen:     strings.TrimSpace(f.Server.GRPCListen),
			AllowedOrigins: origins,
			MaxSessions:    f.Server.MaxSessions,

			SessionIdleTimeoutMS: f.Server.SessionIdleMS,
		},
		Report: ReportConfig{
			Format:       strings.ToLower(strings.TrimSpace(f.Report.Format)),
			Color:        f.Report.Color,
			CopySummary:  f.Report.CopySummary,
			ShowFindings: f.Report.ShowFindings,
		},
		Indicator: IndicatorConfig{
			Enable:         f.Indicator.Enable,
			DesktopAppName: strings.TrimSpace(f.Indicator.DesktopAppName),
			ErrorTimeoutMS: f.Indicator.ErrorTimeoutMS,
		},
		Clipboard: clipboard,
		Debug: DebugConfig{
			EnableAudioDump:    f.Debug.AudioDump,
			EnableResponseDump: f.Debug.ResponseDump,
		},
	}
	return cfg, warnings, nil
}

// Parse decodes YAML content over base and validates the result. Unknown keys
// and multiple documents are rejected; an empty document yields base.
func Parse(content string, base Config) (Config, []Warning, error) {
	file := seed(base)

	decoder := yaml.NewDecoder(strings.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, nil, err
	}
	var extra yaml.Node
	if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
		if err != nil {
			return Config{}, nil, err
		}
		return Config{}, nil, fmt.Errorf("line %d: config must be a single YAML document", extra.Line)
	}

	cfg, warnings, err := file.materialize()
	if err != nil {
		return Config{}, nil, err
	}
	validated, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, append(warnings, validated...), nil
}

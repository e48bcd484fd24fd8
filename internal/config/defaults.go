package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Analysis: AnalysisConfig{
			Model:      "gemini-2.0-flash-exp",
			APIVersion: "v1beta",
			APIKeyEnv:  "GEMINI_API_KEY",
			TimeoutMS:  45000,
		},
		Audio: AudioConfig{
			Input:      "default",
			Fallback:   "default",
			SampleRate: 16000,
		},
		Upload: UploadConfig{MaxBytes: 20 << 20},
		Server: ServerConfig{
			Listen:         "127.0.0.1:8000",
			GRPCListen:     "127.0.0.1:8001",
			AllowedOrigins: []string{"*"},
			MaxSessions:    64,

			SessionIdleTimeoutMS: 15 * 60 * 1000,
		},
		Report: ReportConfig{
			Format:       "text",
			Color:        true,
			ShowFindings: true,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			DesktopAppName: "trace",
			ErrorTimeoutMS: 4000,
		},
		Clipboard: mustParseCommand("wl-copy --trim-newline"),
		Debug:     DebugConfig{},
	}
}

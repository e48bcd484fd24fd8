package config

import (
	"errors"
	"fmt"
	"os"
)

// Loaded captures resolved config path, parsed values, the resolved
// credential, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	APIKey   string
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration, then
// resolves the inference credential from the environment. A missing credential
// is a warning; analysis reports it as a configuration fault.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{Path: resolvedPath, Config: Default()}
	content, err := os.ReadFile(resolvedPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		loaded.Warnings = append(loaded.Warnings, Warning{
			Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
		})
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	default:
		cfg, warnings, err := Parse(string(content), loaded.Config)
		if err != nil {
			return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
		}
		loaded.Config = cfg
		loaded.Warnings = warnings
		loaded.Exists = true
	}

	loaded.APIKey = ResolveAPIKey(loaded.Config)
	if loaded.APIKey == "" {
		loaded.Warnings = append(loaded.Warnings, Warning{
			Message: fmt.Sprintf("environment variable %s is not set; analysis is unavailable", loaded.Config.Analysis.APIKeyEnv),
		})
	}
	return loaded, nil
}

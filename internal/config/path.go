package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath picks the config file: an explicit --config value wins, then
// $XDG_CONFIG_HOME/trace/config.yaml, then ~/.config/trace/config.yaml.
func ResolvePath(explicit string) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit, nil
	}

	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve config path: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "trace", "config.yaml"), nil
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// PathEnv names a config file used when no --config flag is given.
const PathEnv = "CANDI_CONFIG"

// ResolvePath picks the config file: the explicit flag, then $CANDI_CONFIG,
// then $XDG_CONFIG_HOME/candi/config.toml, then ~/.config/candi/config.toml.
// A leading "~/" is expanded in explicit paths.
func ResolvePath(explicit string) (string, error) {
	for _, candidate := range []string{explicit, os.Getenv(PathEnv)} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return expandHome(candidate)
		}
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "candi", "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}
	return filepath.Join(home, ".config", "candi", "config.toml"), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config path")
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

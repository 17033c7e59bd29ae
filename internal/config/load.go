package config

import (
	"errors"
	"fmt"
	"os"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration.
// CANDI_* environment variables are applied on top of the file.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	content, err := os.ReadFile(resolvedPath)
	exists := true
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
		}
		exists = false
		content = nil
	}

	cfg, err := decode(string(content), Default())
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}
	envWarnings := applyEnvOverrides(&cfg)

	warnings, err := Validate(cfg)
	if err != nil {
		return Loaded{}, fmt.Errorf("validate config %q: %w", resolvedPath, err)
	}

	all := make([]Warning, 0, len(warnings)+len(envWarnings)+1)
	if !exists {
		all = append(all, Warning{Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath)})
	}
	all = append(all, envWarnings...)
	all = append(all, warnings...)

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: all,
		Exists:   exists,
	}, nil
}

package config

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Session.Language) == "" {
		return nil, fmt.Errorf("session.language must not be empty")
	}
	if cfg.Session.AutoBreak {
		if cfg.Session.ShortPauseMS <= 0 {
			return nil, fmt.Errorf("session.short_pause_ms must be > 0")
		}
		if cfg.Session.LongPauseMS <= 0 {
			return nil, fmt.Errorf("session.long_pause_ms must be > 0")
		}
		if cfg.Session.LongPauseMS <= cfg.Session.ShortPauseMS {
			warnings = append(warnings, Warning{Message: fmt.Sprintf(
				"session.long_pause_ms=%d does not exceed short_pause_ms=%d; line breaks will be skipped",
				cfg.Session.LongPauseMS, cfg.Session.ShortPauseMS,
			)})
		}
	}

	if strings.TrimSpace(cfg.Recognizer.Endpoint) == "" {
		warnings = append(warnings, Warning{Message: "recognizer.endpoint is empty; live recognition is unavailable"})
	}
	if cfg.Recognizer.DialTimeoutMS <= 0 {
		return nil, fmt.Errorf("recognizer.dial_timeout_ms must be > 0")
	}

	if cfg.Live.Enable && strings.TrimSpace(cfg.Live.Addr) == "" {
		return nil, fmt.Errorf("live.addr must not be empty when live.enable=true")
	}

	if _, err := cfg.Output.ClipboardArgv(); err != nil {
		return nil, err
	}

	if !validLogLevels[strings.ToLower(strings.TrimSpace(cfg.Logging.Level))] {
		return nil, fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return warnings, nil
}

// ClipboardArgv splits clipboard_cmd into argv. An empty command disables
// clipboard output.
func (o OutputConfig) ClipboardArgv() ([]string, error) {
	raw := strings.TrimSpace(o.ClipboardCmd)
	if raw == "" {
		return nil, nil
	}
	argv, err := shlex.Split(raw)
	if err != nil {
		return nil, fmt.Errorf("output.clipboard_cmd: %w", err)
	}
	return argv, nil
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Parse decodes TOML content over base and validates the result. Unknown keys
// are rejected.
func Parse(content string, base Config) (Config, []Warning, error) {
	cfg, err := decode(content, base)
	if err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func decode(content string, base Config) (Config, error) {
	cfg := base
	if strings.TrimSpace(content) == "" {
		return cfg, nil
	}
	decoder := toml.NewDecoder(bytes.NewBufferString(content))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, describeDecodeError(err)
	}
	return cfg, nil
}

func describeDecodeError(err error) error {
	var strict *toml.StrictMissingError
	if errors.As(err, &strict) {
		keys := make([]string, 0, len(strict.Errors))
		for _, missing := range strict.Errors {
			keys = append(keys, strings.Join(missing.Key(), "."))
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		row, col := decodeErr.Position()
		return fmt.Errorf("line %d column %d: %s", row, col, decodeErr.Error())
	}
	return err
}

// envOverrides maps environment variables onto config fields.
var envOverrides = []struct {
	name  string
	apply func(*Config, string)
}{
	{name: "CANDI_RECOGNIZER_ENDPOINT", apply: func(c *Config, v string) { c.Recognizer.Endpoint = v }},
	{name: "CANDI_LANGUAGE", apply: func(c *Config, v string) { c.Session.Language = v }},
	{name: "CANDI_LOG_LEVEL", apply: func(c *Config, v string) { c.Logging.Level = v }},
	{name: "CANDI_LIVE_ADDR", apply: func(c *Config, v string) {
		c.Live.Addr = v
		c.Live.Enable = true
	}},
}

func applyEnvOverrides(cfg *Config) []Warning {
	var warnings []Warning
	for _, override := range envOverrides {
		value, ok := os.LookupEnv(override.name)
		if !ok {
			continue
		}
		override.apply(cfg, strings.TrimSpace(value))
		warnings = append(warnings, Warning{Message: fmt.Sprintf("%s overrides config file", override.name)})
	}
	return warnings
}

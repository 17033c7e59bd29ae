// Package config resolves, parses, validates, and defaults candi configuration.
package config

import "time"

// Config is the fully materialized runtime configuration.
type Config struct {
	Session    SessionConfig    `toml:"session"`
	Recognizer RecognizerConfig `toml:"recognizer"`
	Audio      AudioConfig      `toml:"audio"`
	Live       LiveConfig       `toml:"live"`
	Output     OutputConfig     `toml:"output"`
	Logging    LoggingConfig    `toml:"logging"`
	Debug      DebugConfig      `toml:"debug"`
}

// SessionConfig controls transcript accumulation.
type SessionConfig struct {
	Language     string `toml:"language"`
	ShortPauseMS int    `toml:"short_pause_ms"`
	LongPauseMS  int    `toml:"long_pause_ms"`
	AutoBreak    bool   `toml:"auto_break"`
	Normalize    bool   `toml:"normalize"`
}

func (s SessionConfig) ShortPause() time.Duration {
	return time.Duration(s.ShortPauseMS) * time.Millisecond
}

func (s SessionConfig) LongPause() time.Duration {
	return time.Duration(s.LongPauseMS) * time.Millisecond
}

// RecognizerConfig locates the streaming recognition backend. An empty
// endpoint means live recognition is unavailable.
type RecognizerConfig struct {
	Endpoint      string `toml:"endpoint"`
	DialTimeoutMS int    `toml:"dial_timeout_ms"`
}

func (r RecognizerConfig) DialTimeout() time.Duration {
	return time.Duration(r.DialTimeoutMS) * time.Millisecond
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string `toml:"input"`
	Fallback string `toml:"fallback"`
}

// LiveConfig controls the websocket feed for host UIs.
type LiveConfig struct {
	Enable bool   `toml:"enable"`
	Addr   string `toml:"addr"`
}

// OutputConfig controls what happens to the transcript when listen exits.
type OutputConfig struct {
	ClipboardCmd string `toml:"clipboard_cmd"`
	Journal      bool   `toml:"journal"`
}

// LoggingConfig controls the runtime log.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	AudioDump bool `toml:"audio_dump"`
	EventDump bool `toml:"event_dump"`
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

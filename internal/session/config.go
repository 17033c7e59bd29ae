package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/candi/dictation/internal/recognition"
	"github.com/candi/dictation/internal/transcript"
)

const (
	DefaultLanguage   = "ja-JP"
	DefaultShortPause = 1100 * time.Millisecond
	DefaultLongPause  = 4000 * time.Millisecond
)

// Config is the immutable per-session configuration.
type Config struct {
	Language   string
	ShortPause time.Duration
	LongPause  time.Duration
	AutoBreak  bool
	Normalize  bool
}

// DefaultConfig returns the reference pause timings with all text rules enabled.
func DefaultConfig() Config {
	return Config{
		Language:   DefaultLanguage,
		ShortPause: DefaultShortPause,
		LongPause:  DefaultLongPause,
		AutoBreak:  true,
		Normalize:  true,
	}
}

// Validate rejects configurations the engine cannot schedule.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Language) == "" {
		return fmt.Errorf("session language must not be empty")
	}
	if c.AutoBreak {
		if c.ShortPause <= 0 {
			return fmt.Errorf("short pause must be > 0, got %s", c.ShortPause)
		}
		if c.LongPause <= 0 {
			return fmt.Errorf("long pause must be > 0, got %s", c.LongPause)
		}
	}
	return nil
}

func (c Config) settings() recognition.Settings {
	return recognition.Settings{
		Language:       strings.TrimSpace(c.Language),
		Continuous:     true,
		InterimResults: true,
	}
}

func (c Config) textOptions() transcript.Options {
	return transcript.Options{Normalize: c.Normalize}
}

package config

// Default returns the runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Session: SessionConfig{
			Language:     "ja-JP",
			ShortPauseMS: 1100,
			LongPauseMS:  4000,
			AutoBreak:    true,
			Normalize:    true,
		},
		Recognizer: RecognizerConfig{
			Endpoint:      "127.0.0.1:50051",
			DialTimeoutMS: 3000,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Live: LiveConfig{
			Enable: false,
			Addr:   "127.0.0.1:7319",
		},
		Output: OutputConfig{
			ClipboardCmd: "wl-copy --trim-newline",
			Journal:      true,
		},
		Logging: LoggingConfig{Level: "info"},
		Debug:   DebugConfig{},
	}
}

// Package doctor runs runtime readiness diagnostics for config, tools, audio,
// and the recognizer.
package doctor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/candi/dictation/internal/audio"
	"github.com/candi/dictation/internal/config"
	"github.com/candi/dictation/internal/speechrpc"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Probes are the checks that touch the outside world.
type Probes struct {
	SelectDevice func(ctx context.Context, input, fallback string) (audio.Selection, error)
	Recognizer   func(ctx context.Context, endpoint string, timeout time.Duration) error
}

// DefaultProbes talks to PulseAudio and the configured recognizer.
func DefaultProbes() Probes {
	return Probes{
		SelectDevice: audio.SelectDevice,
		Recognizer: func(ctx context.Context, endpoint string, timeout time.Duration) error {
			return speechrpc.Probe(ctx, endpoint, timeout)
		},
	}
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded, probes Probes) Report {
	checks := []Check{configCheck(loaded)}
	cfg := loaded.Config

	argv, err := cfg.Output.ClipboardArgv()
	switch {
	case err != nil:
		checks = append(checks, Check{Name: "clipboard_cmd", Pass: false, Message: err.Error()})
	case len(argv) == 0:
		checks = append(checks, Check{Name: "clipboard_cmd", Pass: true, Message: "disabled"})
	default:
		checks = append(checks, checkCommand(argv, "clipboard_cmd"))
	}

	checks = append(checks, checkAudioSelection(ctx, cfg, probes.SelectDevice))
	checks = append(checks, checkRecognizerReady(ctx, cfg, probes.Recognizer))

	return Report{Checks: checks}
}

func configCheck(loaded config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("using defaults (%q not found)", loaded.Path)
	}
	if n := len(loaded.Warnings); n > 0 {
		messages := make([]string, 0, n)
		for _, w := range loaded.Warnings {
			messages = append(messages, w.Message)
		}
		message += "; warnings: " + strings.Join(messages, "; ")
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(
	ctx context.Context,
	cfg config.Config,
	selectDevice func(context.Context, string, string) (audio.Selection, error),
) Check {
	if selectDevice == nil {
		return Check{Name: "audio.device", Pass: false, Message: "no device probe configured"}
	}
	selection, err := selectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkRecognizerReady waits for the recognizer's gRPC channel to become ready.
func checkRecognizerReady(
	ctx context.Context,
	cfg config.Config,
	probe func(context.Context, string, time.Duration) error,
) Check {
	endpoint := strings.TrimSpace(cfg.Recognizer.Endpoint)
	if endpoint == "" {
		return Check{Name: "recognizer.ready", Pass: false, Message: "recognizer.endpoint is empty"}
	}
	if probe == nil {
		return Check{Name: "recognizer.ready", Pass: false, Message: "no recognizer probe configured"}
	}
	if err := probe(ctx, endpoint, cfg.Recognizer.DialTimeout()); err != nil {
		return Check{Name: "recognizer.ready", Pass: false, Message: err.Error()}
	}
	return Check{Name: "recognizer.ready", Pass: true, Message: fmt.Sprintf("ready at %s", endpoint)}
}

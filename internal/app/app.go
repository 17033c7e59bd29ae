// Package app wires configuration, logging and the session runtime behind the
// candi command tree.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/candi/dictation/internal/audio"
	"github.com/candi/dictation/internal/cli"
	"github.com/candi/dictation/internal/config"
	"github.com/candi/dictation/internal/doctor"
	"github.com/candi/dictation/internal/ipc"
	"github.com/candi/dictation/internal/logging"
	"github.com/candi/dictation/internal/pipeline"
	"github.com/candi/dictation/internal/recognition"
	"github.com/candi/dictation/internal/replay"
	"github.com/candi/dictation/internal/session"
	"github.com/candi/dictation/internal/version"
)

const (
	binaryName     = "candi"
	forwardTimeout = 220 * time.Millisecond
)

// Runner executes candi commands against real or injected collaborators.
// Zero-valued hooks use the production implementations.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	NewFacility func(config.Config, *slog.Logger) (recognition.Facility, error)
	ListDevices func(context.Context) ([]audio.Device, error)
	Probes      *doctor.Probes
	SocketPath  func() (string, error)
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	root := cli.NewRoot(binaryName, r, r.Stdout, r.Stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	code := cli.ExitCode(err)
	if err == nil {
		return code
	}

	var exitErr *cli.ExitError
	switch {
	case code == 2:
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, root.UsageString())
	case errors.As(err, &exitErr) && exitErr.Silent:
	default:
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
	}
	return code
}

// runtime is the per-command environment built by prepare.
type runtime struct {
	loaded config.Loaded
	logger *slog.Logger
	close  func()
}

func (r Runner) prepare(g cli.Globals, command string) (runtime, error) {
	loaded, err := config.Load(g.ConfigPath)
	if err != nil {
		return runtime{}, err
	}

	rt := runtime{loaded: loaded, logger: r.Logger, close: func() {}}
	if rt.logger == nil {
		logRuntime, err := logging.New(loaded.Config.Logging.Level)
		if err != nil {
			return runtime{}, fmt.Errorf("setup logging: %w", err)
		}
		rt.logger = logRuntime.Logger
		rt.close = func() { _ = logRuntime.Close() }
	}

	for _, w := range loaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		rt.logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	rt.logger.Info("command start", "command", command, "config", loaded.Path)
	return rt, nil
}

func (r Runner) socketPath() (string, error) {
	if r.SocketPath != nil {
		return r.SocketPath()
	}
	return ipc.RuntimeSocketPath()
}

func (r Runner) newFacility(cfg config.Config, logger *slog.Logger) (recognition.Facility, error) {
	if r.NewFacility != nil {
		return r.NewFacility(cfg, logger)
	}
	facility, err := pipeline.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return facility, nil
}

// sessionConfig maps the file configuration onto engine settings.
func sessionConfig(cfg config.Config) session.Config {
	return session.Config{
		Language:   cfg.Session.Language,
		ShortPause: cfg.Session.ShortPause(),
		LongPause:  cfg.Session.LongPause(),
		AutoBreak:  cfg.Session.AutoBreak,
		Normalize:  cfg.Session.Normalize,
	}
}

func (r Runner) Forward(ctx context.Context, g cli.Globals, command string) error {
	socketPath, err := r.socketPath()
	if err != nil {
		if command == ipc.CommandStatus {
			fmt.Fprintln(r.Stdout, "idle")
			return nil
		}
		return err
	}

	resp, err := ipc.Forward(ctx, socketPath, command, forwardTimeout)
	if errors.Is(err, ipc.ErrNoOwner) {
		if command == ipc.CommandStatus {
			fmt.Fprintln(r.Stdout, "idle")
			return nil
		}
		return fmt.Errorf("no active %s session", binaryName)
	}
	if err != nil {
		return err
	}

	switch command {
	case ipc.CommandStatus:
		state := resp.State
		if state == "" {
			state = "idle"
		}
		if resp.LastError != "" {
			state += " (last error: " + resp.LastError + ")"
		}
		fmt.Fprintln(r.Stdout, state)
	case ipc.CommandText:
		if resp.FinalText != "" {
			fmt.Fprintln(r.Stdout, resp.FinalText)
		}
	default:
		if resp.Message != "" {
			fmt.Fprintln(r.Stdout, resp.Message)
		}
	}
	return nil
}

func (r Runner) Replay(ctx context.Context, g cli.Globals, path string) error {
	rt, err := r.prepare(g, "replay")
	if err != nil {
		return err
	}
	defer rt.close()

	script, err := replay.Load(path)
	if err != nil {
		return err
	}

	cfg := sessionConfig(rt.loaded.Config)
	if err := cfg.Validate(); err != nil {
		return err
	}
	final, err := replay.Run(ctx, script, cfg, rt.logger, nil)
	if err != nil {
		return err
	}
	if final.FinalText != "" {
		fmt.Fprintln(r.Stdout, final.FinalText)
	}
	if final.LastError != nil {
		fmt.Fprintf(r.Stderr, "last error: %s\n", final.LastError.Kind)
	}
	rt.logger.Info("replay complete",
		"script", path,
		"steps", len(script),
		"restarts", final.Restarts,
		"transcript_length", len(final.FinalText),
	)
	return nil
}

func (r Runner) Devices(ctx context.Context, g cli.Globals) error {
	list := r.ListDevices
	if list == nil {
		list = audio.ListDevices
	}
	devices, err := list(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return &cli.ExitError{Code: 1, Silent: true}
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}
	return nil
}

func (r Runner) Doctor(ctx context.Context, g cli.Globals) error {
	rt, err := r.prepare(g, "doctor")
	if err != nil {
		return err
	}
	defer rt.close()

	probes := doctor.DefaultProbes()
	if r.Probes != nil {
		probes = *r.Probes
	}
	report := doctor.Run(ctx, rt.loaded, probes)
	fmt.Fprintln(r.Stdout, report.String())
	if !report.OK() {
		return &cli.ExitError{Code: 1, Silent: true}
	}
	return nil
}

func (r Runner) Version() error {
	fmt.Fprintln(r.Stdout, version.String())
	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/candi/dictation/internal/cli"
	"github.com/candi/dictation/internal/config"
	"github.com/candi/dictation/internal/ipc"
	"github.com/candi/dictation/internal/live"
	"github.com/candi/dictation/internal/output"
	"github.com/candi/dictation/internal/recognition"
	"github.com/candi/dictation/internal/session"
)

const drainLimit = 5 * time.Second

// drainer is implemented by facilities that deliver late results after Stop.
type drainer interface {
	Drain(context.Context) error
}

// Listen owns the session until the context ends or a quit command arrives,
// then commits the transcript.
func (r Runner) Listen(ctx context.Context, g cli.Globals, flags cli.ListenFlags) error {
	rt, err := r.prepare(g, "listen")
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger
	cfg := rt.loaded.Config

	sessCfg := sessionConfig(cfg)
	if err := sessCfg.Validate(); err != nil {
		return err
	}

	socketPath, err := r.socketPath()
	if err != nil {
		return err
	}
	owner, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{Retries: 8, Logger: logger})
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			return fmt.Errorf("a %s session is already running", binaryName)
		}
		return err
	}
	defer func() { _ = owner.Close() }()

	facility, err := r.newFacility(cfg, logger)
	switch {
	case errors.Is(err, recognition.ErrUnsupported):
		fmt.Fprintf(r.Stderr, "warning: %v\n", err)
		logger.Warn("recognition unavailable", "error", err.Error())
		facility = nil
	case err != nil:
		return err
	}

	committer, err := output.NewCommitter(cfg, logger)
	if err != nil {
		if facility != nil {
			_ = facility.Close()
		}
		return err
	}

	startedAt := time.Now().UTC()
	s := session.New(sessCfg, facility, session.Options{Logger: logger})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	fatal := make(chan error, 1)
	wg.Go(func() {
		if err := ipc.Serve(runCtx, owner, s); err != nil {
			select {
			case fatal <- fmt.Errorf("ipc server failed: %w", err):
			default:
			}
		}
	})
	if addr := liveAddr(cfg, flags); addr != "" {
		wg.Go(func() {
			server := live.NewServer(s, logger)
			if err := server.ListenAndServe(runCtx, addr); err != nil {
				fmt.Fprintf(r.Stderr, "warning: live feed disabled: %v\n", err)
				logger.Warn("live server failed", "addr", addr, "error", err.Error())
			}
		})
	}
	if rt.loaded.Exists {
		wg.Go(func() {
			r.watchConfig(runCtx, rt.loaded, s, logger)
		})
	}

	ren := newRenderer(r.Stdout)
	updates, stopWatch := s.Watch()
	defer stopWatch()
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for snap := range updates {
			ren.Render(snap)
		}
	}()

	if !flags.Paused {
		s.Start()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case <-s.QuitRequested():
	case runErr = <-fatal:
	}

	s.Stop()
	if d, ok := facility.(drainer); ok {
		drainCtx, drainCancel := context.WithTimeout(context.WithoutCancel(ctx), drainLimit)
		if err := d.Drain(drainCtx); err != nil {
			logger.Warn("recognizer drain incomplete", "error", err.Error())
		}
		drainCancel()
	}
	final := s.Close()
	cancel()
	wg.Wait()
	<-rendered
	ren.Finish(final)

	logSessionResult(logger, final, startedAt)

	commitErr := committer.Commit(context.WithoutCancel(ctx), output.Entry{
		SessionID: final.SessionID,
		StartedAt: startedAt,
		Text:      final.FinalText,
	})
	return errors.Join(runErr, commitErr)
}

// watchConfig applies session settings from config file edits.
func (r Runner) watchConfig(ctx context.Context, loaded config.Loaded, s *session.Session, logger *slog.Logger) {
	current := loaded.Config
	onChange := func(next config.Loaded) {
		if next.Config.Recognizer != current.Recognizer || next.Config.Audio != current.Audio {
			logger.Info("recognizer and audio changes apply to the next listen")
		}
		unchanged := sessionConfig(next.Config) == sessionConfig(current)
		current = next.Config
		if unchanged {
			logger.Debug("config reloaded; session settings unchanged", "path", next.Path)
			return
		}
		if err := s.Reconfigure(sessionConfig(next.Config)); err != nil {
			logger.Warn("config reload rejected", "error", err.Error())
			return
		}
		logger.Info("config reloaded", "path", next.Path, "language", next.Config.Session.Language)
	}
	onError := func(err error) {
		logger.Warn("config reload failed", "error", err.Error())
	}
	if err := config.Watch(ctx, loaded.Path, onChange, onError); err != nil {
		logger.Warn("config watch unavailable", "error", err.Error())
	}
}

func liveAddr(cfg config.Config, flags cli.ListenFlags) string {
	if flags.NoLive {
		return ""
	}
	if addr := strings.TrimSpace(flags.LiveAddr); addr != "" {
		return addr
	}
	if cfg.Live.Enable {
		return strings.TrimSpace(cfg.Live.Addr)
	}
	return ""
}

func logSessionResult(logger *slog.Logger, final session.Snapshot, startedAt time.Time) {
	fields := []any{
		"session_id", final.SessionID,
		"started_at", startedAt.Format(time.RFC3339Nano),
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"restarts", final.Restarts,
		"transcript_length", len(final.FinalText),
	}
	if final.LastError != nil {
		logger.Warn("session complete", append(fields, "last_error", string(final.LastError.Kind))...)
		return
	}
	logger.Info("session complete", fields...)
}

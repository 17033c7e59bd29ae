// Package pipeline implements the live recognition facility: microphone
// capture streamed to a remote recognizer over speechrpc.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/candi/dictation/internal/audio"
	"github.com/candi/dictation/internal/config"
	"github.com/candi/dictation/internal/recognition"
	"github.com/candi/dictation/internal/speechrpc"
)

const (
	drainTimeout   = 10 * time.Second
	minBackoff     = 250 * time.Millisecond
	maxBackoff     = 5 * time.Second
	closeWaitLimit = 2 * time.Second
)

var errClosed = errors.New("pipeline facility closed")

// Source is a running capture.
type Source interface {
	Device() audio.Device
	Chunks() <-chan []byte
	BytesCaptured() int64
	Stop() error
}

// Stream is a running recognizer stream.
type Stream interface {
	SendAudio([]byte) error
	CloseSend() error
	Wait(context.Context) error
	Done() <-chan struct{}
	Cancel() error
	Close() error
}

// Dialer opens a recognizer stream delivering events to sink.
type Dialer func(context.Context, speechrpc.StreamConfig, speechrpc.EventSink) (Stream, error)

// Capturer starts audio capture. tap may be nil.
type Capturer func(ctx context.Context, tap io.Writer) (Source, error)

// Options configures a Facility.
type Options struct {
	Endpoint    string
	DialTimeout time.Duration
	AudioDump   bool
	// EventDump writes one JSON line per server event to the debug dir.
	EventDump bool
	Logger    *slog.Logger
	Dial      Dialer
	Capture   Capturer
}

// Facility runs one capture and recognizer stream per Start.
type Facility struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	settings recognition.Settings
	handler  recognition.Handler
	current  *run
	failures int
	closed   bool
}

// New builds the live facility from runtime config. It returns
// recognition.ErrUnsupported when no recognizer endpoint is configured.
func New(cfg config.Config, logger *slog.Logger) (*Facility, error) {
	endpoint := strings.TrimSpace(cfg.Recognizer.Endpoint)
	if endpoint == "" {
		return nil, recognition.ErrUnsupported
	}
	input, fallback := cfg.Audio.Input, cfg.Audio.Fallback
	return NewFacility(Options{
		Endpoint:    endpoint,
		DialTimeout: cfg.Recognizer.DialTimeout(),
		AudioDump:   cfg.Debug.AudioDump,
		EventDump:   cfg.Debug.EventDump,
		Logger:      logger,
		Capture: func(ctx context.Context, tap io.Writer) (Source, error) {
			selection, err := audio.SelectDevice(ctx, input, fallback)
			if err != nil {
				return nil, err
			}
			if selection.Warning != "" && logger != nil {
				logger.Warn(selection.Warning)
			}
			return audio.StartCapture(ctx, selection.Device, audio.CaptureOptions{Tap: tap})
		},
	}), nil
}

// NewFacility builds a Facility from explicit collaborators. A nil Dial uses
// speechrpc.DialStream.
func NewFacility(opts Options) *Facility {
	if opts.Dial == nil {
		opts.Dial = func(ctx context.Context, cfg speechrpc.StreamConfig, sink speechrpc.EventSink) (Stream, error) {
			return speechrpc.DialStream(ctx, cfg, sink)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Facility{
		opts:    opts,
		logger:  logger,
		handler: recognition.HandlerFuncs{},
	}
}

func (f *Facility) Configure(settings recognition.Settings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = settings
}

func (f *Facility) Bind(handler recognition.Handler) {
	if handler == nil {
		handler = recognition.HandlerFuncs{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

// Start launches a run in the background and returns immediately. Dial and
// capture failures arrive as OnError followed by OnEnd. Start while a run is
// active is a no-op.
func (f *Facility) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return errClosed
	}
	previous := f.current
	if previous != nil && !previous.ending() {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		ctx:      ctx,
		cancel:   cancel,
		handler:  f.handler,
		settings: f.settings,
		done:     make(chan struct{}),
	}
	f.current = r
	delay := backoff(f.failures)
	go f.execute(r, previous, delay)
	return nil
}

// Stop stops capture and half-closes the stream. OnEnd follows once the
// recognizer has drained.
func (f *Facility) Stop() error {
	f.mu.Lock()
	r := f.current
	f.mu.Unlock()
	if r != nil {
		r.stop()
	}
	return nil
}

// Drain blocks until the current run has delivered OnEnd or ctx is done.
func (f *Facility) Drain(ctx context.Context) error {
	f.mu.Lock()
	r := f.current
	f.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close aborts any run and rejects further Starts.
func (f *Facility) Close() error {
	f.mu.Lock()
	f.closed = true
	r := f.current
	f.mu.Unlock()
	if r == nil {
		return nil
	}

	r.stop()
	r.cancel()
	select {
	case <-r.done:
	case <-time.After(closeWaitLimit):
		f.logger.Warn("pipeline run did not exit after close")
	}
	return nil
}

func (f *Facility) noteOutcome(failed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if failed {
		f.failures++
		return
	}
	f.failures = 0
}

// backoff spaces out restarts after consecutive failed runs.
func backoff(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	delay := minBackoff << (failures - 1)
	if delay <= 0 || delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

func (f *Facility) execute(r *run, previous *run, delay time.Duration) {
	defer close(r.done)
	defer r.cancel()
	defer r.end()

	if previous != nil {
		select {
		case <-previous.done:
		case <-r.ctx.Done():
			return
		}
	}
	if delay > 0 {
		f.logger.Debug("pipeline restart backoff", "delay_ms", delay.Milliseconds())
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-r.ctx.Done():
			timer.Stop()
			return
		}
	}
	if r.stopRequested() {
		return
	}

	var eventDump *os.File
	if f.opts.EventDump {
		file, err := createDebugFile("events", "jsonl")
		if err != nil {
			f.logger.Warn("unable to create event dump", "error", err.Error())
		} else {
			eventDump = file
			defer eventDump.Close()
		}
	}

	streamCfg := speechrpc.StreamConfig{
		Endpoint:       f.opts.Endpoint,
		Language:       r.settings.Language,
		SampleRateHz:   audio.SampleRateHz,
		InterimResults: r.settings.InterimResults,
		DialTimeout:    f.opts.DialTimeout,
	}
	if eventDump != nil {
		streamCfg.DebugEventSinkJSON = eventDump
	}

	stream, err := f.opts.Dial(r.ctx, streamCfg, r.deliver)
	if err != nil {
		if r.stopRequested() {
			return
		}
		f.logger.Warn("recognizer stream unavailable", "endpoint", f.opts.Endpoint, "error", err.Error())
		f.noteOutcome(true)
		r.handler.OnError(speechrpc.KindForError(err))
		return
	}

	var tap *wavDump
	if f.opts.AudioDump {
		file, err := createDebugFile("audio", "wav")
		if err != nil {
			f.logger.Warn("unable to create debug audio dump", "error", err.Error())
		} else {
			tap = newWAVDump(file)
		}
	}

	source, err := f.startCapture(r.ctx, tap)
	if err != nil {
		f.logger.Warn("audio capture failed", "error", err.Error())
		_ = stream.Cancel()
		f.closeTap(tap)
		f.noteOutcome(true)
		r.handler.OnError(recognition.ErrorAudioCapture)
		return
	}

	if !r.attach(source) {
		_ = source.Stop()
	}
	f.noteOutcome(false)
	f.logger.Info("recognition run started",
		"device", describeDevice(source.Device()),
		"language", r.settings.Language,
	)
	r.handler.OnStart()

	pumped := make(chan struct{})
	go func() {
		select {
		case <-stream.Done():
			_ = source.Stop()
		case <-pumped:
		}
	}()
	sendErr := pump(source, stream)
	close(pumped)
	f.closeTap(tap)

	if sendErr != nil {
		f.logger.Warn("send audio stream failed", "error", sendErr.Error())
	}
	_ = stream.CloseSend()

	waitCtx, cancel := context.WithTimeout(r.ctx, drainTimeout)
	waitErr := stream.Wait(waitCtx)
	cancel()
	if waitErr != nil {
		_ = stream.Cancel()
		kind := speechrpc.KindForError(waitErr)
		if !(r.stopRequested() && kind == recognition.ErrorAborted) {
			f.logger.Warn("recognizer stream failed", "error", waitErr.Error(), "kind", string(kind))
			r.handler.OnError(kind)
		}
	} else {
		_ = stream.Close()
	}

	f.logger.Info("recognition run ended",
		"bytes_captured", source.BytesCaptured(),
		"stopped", r.stopRequested(),
	)
}

func (f *Facility) startCapture(ctx context.Context, tap *wavDump) (Source, error) {
	if f.opts.Capture == nil {
		return nil, errors.New("no audio capture configured")
	}
	var w io.Writer
	if tap != nil {
		w = tap
	}
	source, err := f.opts.Capture(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("start capture: %w", err)
	}
	return source, nil
}

func (f *Facility) closeTap(tap *wavDump) {
	if tap == nil {
		return
	}
	if err := tap.Close(); err != nil {
		f.logger.Warn("unable to write debug audio dump", "error", err.Error())
	}
}

// pump forwards capture chunks until the source closes, stopping capture on
// the first send failure.
func pump(source Source, stream Stream) error {
	var sendErr error
	for chunk := range source.Chunks() {
		if sendErr != nil || len(chunk) == 0 {
			continue
		}
		if err := stream.SendAudio(chunk); err != nil {
			sendErr = err
			_ = source.Stop()
		}
	}
	return sendErr
}

// run is one Start-to-OnEnd cycle.
type run struct {
	ctx      context.Context
	cancel   context.CancelFunc
	handler  recognition.Handler
	settings recognition.Settings
	done     chan struct{}

	mu       sync.Mutex
	source   Source
	stopping bool
	ended    bool
}

func (r *run) deliver(ev speechrpc.Event) {
	switch ev.Type {
	case speechrpc.EventResult:
		r.handler.OnResult(ev.Batch)
	case speechrpc.EventError:
		r.handler.OnError(ev.Error)
	}
}

// attach records the running source. It reports false when Stop already ran.
func (r *run) attach(source Source) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.source = source
	return !r.stopping
}

func (r *run) stop() {
	r.mu.Lock()
	if r.stopping {
		r.mu.Unlock()
		return
	}
	r.stopping = true
	source := r.source
	r.mu.Unlock()

	if source != nil {
		_ = source.Stop()
		return
	}
	r.cancel()
}

func (r *run) stopRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopping
}

func (r *run) end() {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return
	}
	r.ended = true
	r.mu.Unlock()
	r.handler.OnEnd()
}

func (r *run) ending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

package replay

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/candi/dictation/internal/recognition"
)

// ErrExhausted is returned by Start once every step has been played.
var ErrExhausted = errors.New("replay script exhausted")

// Facility plays a Script through a recognition.Handler in real time.
type Facility struct {
	script Script
	logger *slog.Logger

	mu       sync.Mutex
	handler  recognition.Handler
	settings recognition.Settings
	cursor   int
	playing  *playback
	closed   bool
}

type playback struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewFacility returns a facility positioned at the first step.
func NewFacility(script Script, logger *slog.Logger) *Facility {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Facility{
		script:  script,
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

// Start plays the next segment. It is a no-op while a segment is playing.
func (f *Facility) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return errors.New("replay facility closed")
	}
	if f.playing != nil {
		select {
		case <-f.playing.done:
		default:
			return nil
		}
	}
	if f.cursor >= len(f.script) {
		return ErrExhausted
	}

	p := &playback{stop: make(chan struct{}), done: make(chan struct{})}
	f.playing = p
	go f.play(p, f.handler)
	return nil
}

// Stop interrupts the current segment. OnEnd follows.
func (f *Facility) Stop() error {
	f.mu.Lock()
	p := f.playing
	f.mu.Unlock()
	if p != nil {
		p.once.Do(func() { close(p.stop) })
	}
	return nil
}

func (f *Facility) Close() error {
	f.mu.Lock()
	f.closed = true
	p := f.playing
	f.mu.Unlock()
	if p != nil {
		p.once.Do(func() { close(p.stop) })
		<-p.done
	}
	return nil
}

// Remaining reports how many steps have not been played yet.
func (f *Facility) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.script) - f.cursor
}

// play runs steps until an end step, the end of the script, or Stop.
// OnEnd is delivered exactly once.
func (f *Facility) play(p *playback, handler recognition.Handler) {
	defer handler.OnEnd()
	defer close(p.done)

	f.mu.Lock()
	first := f.cursor
	f.mu.Unlock()
	if first < len(f.script) && f.script[first].Event != KindStart {
		handler.OnStart()
	}

	for {
		f.mu.Lock()
		if f.cursor >= len(f.script) {
			f.mu.Unlock()
			return
		}
		step := f.script[f.cursor]
		f.mu.Unlock()

		if delay := step.Delay(); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-p.stop:
				timer.Stop()
				return
			}
		} else {
			select {
			case <-p.stop:
				return
			default:
			}
		}

		f.mu.Lock()
		f.cursor++
		f.mu.Unlock()

		switch step.Event {
		case KindStart:
			handler.OnStart()
		case KindResult:
			handler.OnResult(step.Batch())
		case KindError:
			handler.OnError(step.Error)
		case KindEnd:
			f.logger.Debug("replay segment ended")
			return
		}
	}
}

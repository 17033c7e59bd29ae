// Package session accumulates a live transcript from a restartable speech
// recognition facility and exposes it to concurrent observers.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/candi/dictation/internal/ipc"
	"github.com/candi/dictation/internal/recognition"
)

type event func(*Session)

// Options carries optional collaborators for New.
type Options struct {
	Logger *slog.Logger
	// OnFinalFragment runs on the owner goroutine once per committed merge.
	// It must not call back into the Session.
	OnFinalFragment func(string)
	SessionID       string
}

// Session owns one Engine on a dedicated goroutine. Every operation and
// facility callback is serialized through a FIFO mailbox.
type Session struct {
	logger *slog.Logger
	engine *Engine
	timers *timerSet
	box    *mailbox

	mu       sync.RWMutex
	snapshot Snapshot
	watchers map[int]chan Snapshot
	nextID   int
	sealed   bool

	done      chan struct{}
	quit      chan struct{}
	quitOnce  sync.Once
	closeOnce sync.Once
}

// New starts the owner goroutine and binds facility. A nil facility yields an
// unsupported session whose operations are no-ops.
func New(cfg Config, facility recognition.Facility, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	id := opts.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	s := &Session{
		logger:   logger,
		box:      newMailbox(),
		watchers: make(map[int]chan Snapshot),
		done:     make(chan struct{}),
		quit:     make(chan struct{}),
	}
	s.timers = newTimerSet(func(kind Timer, gen uint64) {
		s.box.post(func(s *Session) {
			if s.timers.accept(kind, gen) {
				s.engine.HandleTimer(kind)
			}
		})
	})

	handler := recognition.HandlerFuncs{
		Started: func() { s.box.post(func(s *Session) { s.engine.HandleStart() }) },
		Result: func(b recognition.Batch) {
			s.box.post(func(s *Session) { s.engine.HandleResult(b) })
		},
		Error: func(kind recognition.ErrorKind) {
			s.box.post(func(s *Session) { s.engine.HandleError(kind) })
		},
		Ended: func() { s.box.post(func(s *Session) { s.engine.HandleEnd() }) },
	}

	s.engine = NewEngine(cfg, facility, s.timers, EngineOptions{
		Logger:          logger,
		Handler:         handler,
		OnFinalFragment: opts.OnFinalFragment,
		SessionID:       id,
	})
	s.snapshot = s.engine.Snapshot()

	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.done)
	for range s.box.notify {
		events, closed := s.box.drain()
		for _, ev := range events {
			ev(s)
			s.publish()
		}
		if closed {
			s.timers.stopAll()
			s.closeWatchers()
			return
		}
	}
}

// do runs fn on the owner goroutine and waits until its effects are
// published. It reports false once the session is closed.
func (s *Session) do(fn func(*Engine)) bool {
	finished := make(chan struct{})
	posted := s.box.post(func(s *Session) {
		defer close(finished)
		fn(s.engine)
		s.publish()
	})
	if !posted {
		return false
	}
	select {
	case <-finished:
		return true
	case <-s.done:
		return false
	}
}

// Start begins listening.
func (s *Session) Start() { s.do((*Engine).Start) }

// Stop ends listening and flushes pending interim text.
func (s *Session) Stop() { s.do((*Engine).Stop) }

// Clear empties the transcript buffers.
func (s *Session) Clear() { s.do((*Engine).Clear) }

// AppendNewline appends a paragraph break to the final transcript.
func (s *Session) AppendNewline() { s.do((*Engine).AppendNewline) }

// Reconfigure applies cfg, restarting the facility when it was listening.
func (s *Session) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.do(func(e *Engine) { e.Reconfigure(cfg) })
	return nil
}

// Config returns the active configuration.
func (s *Session) Config() Config {
	var cfg Config
	if !s.do(func(e *Engine) { cfg = e.Config() }) {
		return s.engine.cfg
	}
	return cfg
}

// Snapshot returns the latest published state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Watch returns a channel carrying the latest snapshot after each change,
// starting with the current one. Slow readers only see the newest value.
// The channel closes when cancel is called or the session closes.
func (s *Session) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	if s.sealed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	ch <- s.snapshot
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.watchers[id]; ok {
				delete(s.watchers, id)
				close(ch)
			}
		})
	}
}

// Close tears the session down and returns the final snapshot.
func (s *Session) Close() Snapshot {
	s.closeOnce.Do(func() {
		s.do((*Engine).Teardown)
		s.box.close()
		<-s.done
		s.logger.Info("session closed", "session_id", s.Snapshot().SessionID)
	})
	return s.Snapshot()
}

// Done closes once the owner goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// QuitRequested closes once an IPC client asks the owner to exit.
func (s *Session) QuitRequested() <-chan struct{} {
	return s.quit
}

func (s *Session) publish() {
	next := s.engine.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	if next.sameContent(s.snapshot) {
		return
	}
	s.snapshot = next
	for _, ch := range s.watchers {
		offerLatest(ch, next)
	}
}

func (s *Session) closeWatchers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
}

// offerLatest replaces any unread value so the channel holds the newest one.
func offerLatest(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// Handle serves IPC commands against this session.
func (s *Session) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return s.respond("status")
	case ipc.CommandStart:
		s.Start()
		return s.respond("start requested")
	case ipc.CommandStop:
		s.Stop()
		return s.respond("stop requested")
	case ipc.CommandClear:
		s.Clear()
		return s.respond("transcript cleared")
	case ipc.CommandNewline:
		s.AppendNewline()
		return s.respond("paragraph appended")
	case ipc.CommandText:
		return s.respond("text")
	case ipc.CommandQuit:
		s.quitOnce.Do(func() { close(s.quit) })
		return s.respond("quit requested")
	default:
		snap := s.Snapshot()
		return ipc.Response{OK: false, State: string(snap.State), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (s *Session) respond(message string) ipc.Response {
	snap := s.Snapshot()
	resp := ipc.Response{
		OK:          true,
		State:       string(snap.State),
		Listening:   snap.IsListening,
		FinalText:   snap.FinalText,
		InterimText: snap.InterimText,
		Message:     message,
	}
	if !snap.IsSupported {
		resp.OK = false
		resp.Error = recognition.ErrUnsupported.Error()
	}
	if snap.LastError != nil {
		resp.LastError = string(snap.LastError.Kind)
	}
	return resp
}

package session

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/candi/dictation/internal/fsm"
	"github.com/candi/dictation/internal/recognition"
	"github.com/candi/dictation/internal/transcript"
)

// ErrorKindUnsupported tags the error recorded when no facility is available.
const ErrorKindUnsupported recognition.ErrorKind = "unsupported"

// ErrorState is the most recent surfaced recognition error.
type ErrorState struct {
	Kind  recognition.ErrorKind  `json:"kind"`
	Class recognition.ErrorClass `json:"class"`
	At    time.Time              `json:"at"`
}

// Snapshot is an immutable view of session state.
type Snapshot struct {
	SessionID   string      `json:"session_id"`
	State       fsm.State   `json:"state"`
	FinalText   string      `json:"final_text"`
	InterimText string      `json:"interim_text"`
	IsListening bool        `json:"is_listening"`
	IsSupported bool        `json:"is_supported"`
	LastError   *ErrorState `json:"last_error,omitempty"`
	Restarts    int         `json:"restarts"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (s Snapshot) sameContent(other Snapshot) bool {
	if s.SessionID != other.SessionID ||
		s.State != other.State ||
		s.FinalText != other.FinalText ||
		s.InterimText != other.InterimText ||
		s.IsListening != other.IsListening ||
		s.IsSupported != other.IsSupported ||
		s.Restarts != other.Restarts {
		return false
	}
	if (s.LastError == nil) != (other.LastError == nil) {
		return false
	}
	if s.LastError == nil {
		return true
	}
	return *s.LastError == *other.LastError
}

// EngineOptions carries optional collaborators for NewEngine.
type EngineOptions struct {
	Logger *slog.Logger
	// Handler receives facility callbacks. Nil binds the engine directly.
	Handler recognition.Handler
	// OnFinalFragment fires once per committed merge with the merged fragment.
	OnFinalFragment func(string)
	Now             func() time.Time
	SessionID       string
}

// Engine applies transcript accumulation rules to facility callbacks. It is
// not safe for concurrent use; Session serializes access on one goroutine.
type Engine struct {
	cfg      Config
	logger   *slog.Logger
	facility recognition.Facility
	handler  recognition.Handler
	timers   Scheduler
	onFinal  func(string)
	now      func() time.Time

	id        string
	supported bool
	closed    bool

	state           fsm.State
	manuallyStopped bool
	finalText       string
	interimText     string
	pendingInterim  string
	lastError       *ErrorState
	restarts        int
	updatedAt       time.Time
}

// NewEngine binds facility and returns an idle engine. A nil facility yields
// an engine that reports unsupported and ignores every operation.
func NewEngine(cfg Config, facility recognition.Facility, timers Scheduler, opts EngineOptions) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if timers == nil {
		timers = noopScheduler{}
	}
	id := opts.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger.With("session_id", id),
		facility:  facility,
		timers:    timers,
		onFinal:   opts.OnFinalFragment,
		now:       now,
		id:        id,
		supported: facility != nil,
		state:     fsm.StateIdle,
	}
	e.updatedAt = now()

	if !e.supported {
		e.lastError = &ErrorState{Kind: ErrorKindUnsupported, Class: recognition.ClassUnsupported, At: e.updatedAt}
		e.logger.Warn("speech recognition unsupported; session is inert")
		return e
	}

	handler := opts.Handler
	if handler == nil {
		handler = e
	}
	e.handler = handler
	facility.Configure(cfg.settings())
	facility.Bind(handler)
	return e
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	var lastErr *ErrorState
	if e.lastError != nil {
		copied := *e.lastError
		lastErr = &copied
	}
	return Snapshot{
		SessionID:   e.id,
		State:       e.state,
		FinalText:   e.finalText,
		InterimText: e.interimText,
		IsListening: e.state.Listening(),
		IsSupported: e.supported,
		LastError:   lastErr,
		Restarts:    e.restarts,
		UpdatedAt:   e.updatedAt,
	}
}

// Config returns the active configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Start begins listening. It is a no-op while already listening.
func (e *Engine) Start() {
	if !e.usable() || e.state.Listening() {
		return
	}
	e.lastError = nil
	e.manuallyStopped = false
	e.transition(fsm.EventStart)
	if err := e.facility.Start(); err != nil {
		e.logger.Warn("facility start failed; continuing", "error", err.Error())
	}
	e.logger.Info("listening started", "language", e.cfg.Language)
	e.touch()
}

// Stop ends listening, flushes any pending interim text and cancels both
// pause timers. Repeated calls are no-ops.
func (e *Engine) Stop() {
	if !e.usable() || e.state == fsm.StateIdle {
		return
	}
	e.manuallyStopped = true
	e.flushInterim()
	e.cancelTimers()
	e.settle()
	if err := e.facility.Stop(); err != nil {
		e.logger.Warn("facility stop failed", "error", err.Error())
	}
	e.logger.Info("listening stopped", "final_chars", len([]rune(e.finalText)))
	e.touch()
}

// Clear empties both text buffers without touching the listening state.
func (e *Engine) Clear() {
	if !e.usable() {
		return
	}
	e.finalText = ""
	e.interimText = ""
	e.pendingInterim = ""
	e.touch()
}

// AppendNewline appends a paragraph break to non-empty final text.
func (e *Engine) AppendNewline() {
	if !e.usable() {
		return
	}
	next := transcript.AppendParagraph(e.finalText)
	if next == e.finalText {
		return
	}
	e.finalText = next
	e.touch()
}

// Reconfigure swaps the configuration and rebinds the facility, resuming
// listening when it was active. An unchanged configuration is a no-op.
func (e *Engine) Reconfigure(cfg Config) {
	if cfg == e.cfg {
		return
	}
	if !e.usable() {
		e.cfg = cfg
		return
	}
	wasListening := e.state.Listening()
	if wasListening {
		e.Stop()
	}
	e.cancelTimers()
	e.cfg = cfg
	e.facility.Configure(cfg.settings())
	e.facility.Bind(e.handler)
	e.logger.Info("session reconfigured",
		"language", cfg.Language,
		"short_pause", cfg.ShortPause.String(),
		"long_pause", cfg.LongPause.String(),
		"auto_break", cfg.AutoBreak,
		"normalize", cfg.Normalize,
	)
	if wasListening {
		e.Start()
	}
}

// Teardown cancels timers, stops the facility, flushes once and releases the
// facility. Later calls are no-ops.
func (e *Engine) Teardown() {
	if e.closed {
		return
	}
	if !e.supported {
		e.closed = true
		return
	}
	e.cancelTimers()
	if e.state != fsm.StateIdle {
		e.manuallyStopped = true
		e.settle()
		if err := e.facility.Stop(); err != nil {
			e.logger.Debug("facility stop during teardown failed", "error", err.Error())
		}
	}
	e.flushInterim()
	e.closed = true
	if err := e.facility.Close(); err != nil {
		e.logger.Debug("facility close failed", "error", err.Error())
	}
	e.touch()
}

// HandleStart records a facility start acknowledgement.
func (e *Engine) HandleStart() {
	if !e.usable() {
		return
	}
	if e.state.Listening() && e.lastError != nil {
		e.lastError = nil
		e.touch()
	}
	e.logger.Debug("facility started")
}

// HandleResult applies one result batch.
func (e *Engine) HandleResult(b recognition.Batch) {
	if !e.usable() {
		return
	}
	interim, final := recognition.Split(b)

	if final != "" {
		e.interimText = ""
		e.pendingInterim = ""
		e.commit(final)
	} else {
		trimmed := transcript.Prepare(interim, transcript.Options{})
		e.interimText = trimmed
		e.pendingInterim = trimmed
	}

	if interim != "" || final != "" {
		e.armTimers()
	}
	e.touch()
}

// HandleTimer applies a pause timer fire.
func (e *Engine) HandleTimer(t Timer) {
	if !e.usable() || !e.cfg.AutoBreak || !e.state.Listening() {
		return
	}
	before := e.finalText
	switch t {
	case ShortPause:
		e.flushInterim()
		e.finalText = transcript.EnsureLineBreak(e.finalText)
	case LongPause:
		e.finalText = transcript.EnsureParagraphBreak(e.finalText)
	default:
		return
	}
	if e.finalText != before {
		e.logger.Debug("pause break applied", "timer", t.String())
	}
	e.touch()
}

// HandleError applies a facility error by class.
func (e *Engine) HandleError(kind recognition.ErrorKind) {
	if !e.usable() {
		return
	}
	class := kind.Class()
	switch class {
	case recognition.ClassBenign:
		e.logger.Debug("benign recognition error ignored", "kind", kind.String())
		return
	case recognition.ClassPermission:
		e.flushInterim()
		e.lastError = &ErrorState{Kind: kind, Class: class, At: e.now()}
		e.manuallyStopped = true
		e.cancelTimers()
		e.transition(fsm.EventDeny)
		e.logger.Error("recognition permission denied", "kind", kind.String())
	default:
		e.flushInterim()
		e.lastError = &ErrorState{Kind: kind, Class: class, At: e.now()}
		if e.manuallyStopped {
			e.settle()
			e.logger.Warn("recognition error after stop", "kind", kind.String())
		} else {
			e.logger.Warn("recognition error; awaiting end", "kind", kind.String())
		}
	}
	e.touch()
}

// HandleEnd flushes pending interim text and restarts the facility unless
// listening was stopped on purpose.
func (e *Engine) HandleEnd() {
	if !e.usable() {
		return
	}
	e.flushInterim()
	defer e.touch()

	if !e.state.Listening() {
		return
	}
	e.transition(fsm.EventEnd)
	if e.manuallyStopped {
		e.transition(fsm.EventSettle)
		return
	}

	e.restarts++
	if err := e.facility.Start(); err != nil {
		e.logger.Error("automatic restart failed", "error", err.Error(), "restarts", e.restarts)
		e.cancelTimers()
		e.transition(fsm.EventSettle)
		return
	}
	e.transition(fsm.EventRestart)
	e.logger.Info("recognition ended unexpectedly; restarted", "restarts", e.restarts)
}

// OnStart lets an engine be bound directly to a facility.
func (e *Engine) OnStart() {
	e.HandleStart()
}

func (e *Engine) OnResult(b recognition.Batch) {
	e.HandleResult(b)
}

func (e *Engine) OnError(kind recognition.ErrorKind) {
	e.HandleError(kind)
}

func (e *Engine) OnEnd() {
	e.HandleEnd()
}

func (e *Engine) usable() bool {
	return e.supported && !e.closed
}

func (e *Engine) commit(fragment string) {
	prepared := transcript.Prepare(fragment, e.cfg.textOptions())
	merged, changed := transcript.Merge(e.finalText, prepared)
	if !changed {
		return
	}
	e.finalText = merged
	if e.onFinal != nil {
		e.onFinal(prepared)
	}
}

func (e *Engine) flushInterim() {
	if e.pendingInterim == "" {
		return
	}
	pending := e.pendingInterim
	e.pendingInterim = ""
	e.interimText = ""
	e.commit(pending)
}

func (e *Engine) armTimers() {
	if !e.cfg.AutoBreak || !e.state.Listening() {
		return
	}
	e.timers.Schedule(ShortPause, e.cfg.ShortPause)
	e.timers.Schedule(LongPause, e.cfg.LongPause)
}

func (e *Engine) cancelTimers() {
	e.timers.Cancel(ShortPause)
	e.timers.Cancel(LongPause)
}

// settle moves any non-idle state to idle.
func (e *Engine) settle() {
	switch e.state {
	case fsm.StateListening:
		e.transition(fsm.EventStop)
	case fsm.StateEnded:
		e.transition(fsm.EventSettle)
	}
}

func (e *Engine) transition(event fsm.Event) {
	next, err := fsm.Transition(e.state, event)
	if err != nil {
		e.logger.Debug("transition rejected", "error", err.Error())
		return
	}
	e.state = next
}

func (e *Engine) touch() {
	e.updatedAt = e.now()
}

type noopScheduler struct{}

func (noopScheduler) Schedule(Timer, time.Duration) {}
func (noopScheduler) Cancel(Timer)                  {}

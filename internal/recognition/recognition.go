// Package recognition defines the contract between the transcript session and
// a continuous, restartable speech recognition facility.
package recognition

import (
	"errors"
	"strings"
)

// ErrUnsupported reports that the host exposes no speech recognition capability.
var ErrUnsupported = errors.New("speech recognition is not supported in this environment")

// Fragment is one chunk of recognized text, either final or still evolving.
type Fragment struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"final"`
}

// Batch is one result update. Only Fragments[ResultIndex:] are new.
type Batch struct {
	ResultIndex int        `json:"result_index"`
	Fragments   []Fragment `json:"fragments"`
}

// New returns the fragments at or after the low-water result index.
func (b Batch) New() []Fragment {
	idx := b.ResultIndex
	if idx < 0 {
		idx = 0
	}
	if idx > len(b.Fragments) {
		idx = len(b.Fragments)
	}
	return b.Fragments[idx:]
}

// Split concatenates new interim and final fragments separately, in arrival order.
func Split(b Batch) (interim string, final string) {
	var interimText, finalText strings.Builder
	for _, fragment := range b.New() {
		if fragment.IsFinal {
			finalText.WriteString(fragment.Text)
			continue
		}
		interimText.WriteString(fragment.Text)
	}
	return interimText.String(), finalText.String()
}

// Settings configures a facility before it is started.
type Settings struct {
	Language       string
	Continuous     bool
	InterimResults bool
}

// Handler receives facility callbacks. Implementations must not block.
type Handler interface {
	OnStart()
	OnResult(Batch)
	OnError(ErrorKind)
	OnEnd()
}

// Facility is a continuous stream of speech hypotheses that can be restarted.
type Facility interface {
	Configure(Settings)
	Bind(Handler)
	Start() error
	Stop() error
	Close() error
}

// HandlerFuncs adapts optional callbacks to the Handler interface.
type HandlerFuncs struct {
	Started func()
	Result  func(Batch)
	Error   func(ErrorKind)
	Ended   func()
}

func (h HandlerFuncs) OnStart() {
	if h.Started != nil {
		h.Started()
	}
}

func (h HandlerFuncs) OnResult(b Batch) {
	if h.Result != nil {
		h.Result(b)
	}
}

func (h HandlerFuncs) OnError(kind ErrorKind) {
	if h.Error != nil {
		h.Error(kind)
	}
}

func (h HandlerFuncs) OnEnd() {
	if h.Ended != nil {
		h.Ended()
	}
}

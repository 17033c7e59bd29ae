package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateEnded     State = "ended"
)

const (
	EventStart   Event = "start"
	EventStop    Event = "stop"
	EventEnd     Event = "end"
	EventRestart Event = "restart"
	EventSettle  Event = "settle"
	EventDeny    Event = "deny"
)

// Listening reports whether the recognition facility is considered active.
func (s State) Listening() bool {
	return s == StateListening
}

func Transition(current State, event Event) (State, error) {
	if event == EventDeny {
		switch current {
		case StateIdle, StateListening, StateEnded:
			return StateIdle, nil
		default:
			return current, fmt.Errorf("unknown state %q", current)
		}
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventStop:
			return StateIdle, nil
		case EventEnd:
			return StateEnded, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateEnded:
		switch event {
		case EventRestart, EventStart:
			return StateListening, nil
		case EventSettle:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}

package session

import "time"

// Timer identifies one of the two pause timers owned by a session.
type Timer int

const (
	ShortPause Timer = iota + 1
	LongPause
)

func (t Timer) String() string {
	switch t {
	case ShortPause:
		return "short_pause"
	case LongPause:
		return "long_pause"
	default:
		return "unknown"
	}
}

// Scheduler arms and cancels pause timers on behalf of the engine.
// Schedule replaces any pending countdown for the same timer.
type Scheduler interface {
	Schedule(Timer, time.Duration)
	Cancel(Timer)
}

// timerSet backs Scheduler with time.AfterFunc. Fires carry a generation so
// the owner loop can drop countdowns that were superseded after they fired.
// All methods except the fire callback run on the owner goroutine.
type timerSet struct {
	fire    func(Timer, uint64)
	handles map[Timer]*time.Timer
	gens    map[Timer]uint64
}

func newTimerSet(fire func(Timer, uint64)) *timerSet {
	return &timerSet{
		fire:    fire,
		handles: make(map[Timer]*time.Timer),
		gens:    make(map[Timer]uint64),
	}
}

func (t *timerSet) Schedule(kind Timer, d time.Duration) {
	t.Cancel(kind)
	gen := t.gens[kind]
	t.handles[kind] = time.AfterFunc(d, func() {
		t.fire(kind, gen)
	})
}

func (t *timerSet) Cancel(kind Timer) {
	if handle, ok := t.handles[kind]; ok {
		handle.Stop()
		delete(t.handles, kind)
	}
	t.gens[kind]++
}

// accept reports whether a fired generation is still the armed countdown and
// disarms it when it is.
func (t *timerSet) accept(kind Timer, gen uint64) bool {
	if _, ok := t.handles[kind]; !ok {
		return false
	}
	if t.gens[kind] != gen {
		return false
	}
	delete(t.handles, kind)
	return true
}

func (t *timerSet) stopAll() {
	for kind := range t.handles {
		t.Cancel(kind)
	}
}

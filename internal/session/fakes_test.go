package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/candi/dictation/internal/recognition"
)

var errFakeStart = errors.New("fake start failure")

type fakeFacility struct {
	mu       sync.Mutex
	handler  recognition.Handler
	settings []recognition.Settings
	startErr error

	// onStart runs inside Start with the bound handler, if set.
	onStart func(recognition.Handler)

	binds  atomic.Int32
	starts atomic.Int32
	stops  atomic.Int32
	closes atomic.Int32
}

func (f *fakeFacility) Configure(s recognition.Settings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = append(f.settings, s)
}

func (f *fakeFacility) Bind(h recognition.Handler) {
	f.binds.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeFacility) Start() error {
	f.starts.Add(1)
	f.mu.Lock()
	err := f.startErr
	hook := f.onStart
	h := f.handler
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(h)
	}
	return nil
}

func (f *fakeFacility) Stop() error {
	f.stops.Add(1)
	return nil
}

func (f *fakeFacility) Close() error {
	f.closes.Add(1)
	return nil
}

func (f *fakeFacility) bound() recognition.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

func (f *fakeFacility) setStartErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
}

func (f *fakeFacility) lastSettings() recognition.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings[len(f.settings)-1]
}

type fakeScheduler struct {
	armed   map[Timer]time.Duration
	cancels map[Timer]int
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{armed: map[Timer]time.Duration{}, cancels: map[Timer]int{}}
}

func (f *fakeScheduler) Schedule(t Timer, d time.Duration) {
	f.armed[t] = d
}

func (f *fakeScheduler) Cancel(t Timer) {
	delete(f.armed, t)
	f.cancels[t]++
}

func finalBatch(texts ...string) recognition.Batch {
	b := recognition.Batch{}
	for _, text := range texts {
		b.Fragments = append(b.Fragments, recognition.Fragment{Text: text, IsFinal: true})
	}
	return b
}

func interimBatch(text string) recognition.Batch {
	return recognition.Batch{Fragments: []recognition.Fragment{{Text: text}}}
}

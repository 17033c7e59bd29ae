package session

import "sync"

// mailbox is an unbounded FIFO drained by the owner goroutine. Posting never
// blocks, so facility callbacks fired during Start or Stop cannot deadlock.
type mailbox struct {
	mu     sync.Mutex
	items  []event
	closed bool
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) post(ev event) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, ev)
	m.mu.Unlock()
	m.signal()
	return true
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

// drain takes every queued event and reports whether the mailbox is closed.
func (m *mailbox) drain() ([]event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items, m.closed
}

func (m *mailbox) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

package agent

import "sync"

// mailbox is a session's inbox. put never blocks so one slow session
// cannot stall the dispatcher for the others.
type mailbox struct {
	mu     sync.Mutex
	queue  []UserEvent
	closed bool
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

// put reports false when the session is gone; the caller keeps ownership.
func (m *mailbox) put(ev UserEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.queue = append(m.queue, ev)
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox) take() []UserEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queue
	m.queue = nil
	return q
}

func (m *mailbox) close() {
	m.mu.Lock()
	q := m.queue
	m.queue = nil
	m.closed = true
	m.mu.Unlock()
	for _, ev := range q {
		Release(ev)
	}
}

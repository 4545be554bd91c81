package device

import (
	"sync"

	"github.com/nerrad567/echo-control-core/internal/protocol"
)

// EventKind identifies a mailbox item.
type EventKind uint8

// Mailbox event kinds.
const (
	EventPacket EventKind = iota + 1
	EventConfig
	EventCustom
	eventConnect
)

// Event is one mailbox item.
type Event struct {
	Kind   EventKind
	Packet protocol.Packet

	// Key and Value carry a property update for EventConfig.
	Key   string
	Value string

	// Name identifies an EventCustom event.
	Name string
}

// mailbox is an unbounded FIFO. post never blocks.
type mailbox struct {
	mu     sync.Mutex
	items  []Event
	closed bool

	// notify holds at most one pending wake-up.
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

// post appends e. It returns false once the mailbox is closed.
func (m *mailbox) post(e Event) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, e)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

// pop removes the oldest item.
func (m *mailbox) pop() (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return Event{}, false
	}
	e := m.items[0]
	m.items[0] = Event{}
	m.items = m.items[1:]
	return e, true
}

// close rejects further posts and discards pending items.
func (m *mailbox) close() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	n := len(m.items)
	m.items = nil
	return n
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

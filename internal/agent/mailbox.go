package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/opencode-ai/collab/internal/groupchat"
)

// ErrMailboxClosed is returned by Next once the mailbox is closed and empty.
var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox is an agent's queue of pending chat input. Pushing never blocks.
// Closing it asks the agent to wind down: queued messages can still be read,
// after which Next reports ErrMailboxClosed.
type Mailbox struct {
	mu     sync.Mutex
	queue  []groupchat.Message
	notify chan struct{}
	closed bool
}

// NewMailbox creates an empty, open mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{notify: make(chan struct{}, 1)}
}

// Push enqueues messages. It returns false if the mailbox is closed.
func (m *Mailbox) Push(msgs ...groupchat.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.queue = append(m.queue, msgs...)
	m.signal()
	return true
}

// Next blocks until input is available and returns everything queued.
func (m *Mailbox) Next(ctx context.Context) ([]groupchat.Message, error) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			msgs := m.queue
			m.queue = nil
			m.mu.Unlock()
			return msgs, nil
		}
		if m.closed {
			m.mu.Unlock()
			return nil, ErrMailboxClosed
		}
		m.mu.Unlock()

		select {
		case <-m.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryNext returns everything queued without blocking.
func (m *Mailbox) TryNext() []groupchat.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.queue
	m.queue = nil
	return msgs
}

// Pending returns the number of queued messages.
func (m *Mailbox) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Close stops the mailbox from accepting input.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.signal()
}

// Closed reports whether Close has been called.
func (m *Mailbox) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mailbox) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

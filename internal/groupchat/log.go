package groupchat

import (
	"sync"
	"time"
)

// DefaultMaxMessages is the retention limit used when none is configured.
const DefaultMaxMessages = 500

// DeliverFunc receives the unread messages handed to one recipient.
// It is called with the log lock held and must not call back into the log.
type DeliverFunc func(recipient string, unread []Message)

// Log is an ordered, bounded message log with a read cursor per agent.
//
// Cursors hold sequence numbers rather than slice offsets, so trimming old
// entries never moves them. A cursor of n means every message with Seq <= n
// has been handed to that agent.
type Log struct {
	mu          sync.RWMutex
	entries     []Message
	nextSeq     int64
	cursors     map[string]int64
	maxMessages int
	now         func() time.Time
}

// NewLog creates an empty log that retains at most maxMessages entries.
// A non-positive limit selects DefaultMaxMessages.
func NewLog(maxMessages int) *Log {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Log{
		nextSeq:     1,
		cursors:     make(map[string]int64),
		maxMessages: maxMessages,
		now:         time.Now,
	}
}

// Append adds msg to the log and delivers to every recipient, as one atomic
// step, the messages it has not yet seen. Each recipient's cursor ends at the
// new message. Messages a recipient authored itself are skipped in its batch.
// The stored message (with Seq and Time set) is returned.
func (l *Log) Append(msg Message, recipients []string, deliver DeliverFunc) Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg.Seq = l.nextSeq
	l.nextSeq++
	if msg.Time.IsZero() {
		msg.Time = l.now()
	}
	if msg.Mentions != nil {
		msg.Mentions = append([]string(nil), msg.Mentions...)
	}
	if msg.Targets != nil {
		msg.Targets = append([]string(nil), msg.Targets...)
	}

	l.entries = append(l.entries, msg)
	if over := len(l.entries) - l.maxMessages; over > 0 {
		l.entries = append([]Message(nil), l.entries[over:]...)
	}

	for _, id := range recipients {
		unread := l.unreadLocked(id)
		l.cursors[id] = msg.Seq
		if deliver != nil && len(unread) > 0 {
			deliver(id, unread)
		}
	}
	return msg
}

// Since returns the retained messages with Seq greater than after.
func (l *Log) Since(after int64) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sinceLocked(after)
}

// Unread returns what would be delivered to id without advancing its cursor.
func (l *Log) Unread(id string) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.unreadLocked(id)
}

// Cursor returns the read cursor of id.
func (l *Log) Cursor(id string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cursors[id]
}

// Tail returns the sequence number of the newest message, or 0 when empty.
func (l *Log) Tail() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextSeq - 1
}

// Len returns the number of retained messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Forget drops the cursor of id.
func (l *Log) Forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cursors, id)
}

// Reset empties the log and all cursors. Sequence numbers keep increasing.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.cursors = make(map[string]int64)
}

func (l *Log) unreadLocked(id string) []Message {
	after := l.cursors[id]
	var out []Message
	for _, m := range l.entries {
		if m.Seq > after && m.Author != id {
			out = append(out, m)
		}
	}
	return out
}

func (l *Log) sinceLocked(after int64) []Message {
	out := make([]Message, 0, len(l.entries))
	for _, m := range l.entries {
		if m.Seq > after {
			out = append(out, m)
		}
	}
	return out
}

package agent

import (
	"sync"
	"time"
)

// Default output bounds.
const (
	DefaultMaxChars           = 8000
	DefaultMaxReasoningEvents = 200
	DefaultMaxToolEvents      = 200
)

// Limits bounds an Output buffer.
type Limits struct {
	// MaxChars caps the partial text and each reasoning note, keeping the tail.
	MaxChars           int `json:"maxChars,omitempty"`
	MaxReasoningEvents int `json:"maxReasoningEvents,omitempty"`
	MaxToolEvents      int `json:"maxToolEvents,omitempty"`
}

// DefaultLimits returns the default output bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxChars:           DefaultMaxChars,
		MaxReasoningEvents: DefaultMaxReasoningEvents,
		MaxToolEvents:      DefaultMaxToolEvents,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxChars <= 0 {
		l.MaxChars = d.MaxChars
	}
	if l.MaxReasoningEvents <= 0 {
		l.MaxReasoningEvents = d.MaxReasoningEvents
	}
	if l.MaxToolEvents <= 0 {
		l.MaxToolEvents = d.MaxToolEvents
	}
	return l
}

// OutputEvent is one timestamped entry in an output buffer.
type OutputEvent struct {
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Output is the bounded record of what an agent has produced: the text it is
// currently streaming, its last complete message, and recent reasoning and
// tool activity.
type Output struct {
	mu          sync.RWMutex
	limits      Limits
	partial     string
	lastMessage string
	reasoning   []OutputEvent
	tools       []OutputEvent
	now         func() time.Time
}

// NewOutput creates an empty buffer. Zero limits select the defaults.
func NewOutput(limits Limits) *Output {
	return &Output{limits: limits.withDefaults(), now: time.Now}
}

// AppendDelta extends the partial text.
func (o *Output) AppendDelta(text string) {
	if text == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.partial = tail(o.partial+text, o.limits.MaxChars)
}

// AppendReasoning records a reasoning note.
func (o *Output) AppendReasoning(text string) {
	if text == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reasoning = pushEvent(o.reasoning, OutputEvent{Time: o.now(), Text: tail(text, o.limits.MaxChars)}, o.limits.MaxReasoningEvents)
}

// AppendToolEvent records a tool or command event line.
func (o *Output) AppendToolEvent(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tools = pushEvent(o.tools, OutputEvent{Time: o.now(), Text: text}, o.limits.MaxToolEvents)
}

// SetMessage records a complete message and clears the partial text.
func (o *Output) SetMessage(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastMessage = tail(text, o.limits.MaxChars)
	o.partial = ""
}

// OutputSnapshot is a copy of an Output buffer.
type OutputSnapshot struct {
	PartialText     string        `json:"final_partial_text"`
	LastMessage     string        `json:"last_message,omitempty"`
	ReasoningEvents []OutputEvent `json:"recent_reasoning_events"`
	ToolEvents      []OutputEvent `json:"recent_tool_events"`
}

// Snapshot copies the buffer. A positive maxChars trims the partial text,
// the last message and each reasoning note to their last maxChars characters.
func (o *Output) Snapshot(maxChars int) OutputSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	snap := OutputSnapshot{
		PartialText:     o.partial,
		LastMessage:     o.lastMessage,
		ReasoningEvents: make([]OutputEvent, len(o.reasoning)),
		ToolEvents:      make([]OutputEvent, len(o.tools)),
	}
	copy(snap.ReasoningEvents, o.reasoning)
	copy(snap.ToolEvents, o.tools)

	if maxChars > 0 {
		snap.PartialText = tail(snap.PartialText, maxChars)
		snap.LastMessage = tail(snap.LastMessage, maxChars)
		for i := range snap.ReasoningEvents {
			snap.ReasoningEvents[i].Text = tail(snap.ReasoningEvents[i].Text, maxChars)
		}
	}
	return snap
}

func pushEvent(events []OutputEvent, ev OutputEvent, max int) []OutputEvent {
	events = append(events, ev)
	if over := len(events) - max; over > 0 {
		events = append([]OutputEvent(nil), events[over:]...)
	}
	return events
}

// tail returns the last n characters of s.
func tail(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[len(rs)-n:])
}

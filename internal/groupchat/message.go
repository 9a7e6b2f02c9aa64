package groupchat

import "time"

// HumanAuthor is the author id used for messages typed by a person.
const HumanAuthor = "human"

// Visibility marks whether a message is a finished answer or a progress note.
type Visibility string

const (
	VisibilityFinal   Visibility = "final"
	VisibilityInterim Visibility = "interim"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityFinal || v == VisibilityInterim
}

// Message is one entry in the group chat log.
type Message struct {
	// Seq is assigned by the log on append and increases by one per message.
	Seq           int64      `json:"seq"`
	Author        string     `json:"author"`
	AuthorPersona string     `json:"authorPersona,omitempty"`
	Visibility    Visibility `json:"visibility"`
	// Targets are the agents the message was sent to directly, if any.
	Targets []string `json:"targets,omitempty"`
	// Mentions holds the resolved ids of every agent the message addressed.
	Mentions []string  `json:"mentions,omitempty"`
	Body     string    `json:"body"`
	Time     time.Time `json:"time"`
}

// IsFinal reports whether the message carries final visibility.
func (m Message) IsFinal() bool {
	return m.Visibility == VisibilityFinal
}

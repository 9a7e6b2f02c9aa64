package collab

import (
	"errors"
	"fmt"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/permission"
)

// ErrorKind classifies errors returned by Session operations.
type ErrorKind string

const (
	KindUnknownAgent     ErrorKind = "unknown_agent"
	KindPolicyDenied     ErrorKind = "policy_denied"
	KindTimeout          ErrorKind = "timeout"
	KindInvalidSpawnArgs ErrorKind = "invalid_spawn_args"
	KindAlreadyTerminal  ErrorKind = "already_terminal"
	KindInvalidInput     ErrorKind = "invalid_input"
	KindSessionClosed    ErrorKind = "session_closed"
	KindInternal         ErrorKind = "internal"
)

// Error is the error type returned by Session operations.
type Error struct {
	Kind    ErrorKind
	AgentID string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.AgentID != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.AgentID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind, so errors.Is(err, ErrUnknownAgent)
// holds for every unknown-agent error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.AgentID == "" && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrUnknownAgent     = &Error{Kind: KindUnknownAgent}
	ErrPolicyDenied     = &Error{Kind: KindPolicyDenied}
	ErrTimeout          = &Error{Kind: KindTimeout}
	ErrInvalidSpawnArgs = &Error{Kind: KindInvalidSpawnArgs}
	ErrAlreadyTerminal  = &Error{Kind: KindAlreadyTerminal}
	ErrInvalidInput     = &Error{Kind: KindInvalidInput}
	ErrSessionClosed    = &Error{Kind: KindSessionClosed}
)

// KindOf returns the kind of err, or "" when err is nil or unclassified.
// A bare *permission.DeniedError classifies as KindPolicyDenied.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if permission.IsDenied(err) {
		return KindPolicyDenied
	}
	return ""
}

func unknownAgent(ref string) error {
	return &Error{Kind: KindUnknownAgent, AgentID: ref, Message: "agent not found"}
}

func alreadyTerminal(id string, status agent.Status) error {
	return &Error{Kind: KindAlreadyTerminal, AgentID: id, Message: fmt.Sprintf("agent is %s", status)}
}

func invalidSpawnArgs(format string, args ...any) error {
	return &Error{Kind: KindInvalidSpawnArgs, Message: fmt.Sprintf(format, args...)}
}

func invalidInput(format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func sessionClosed() error {
	return &Error{Kind: KindSessionClosed, Message: "session is closed"}
}

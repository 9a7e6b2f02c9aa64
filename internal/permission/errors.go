package permission

import (
	"errors"
	"fmt"
)

// DeniedError is returned when a policy refuses a tool invocation or command.
type DeniedError struct {
	AgentID string
	Attempt Attempt
	Pattern string
	Reason  string
	Segment string
}

func (e *DeniedError) Error() string {
	subject := e.Attempt.Subject
	if e.Segment != "" && e.Segment != subject {
		subject = fmt.Sprintf("%s (in %q)", e.Segment, e.Attempt.Subject)
	}
	if e.Pattern != "" {
		return fmt.Sprintf("%s %q denied by pattern %q", e.Attempt.Kind, subject, e.Pattern)
	}
	return fmt.Sprintf("%s %q denied: %s", e.Attempt.Kind, subject, e.Reason)
}

// IsDenied reports whether err is or wraps a *DeniedError.
func IsDenied(err error) bool {
	var denied *DeniedError
	return errors.As(err, &denied)
}

// AsDenied extracts the *DeniedError from err's chain.
func AsDenied(err error) (*DeniedError, bool) {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied, true
	}
	return nil, false
}

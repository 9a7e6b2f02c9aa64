package collab

import (
	"context"
	"time"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/groupchat"
)

// WaitResult is the outcome of Wait.
type WaitResult struct {
	AgentID string             `json:"id"`
	Persona string             `json:"persona"`
	Status  agent.Status       `json:"status"`
	Result  *groupchat.Message `json:"result,omitempty"`
	Error   string             `json:"error,omitempty"`
	// TimedOut is set when the agent was still active at the deadline.
	TimedOut bool `json:"timedOut,omitempty"`
}

// Err returns a timeout error for a timed-out wait and nil otherwise.
func (r WaitResult) Err() error {
	if !r.TimedOut {
		return nil
	}
	return &Error{Kind: KindTimeout, AgentID: r.AgentID, Message: "wait timed out"}
}

// Wait blocks until the agent is terminal or timeout elapses. A negative
// timeout selects the session default; timeouts above the session maximum
// are clamped. A zero timeout checks once without blocking.
//
// Timing out is not an error: the result has TimedOut set and carries the
// agent's current status. A cancelled ctx is a KindTimeout error wrapping
// the context error.
func (s *Session) Wait(ctx context.Context, ref string, timeout time.Duration) (WaitResult, error) {
	if err := s.checkOpen(); err != nil {
		return WaitResult{}, err
	}
	a, err := s.lookup(ref)
	if err != nil {
		return WaitResult{}, err
	}
	timeout = s.waitTimeout(timeout)

	select {
	case <-a.Done():
		return waitResult(a, false), nil
	default:
	}
	if timeout == 0 {
		return waitResult(a, true), nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-a.Done():
		return waitResult(a, false), nil
	case <-timer.C:
		return waitResult(a, true), nil
	case <-ctx.Done():
		return WaitResult{}, &Error{Kind: KindTimeout, AgentID: a.ID, Message: "wait abandoned", Err: ctx.Err()}
	}
}

func (s *Session) waitTimeout(timeout time.Duration) time.Duration {
	if timeout < 0 {
		return s.opts.WaitTimeout
	}
	if timeout > s.opts.MaxWaitTimeout {
		return s.opts.MaxWaitTimeout
	}
	return timeout
}

func waitResult(a *agent.Agent, timedOut bool) WaitResult {
	return WaitResult{
		AgentID:  a.ID,
		Persona:  a.Persona,
		Status:   a.Status(),
		Result:   a.Result(),
		Error:    a.LastError(),
		TimedOut: timedOut,
	}
}

// CloseAgent asks an agent to stop and waits up to timeout for it to finish
// on its own. When the timeout elapses the agent is forced to closed and its
// task is cancelled. On return the agent is terminal and can no longer
// author messages. Closing a terminal agent returns its status unchanged.
// A negative timeout selects the session default; longer timeouts are
// clamped to the session maximum.
func (s *Session) CloseAgent(ctx context.Context, ref string, timeout time.Duration) (agent.Status, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	a, err := s.lookup(ref)
	if err != nil {
		return "", err
	}
	if a.IsOrchestrator() {
		return "", invalidInput("the orchestrator closes with the session")
	}
	if timeout < 0 {
		timeout = s.opts.CloseTimeout
	} else if timeout > s.opts.MaxWaitTimeout {
		timeout = s.opts.MaxWaitTimeout
	}
	return s.closeAgent(ctx, a, timeout), nil
}

func (s *Session) closeAgent(ctx context.Context, a *agent.Agent, timeout time.Duration) agent.Status {
	if st := a.Status(); st.IsTerminal() {
		return st
	}

	a.Inbox.Close()
	s.log.Debug().Str("agent", a.ID).Dur("timeout", timeout).Msg("close requested")

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-a.Done():
			return a.Status()
		case <-timer.C:
		case <-ctx.Done():
		}
	}

	if s.transition(a, agent.StatusClosed) {
		s.log.Info().Str("agent", a.ID).Str("persona", a.Persona).Msg("agent force-closed")
	}
	a.Cancel()
	return a.Status()
}

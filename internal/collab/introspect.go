package collab

import (
	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/groupchat"
)

// ListAgents returns a snapshot of every agent in spawn order, the
// orchestrator first.
func (s *Session) ListAgents() ([]agent.Summary, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	agents := s.registry.List()
	out := make([]agent.Summary, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.Summary())
	}
	return out, nil
}

// AgentOutput is a read-only view of what an agent has produced.
type AgentOutput struct {
	agent.Summary
	agent.OutputSnapshot
	Result       *groupchat.Message `json:"result,omitempty"`
	PendingInput int                `json:"pendingInput"`
	ReadCursor   int64              `json:"readCursor"`
}

// AgentOutput snapshots an agent's output buffer. It never blocks on the
// agent and never moves read cursors. A positive maxChars trims text fields
// to their tails.
func (s *Session) AgentOutput(ref string, maxChars int) (AgentOutput, error) {
	if maxChars < 0 {
		return AgentOutput{}, invalidInput("max_chars must not be negative")
	}
	if err := s.checkOpen(); err != nil {
		return AgentOutput{}, err
	}
	a, err := s.lookup(ref)
	if err != nil {
		return AgentOutput{}, err
	}
	return AgentOutput{
		Summary:        a.Summary(),
		OutputSnapshot: a.Output.Snapshot(maxChars),
		Result:         a.Result(),
		PendingInput:   a.Inbox.Pending(),
		ReadCursor:     s.chat.Cursor(a.ID),
	}, nil
}

// Describe returns the summary of one agent.
func (s *Session) Describe(ref string) (agent.Summary, error) {
	if err := s.checkOpen(); err != nil {
		return agent.Summary{}, err
	}
	a, err := s.lookup(ref)
	if err != nil {
		return agent.Summary{}, err
	}
	return a.Summary(), nil
}

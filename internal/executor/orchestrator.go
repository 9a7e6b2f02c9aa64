package executor

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/collab"
	"github.com/opencode-ai/collab/internal/groupchat"
)

// Session is what Orchestrate needs from a collab session.
type Session interface {
	OrchestratorID() string
	Options() collab.Options
	Tools(ref string) (collab.ToolInvoker, error)
	Messages(after int64) ([]groupchat.Message, error)
}

var _ Session = (*collab.Session)(nil)

// Orchestrate answers prompt as the session's orchestrator. The model
// coordinates subagents through the collab tools; group chat messages it
// has not seen are added before every turn. onEvent, if set, receives the
// orchestrator's deltas and reasoning. It returns the model's final answer.
func (r *Runner) Orchestrate(ctx context.Context, s Session, prompt string, onEvent func(collab.TaskEvent)) (string, error) {
	if r.cfg.Provider == nil {
		return "", errors.New("no model provider configured")
	}
	orchID := s.OrchestratorID()
	if orchID == "" {
		return "", errors.New("session not started")
	}
	tools, err := s.Tools(orchID)
	if err != nil {
		return "", err
	}

	var cursor int64
	pending := func() []groupchat.Message {
		msgs, err := s.Messages(cursor)
		if err != nil || len(msgs) == 0 {
			return nil
		}
		cursor = msgs[len(msgs)-1].Seq
		var unseen []groupchat.Message
		for _, m := range msgs {
			if m.Author != orchID {
				unseen = append(unseen, m)
			}
		}
		return unseen
	}
	l := &loop{
		runner:  r,
		role:    agent.RoleOrchestrator,
		tools:   tools,
		pending: pending,
		emit: func(ev collab.TaskEvent) error {
			if onEvent != nil {
				onEvent(ev)
			}
			return nil
		},
		log: r.log.With().Str("agent", orchID).Logger(),
	}

	history := []*schema.Message{
		schema.SystemMessage(agent.OrchestratorInstructions(s.Options().Instructions)),
		schema.UserMessage(prompt),
	}
	return l.run(ctx, history)
}

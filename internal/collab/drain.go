package collab

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/groupchat"
)

// drain consumes a task's events until the task ends, then settles the
// agent into completed or failed. Events that arrive after the agent became
// terminal are discarded.
func (s *Session) drain(a *agent.Agent, task Task) {
	defer s.tasks.Done()
	defer a.Cancel()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("agent %s: event handling panicked: %v", a.ID, r)
			s.finish(a, err)
			s.fatal(err)
		}
	}()

	var failure error
	for ev := range task.Events() {
		if a.Status().IsTerminal() {
			continue
		}
		switch ev.Kind {
		case EventDelta:
			a.Output.AppendDelta(ev.Text)
		case EventReasoning:
			a.Output.AppendReasoning(ev.Text)
		case EventInterim:
			s.post(a, ev.Text, groupchat.VisibilityInterim)
		case EventFinal:
			s.post(a, ev.Text, groupchat.VisibilityFinal)
		case EventError:
			failure = ev.Err
			if failure == nil {
				failure = errors.New(ev.Text)
			}
		}
	}

	if failure == nil && a.Result() == nil {
		// A task that ended without a final message still produced
		// whatever text it was streaming.
		if partial := a.Output.Snapshot(0).PartialText; strings.TrimSpace(partial) != "" {
			s.post(a, partial, groupchat.VisibilityFinal)
		}
	}
	s.finish(a, failure)
}

func (s *Session) post(a *agent.Agent, body string, visibility groupchat.Visibility) {
	if strings.TrimSpace(body) == "" {
		return
	}
	_, err := s.SendInput(context.Background(), SendRequest{
		Author:     a.ID,
		Message:    body,
		Visibility: visibility,
	})
	if err != nil {
		s.log.Debug().Err(err).Str("agent", a.ID).Msg("dropped agent message")
	}
}

func (s *Session) finish(a *agent.Agent, failure error) {
	s.mu.Lock()
	from := a.Status()
	var ok bool
	to := agent.StatusCompleted
	if failure != nil {
		to = agent.StatusFailed
		ok = a.Fail(failure.Error())
	} else {
		_, ok = a.Transition(agent.StatusCompleted)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	if failure != nil {
		s.log.Warn().Err(failure).Str("agent", a.ID).Msg("agent failed")
	}
	s.publishStatus(a, from, to)
}

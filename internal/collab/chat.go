package collab

import (
	"context"
	"strings"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/event"
	"github.com/opencode-ai/collab/internal/groupchat"
)

// SendRequest is a message to post to the group chat.
type SendRequest struct {
	// Author is an agent reference or groupchat.HumanAuthor. Empty means
	// the orchestrator.
	Author string
	// Target optionally addresses an agent directly: an id, short id,
	// persona or @token. A persona shared by several agents targets all.
	Target  string
	Message string
	// Visibility defaults to interim.
	Visibility groupchat.Visibility
}

// Delivery reports what happened to a posted message.
type Delivery struct {
	Message groupchat.Message `json:"message"`
	// DeliveredTo lists the agents whose pending input received the
	// message together with their other unread messages.
	DeliveredTo []string `json:"deliveredTo"`
	// Dropped lists addressed agents that had already stopped.
	Dropped     []string          `json:"dropped,omitempty"`
	Unknown     []string          `json:"unknownMentions,omitempty"`
	Suggestions map[string]string `json:"suggestions,omitempty"`
}

// SendInput appends a message to the group chat and delivers it to every
// agent it targets or mentions. Each recipient receives all log messages
// past its read cursor, and its cursor moves to the new message, in the
// same step as the append.
//
// Terminal agents cannot author messages. Addressing a terminal agent is
// not an error: the delivery is dropped and reported.
func (s *Session) SendInput(ctx context.Context, req SendRequest) (Delivery, error) {
	if strings.TrimSpace(req.Message) == "" {
		return Delivery{}, invalidInput("message must not be empty")
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = groupchat.VisibilityInterim
	}
	if !visibility.Valid() {
		return Delivery{}, invalidInput("unknown visibility %q", visibility)
	}
	s.mu.Lock()
	closed, started := s.closed, s.orch != nil
	s.mu.Unlock()
	if closed {
		return Delivery{}, sessionClosed()
	}
	if !started {
		return Delivery{}, invalidInput("session not started")
	}

	var author *agent.Agent
	authorID := req.Author
	switch authorID {
	case groupchat.HumanAuthor:
	case "":
		author = s.orchestrator()
		authorID = author.ID
	default:
		a, err := s.lookup(authorID)
		if err != nil {
			return Delivery{}, err
		}
		author = a
		authorID = a.ID
	}
	s.mu.Lock()
	err := s.acceptsFromLocked(author)
	s.mu.Unlock()
	if err != nil {
		return Delivery{}, err
	}

	var targets []string
	if req.Target != "" {
		ids, err := s.resolveTarget(req.Target)
		if err != nil {
			return Delivery{}, err
		}
		targets = ids
	}
	mentions := s.resolver.Resolve(req.Message)

	recipients := make(map[string]*agent.Agent)
	var order []string
	for _, id := range append(append([]string(nil), targets...), mentions.IDs...) {
		if id == authorID {
			continue
		}
		if _, seen := recipients[id]; seen {
			continue
		}
		a, err := s.registry.Get(id)
		if err != nil || a.IsOrchestrator() {
			continue
		}
		recipients[id] = a
		order = append(order, id)
	}

	s.mu.Lock()
	if err := s.acceptsFromLocked(author); err != nil {
		s.mu.Unlock()
		return Delivery{}, err
	}
	if author != nil {
		if st := author.Status(); st.IsTerminal() {
			s.mu.Unlock()
			return Delivery{}, alreadyTerminal(author.ID, st)
		}
	}

	var live []string
	var dropped []string
	dropStatus := make(map[string]agent.Status)
	for _, id := range order {
		if st := recipients[id].Status(); st.IsTerminal() {
			dropped = append(dropped, id)
			dropStatus[id] = st
			continue
		}
		live = append(live, id)
	}

	msg := groupchat.Message{
		Author:     authorID,
		Visibility: visibility,
		Targets:    targets,
		Mentions:   mentions.IDs,
		Body:       req.Message,
	}
	if author != nil {
		msg.AuthorPersona = author.Persona
	}

	var delivered []string
	stored := s.chat.Append(msg, live, func(id string, unread []groupchat.Message) {
		if recipients[id].Inbox.Push(unread...) {
			delivered = append(delivered, id)
			return
		}
		// The agent was asked to stop; it will not read this.
		dropped = append(dropped, id)
		dropStatus[id] = recipients[id].Status()
	})

	var statusFrom agent.Status
	touched := false
	if author != nil && !author.IsOrchestrator() {
		author.Output.SetMessage(req.Message)
		if visibility == groupchat.VisibilityFinal {
			author.SetResult(stored)
		}
		statusFrom, touched = author.Transition(agent.StatusRunning)
	}
	s.mu.Unlock()

	if touched && statusFrom != agent.StatusRunning {
		s.publishStatus(author, statusFrom, agent.StatusRunning)
	}

	s.log.Debug().
		Int64("seq", stored.Seq).
		Str("author", authorID).
		Str("visibility", string(visibility)).
		Strs("delivered", delivered).
		Strs("unknown", mentions.Unknown).
		Msg("chat message appended")
	s.bus.Publish(event.Event{
		Type: event.ChatMessage,
		Data: event.ChatMessageData{Message: stored, DeliveredTo: delivered},
	})
	for _, id := range dropped {
		s.log.Debug().Int64("seq", stored.Seq).Str("recipient", id).Msg("delivery to stopped agent dropped")
		s.bus.Publish(event.Event{
			Type: event.ChatDropped,
			Data: event.ChatDroppedData{Seq: stored.Seq, Recipient: id, Status: dropStatus[id]},
		})
	}

	return Delivery{
		Message:     stored,
		DeliveredTo: delivered,
		Dropped:     dropped,
		Unknown:     mentions.Unknown,
		Suggestions: mentions.Suggestions,
	}, nil
}

// resolveTarget maps an explicit target to agent ids. Unlike mentions, a
// target that matches nothing is an error.
func (s *Session) resolveTarget(target string) ([]string, error) {
	if a, err := s.registry.Get(target); err == nil {
		return []string{a.ID}, nil
	}
	ids := s.resolver.ResolveToken(target)
	if len(ids) == 0 {
		return nil, unknownAgent(target)
	}
	return ids, nil
}

func (s *Session) orchestrator() *agent.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orch
}

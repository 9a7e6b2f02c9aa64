package collab

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/event"
	"github.com/opencode-ai/collab/internal/permission"
)

// maxPersonaLength bounds persona names, in characters.
const maxPersonaLength = 128

// SpawnRequest describes a subagent to create.
type SpawnRequest struct {
	// ParentID is the spawning agent; empty means the orchestrator.
	ParentID string
	// Persona is the display name. Empty selects "Agent-N".
	Persona     string
	Description string
	// Message is the first input of the subagent's task.
	Message string
	// Instructions are added to the session's base instructions.
	Instructions string
	// Policy replaces the parent's lists field by field.
	Policy permission.Override
}

// Spawn creates a subagent, starts its task and returns its id. The agent is
// registered as spawned and becomes running once the runner accepts it.
//
// If the runner fails to start the task, the agent stays registered as
// failed and its id is returned together with the error.
func (s *Session) Spawn(ctx context.Context, req SpawnRequest) (string, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return "", invalidSpawnArgs("message must not be empty")
	}
	persona := strings.TrimSpace(req.Persona)
	if err := validatePersona(persona); err != nil {
		return "", err
	}

	s.mu.Lock()
	if err := s.checkOpenLocked(); err != nil {
		s.mu.Unlock()
		return "", err
	}

	parent := s.orch
	if req.ParentID != "" {
		p, err := s.lookup(req.ParentID)
		if err != nil {
			s.mu.Unlock()
			return "", err
		}
		parent = p
	}
	if st := parent.Status(); st.IsTerminal() {
		s.mu.Unlock()
		return "", alreadyTerminal(parent.ID, st)
	}

	policy := parent.Policy.With(req.Policy)
	if err := policy.Validate(); err != nil {
		s.mu.Unlock()
		return "", invalidSpawnArgs("policy: %v", err)
	}

	s.spawned++
	if persona == "" {
		persona = fmt.Sprintf("Agent-%d", s.spawned)
	}
	personaLine := persona
	if d := strings.TrimSpace(req.Description); d != "" {
		personaLine = persona + ": " + d
	}

	a := agent.New(agent.Options{
		Persona:      persona,
		Description:  req.Description,
		Role:         agent.RoleSubagent,
		ParentID:     parent.ID,
		Policy:       policy,
		Instructions: agent.SubagentInstructions(joinInstructions(s.opts.Instructions, req.Instructions), personaLine, s.orch.ID),
		Limits:       s.opts.OutputLimits,
	})
	if err := s.registry.Register(a); err != nil {
		s.mu.Unlock()
		s.fatal(err)
		return "", &Error{Kind: KindInternal, Message: "register agent", Err: err}
	}

	taskCtx, cancel := context.WithCancel(s.ctx)
	a.SetCancel(cancel)
	s.tasks.Add(1)
	orchestratorID := s.orch.ID
	s.mu.Unlock()

	s.log.Info().
		Str("agent", a.ID).
		Str("persona", a.Persona).
		Str("parent", parent.ID).
		Msg("agent spawned")
	s.bus.Publish(event.Event{
		Type: event.AgentSpawned,
		Data: event.AgentSpawnedData{Agent: a.Summary()},
	})

	task, err := s.runner.Start(taskCtx, TaskSpec{
		AgentID:        a.ID,
		Persona:        a.Persona,
		OrchestratorID: orchestratorID,
		Instructions:   a.Instructions,
		Input:          message,
		Policy:         a.Policy.Clone(),
		Inbox:          a.Inbox,
		Tools:          &gate{session: s, agent: a},
	})
	if err != nil {
		cancel()
		s.tasks.Done()
		s.mu.Lock()
		from := a.Status()
		failed := a.Fail(err.Error())
		s.mu.Unlock()
		if failed {
			s.publishStatus(a, from, agent.StatusFailed)
		}
		s.log.Error().Err(err).Str("agent", a.ID).Msg("failed to start agent task")
		return a.ID, &Error{Kind: KindInternal, AgentID: a.ID, Message: "failed to start agent task", Err: err}
	}

	s.transition(a, agent.StatusRunning)
	go s.drain(a, task)
	return a.ID, nil
}

func validatePersona(persona string) error {
	if len([]rune(persona)) > maxPersonaLength {
		return invalidSpawnArgs("persona longer than %d characters", maxPersonaLength)
	}
	for _, r := range persona {
		if unicode.IsControl(r) {
			return invalidSpawnArgs("persona contains control characters")
		}
	}
	if strings.ContainsAny(persona, "@[]") {
		return invalidSpawnArgs("persona must not contain '@', '[' or ']'")
	}
	return nil
}

func joinInstructions(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}

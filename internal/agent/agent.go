package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/collab/internal/groupchat"
	"github.com/opencode-ai/collab/internal/permission"
)

// Role separates the session's orchestrator from the agents it spawns.
type Role string

const (
	RoleOrchestrator Role = "orchestrator"
	RoleSubagent     Role = "subagent"
)

// NewID returns a fresh agent id.
func NewID() string {
	return ulid.Make().String()
}

// Agent is one participant in a collaboration session.
type Agent struct {
	ID           string
	ShortID      string
	Persona      string
	Description  string
	Role         Role
	ParentID     string
	Policy       permission.Policy
	Instructions string
	CreatedAt    time.Time

	Output *Output
	Inbox  *Mailbox

	mu        sync.RWMutex
	status    Status
	result    *groupchat.Message
	lastError string
	updatedAt time.Time
	done      chan struct{}
	cancel    context.CancelFunc
}

// Options configures a new Agent.
type Options struct {
	ID           string
	Persona      string
	Description  string
	Role         Role
	ParentID     string
	Policy       permission.Policy
	Instructions string
	Limits       Limits
}

// New creates an agent in the spawned state.
func New(opts Options) *Agent {
	id := opts.ID
	if id == "" {
		id = NewID()
	}
	role := opts.Role
	if role == "" {
		role = RoleSubagent
	}
	now := time.Now()
	return &Agent{
		ID:           id,
		Persona:      opts.Persona,
		Description:  opts.Description,
		Role:         role,
		ParentID:     opts.ParentID,
		Policy:       opts.Policy.Clone(),
		Instructions: opts.Instructions,
		CreatedAt:    now,
		Output:       NewOutput(opts.Limits),
		Inbox:        NewMailbox(),
		status:       StatusSpawned,
		updatedAt:    now,
		done:         make(chan struct{}),
	}
}

// IsOrchestrator reports whether the agent is the session's orchestrator.
func (a *Agent) IsOrchestrator() bool {
	return a.Role == RoleOrchestrator
}

// NormalizedPersona returns the persona in mention-token form.
func (a *Agent) NormalizedPersona() string {
	return groupchat.NormalizePersona(a.Persona)
}

// Status returns the current lifecycle status.
func (a *Agent) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Transition moves the agent to status to if the lifecycle allows it and
// returns the previous status. Reaching a terminal status closes Done.
func (a *Agent) Transition(to Status) (Status, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	from := a.status
	if !CanTransition(from, to) {
		return from, false
	}
	a.status = to
	a.updatedAt = time.Now()
	if to.IsTerminal() {
		close(a.done)
	}
	return from, true
}

// Fail records reason and moves the agent to failed.
func (a *Agent) Fail(reason string) bool {
	a.mu.Lock()
	if !a.status.IsTerminal() {
		a.lastError = reason
	}
	a.mu.Unlock()
	_, ok := a.Transition(StatusFailed)
	return ok
}

// Done is closed once the agent reaches a terminal status.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// SetResult stores the message that ends the agent's work.
func (a *Agent) SetResult(msg groupchat.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.result = &msg
}

// Result returns the final message, or nil if none was produced.
func (a *Agent) Result() *groupchat.Message {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.result == nil {
		return nil
	}
	msg := *a.result
	return &msg
}

// LastError returns the failure reason, if any.
func (a *Agent) LastError() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastError
}

// SetCancel attaches the function that aborts the agent's task.
func (a *Agent) SetCancel(cancel context.CancelFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancel = cancel
}

// Cancel aborts the agent's task, if one is attached.
func (a *Agent) Cancel() {
	a.mu.RLock()
	cancel := a.cancel
	a.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Summary is a point-in-time view of an agent.
type Summary struct {
	ID        string    `json:"id"`
	ShortID   string    `json:"shortId"`
	Persona   string    `json:"persona"`
	Role      Role      `json:"role"`
	ParentID  string    `json:"parentId,omitempty"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary returns the agent's current summary.
func (a *Agent) Summary() Summary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Summary{
		ID:        a.ID,
		ShortID:   a.ShortID,
		Persona:   a.Persona,
		Role:      a.Role,
		ParentID:  a.ParentID,
		Status:    a.status,
		Error:     a.lastError,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.updatedAt,
	}
}

// shortIDFrom returns the lower-cased last n characters of id.
func shortIDFrom(id string, n int) string {
	if n >= len(id) {
		return strings.ToLower(id)
	}
	return strings.ToLower(id[len(id)-n:])
}

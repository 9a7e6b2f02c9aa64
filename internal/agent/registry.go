package agent

import (
	"fmt"
	"strings"
	"sync"

	"github.com/opencode-ai/collab/internal/groupchat"
)

// DefaultShortIDLength is the starting length of generated short ids.
const DefaultShortIDLength = 6

// Registry tracks the agents of a session in spawn order. It implements
// groupchat.Directory.
type Registry struct {
	mu      sync.RWMutex
	order   []*Agent
	byID    map[string]*Agent
	byShort map[string]*Agent
}

var _ groupchat.Directory = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[string]*Agent),
		byShort: make(map[string]*Agent),
	}
}

// Register adds an agent and assigns it a unique short id.
func (r *Registry) Register(a *Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToUpper(a.ID)
	if _, ok := r.byID[key]; ok {
		return fmt.Errorf("agent already registered: %s", a.ID)
	}

	n := DefaultShortIDLength
	short := shortIDFrom(a.ID, n)
	for {
		if _, taken := r.byShort[short]; !taken {
			break
		}
		if n >= len(a.ID) {
			return fmt.Errorf("no unique short id for agent: %s", a.ID)
		}
		n++
		short = shortIDFrom(a.ID, n)
	}
	a.ShortID = short

	r.order = append(r.order, a)
	r.byID[key] = a
	r.byShort[short] = a
	return nil
}

// Get retrieves an agent by id. Ids compare case-insensitively.
func (r *Registry) Get(id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[strings.ToUpper(id)]
	if !ok {
		return nil, fmt.Errorf("agent not found: %s", id)
	}
	return a, nil
}

// Exists checks if an agent id is registered.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[strings.ToUpper(id)]
	return ok
}

// List returns all agents in spawn order.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Agent, len(r.order))
	copy(out, r.order)
	return out
}

// Subagents returns the agents that are not the orchestrator, in spawn order.
func (r *Registry) Subagents() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Agent
	for _, a := range r.order {
		if !a.IsOrchestrator() {
			out = append(out, a)
		}
	}
	return out
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Clear removes every agent.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.byID = make(map[string]*Agent)
	r.byShort = make(map[string]*Agent)
}

// LookupID implements groupchat.Directory.
func (r *Registry) LookupID(id string) (string, bool) {
	a, err := r.Get(id)
	if err != nil {
		return "", false
	}
	return a.ID, true
}

// MatchToken implements groupchat.Directory. Persona matches win; an
// ambiguous persona returns every agent that carries it. Without a persona
// match the token is tried as a short id and then as a full id.
func (r *Registry) MatchToken(token string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	norm := groupchat.NormalizePersona(token)
	if norm == "" {
		return nil
	}

	var ids []string
	for _, a := range r.order {
		if a.NormalizedPersona() == norm {
			ids = append(ids, a.ID)
		}
	}
	if len(ids) > 0 {
		return ids
	}

	if a, ok := r.byShort[strings.ToLower(token)]; ok {
		return []string{a.ID}
	}
	if a, ok := r.byID[strings.ToUpper(token)]; ok {
		return []string{a.ID}
	}
	return nil
}

// Personas implements groupchat.Directory.
func (r *Registry) Personas() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, a := range r.order {
		p := a.NormalizedPersona()
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

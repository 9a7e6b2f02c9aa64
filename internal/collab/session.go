package collab

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/event"
	"github.com/opencode-ai/collab/internal/groupchat"
	"github.com/opencode-ai/collab/internal/logging"
	"github.com/opencode-ai/collab/internal/permission"
)

// Session is one collaboration: an orchestrator, its subagents and their
// shared group chat.
type Session struct {
	id      string
	opts    Options
	runner  Runner
	exec    Executor
	bus     *event.Bus
	ownsBus bool
	log     zerolog.Logger

	mu       sync.Mutex
	registry *agent.Registry
	chat     *groupchat.Log
	resolver *groupchat.Resolver
	orch     *agent.Agent
	spawned  int
	// closing is set while Teardown winds agents down; only live subagents
	// may still post. closed is set once teardown has finished.
	closing bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup
}

// NewSession creates a session. exec may be nil, in which case every
// admitted tool call fails. A nil bus gives the session a private one that
// is closed on teardown.
func NewSession(opts Options, runner Runner, exec Executor, bus *event.Bus) *Session {
	opts = opts.withDefaults()
	ownsBus := false
	if bus == nil {
		bus = event.NewBus()
		ownsBus = true
	}

	registry := agent.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	id := agent.NewID()
	return &Session{
		id:       id,
		opts:     opts,
		runner:   runner,
		exec:     exec,
		bus:      bus,
		ownsBus:  ownsBus,
		log:      logging.Component("collab").With().Str("session", id).Logger(),
		registry: registry,
		chat:     groupchat.NewLog(opts.MaxMessages),
		resolver: groupchat.NewResolver(registry),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Options returns the effective session options.
func (s *Session) Options() Options {
	return s.opts
}

// Bus returns the event bus the session publishes on.
func (s *Session) Bus() *event.Bus {
	return s.bus
}

// OrchestratorID returns the id of the root agent, or "" before Start.
func (s *Session) OrchestratorID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orch == nil {
		return ""
	}
	return s.orch.ID
}

// Start registers the orchestrator and, when configured, spawns the default
// subagents. A default subagent that fails to start is logged and skipped.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.closing {
		s.mu.Unlock()
		return sessionClosed()
	}
	if s.orch != nil {
		s.mu.Unlock()
		return invalidInput("session already started")
	}

	orch := agent.New(agent.Options{
		Persona:      s.opts.OrchestratorPersona,
		Role:         agent.RoleOrchestrator,
		Policy:       s.opts.Policy,
		Instructions: agent.OrchestratorInstructions(s.opts.Instructions),
		Limits:       s.opts.OutputLimits,
	})
	if err := s.registry.Register(orch); err != nil {
		s.mu.Unlock()
		return &Error{Kind: KindInternal, Message: "register orchestrator", Err: err}
	}
	orch.Transition(agent.StatusRunning)
	s.orch = orch
	s.mu.Unlock()

	s.log.Info().Str("orchestrator", orch.ID).Msg("session started")
	s.bus.Publish(event.Event{
		Type: event.SessionStarted,
		Data: event.SessionStartedData{SessionID: s.id, OrchestratorID: orch.ID},
	})

	if !s.opts.DefaultSubagents {
		return nil
	}
	for _, t := range s.opts.Templates {
		_, err := s.Spawn(ctx, SpawnRequest{
			Persona:      t.Persona,
			Description:  t.Description,
			Message:      t.InitialMessage,
			Instructions: t.Instructions,
			Policy:       t.Policy,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("persona", t.Persona).Msg("default subagent failed to start")
		}
	}
	return nil
}

// Messages returns the group chat messages with sequence greater than after.
// The orchestrator reads the log in full through this call.
func (s *Session) Messages(after int64) ([]groupchat.Message, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.chat.Since(after), nil
}

// CheckPolicy evaluates an attempt against an agent's policy without
// running anything.
func (s *Session) CheckPolicy(ref string, attempt permission.Attempt) (permission.Decision, error) {
	if err := s.checkOpen(); err != nil {
		return permission.Decision{}, err
	}
	a, err := s.lookup(ref)
	if err != nil {
		return permission.Decision{}, err
	}
	return a.Policy.Evaluate(attempt), nil
}

// Teardown closes every non-terminal agent, bounded by the session's
// teardown timeout, then discards the registry and the log. While agents
// wind down the session rejects every call except messages authored by
// live subagents, so their final messages still land in the log. The log
// as it stood at teardown is returned so the orchestrator can read it one
// last time.
func (s *Session) Teardown(ctx context.Context) ([]groupchat.Message, error) {
	s.mu.Lock()
	if s.closed || s.closing {
		s.mu.Unlock()
		return nil, sessionClosed()
	}
	s.closing = true
	orch := s.orch
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.opts.TeardownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, a := range s.registry.Subagents() {
		if a.Status().IsTerminal() {
			continue
		}
		wg.Add(1)
		go func(a *agent.Agent) {
			defer wg.Done()
			s.closeAgent(ctx, a, s.opts.CloseTimeout)
		}(a)
	}
	wg.Wait()

	if orch != nil {
		s.transition(orch, agent.StatusClosed)
	}

	s.cancel()
	if !waitGroup(ctx, &s.tasks) {
		s.log.Warn().Msg("agent tasks still running after teardown")
	}

	s.mu.Lock()
	s.closed = true
	transcript := s.chat.Since(0)
	s.mu.Unlock()
	s.log.Info().Int("messages", len(transcript)).Msg("session ended")
	s.bus.PublishSync(event.Event{
		Type: event.SessionEnded,
		Data: event.SessionEndedData{SessionID: s.id, Messages: len(transcript)},
	})

	s.chat.Reset()
	s.registry.Clear()
	if s.ownsBus {
		if err := s.bus.Close(); err != nil {
			s.log.Debug().Err(err).Msg("closing event bus")
		}
	}
	return transcript, nil
}

// fatal tears the session down after an unrecoverable internal failure.
func (s *Session) fatal(err error) {
	s.log.Error().Err(err).Msg("fatal session error, tearing down")
	go func() {
		if _, terr := s.Teardown(context.Background()); terr != nil && KindOf(terr) != KindSessionClosed {
			s.log.Error().Err(terr).Msg("teardown after fatal error")
		}
	}()
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkOpenLocked()
}

func (s *Session) checkOpenLocked() error {
	if s.closed || s.closing {
		return sessionClosed()
	}
	if s.orch == nil {
		return invalidInput("session not started")
	}
	return nil
}

// acceptsFromLocked reports whether author may post. During teardown only
// subagents may, so a winding-down agent can still deliver its result.
func (s *Session) acceptsFromLocked(author *agent.Agent) error {
	if s.closed {
		return sessionClosed()
	}
	if s.orch == nil {
		return invalidInput("session not started")
	}
	if s.closing && (author == nil || author.IsOrchestrator()) {
		return sessionClosed()
	}
	return nil
}

// lookup resolves an agent reference: a full id, a short id, a persona or
// an @-mention token. A reference matching several agents is rejected.
func (s *Session) lookup(ref string) (*agent.Agent, error) {
	if ref == "" {
		return nil, invalidInput("agent id is required")
	}
	if a, err := s.registry.Get(ref); err == nil {
		return a, nil
	}
	ids := s.resolver.ResolveToken(ref)
	switch len(ids) {
	case 0:
		return nil, unknownAgent(ref)
	case 1:
		a, err := s.registry.Get(ids[0])
		if err != nil {
			return nil, unknownAgent(ref)
		}
		return a, nil
	default:
		return nil, &Error{
			Kind:    KindInvalidInput,
			AgentID: ref,
			Message: fmt.Sprintf("ambiguous agent reference matches %d agents", len(ids)),
		}
	}
}

// transition applies a status change under the session lock and announces
// it. It reports whether the change happened.
func (s *Session) transition(a *agent.Agent, to agent.Status) bool {
	s.mu.Lock()
	from, ok := a.Transition(to)
	s.mu.Unlock()
	if ok {
		s.publishStatus(a, from, to)
	}
	return ok
}

func (s *Session) publishStatus(a *agent.Agent, from, to agent.Status) {
	s.log.Debug().
		Str("agent", a.ID).
		Str("persona", a.Persona).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("agent status changed")
	s.bus.Publish(event.Event{
		Type: event.AgentStatus,
		Data: event.AgentStatusData{AgentID: a.ID, From: from, To: to, Error: a.LastError()},
	})
}

// waitGroup waits for wg or ctx, reporting whether wg finished.
func waitGroup(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

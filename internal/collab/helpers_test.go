package collab_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/collab"
	"github.com/opencode-ai/collab/internal/event"
)

func testOptions() collab.Options {
	return collab.Options{
		CloseTimeout:    200 * time.Millisecond,
		TeardownTimeout: 2 * time.Second,
	}
}

func newSession(t *testing.T, runner collab.Runner, opts collab.Options, exec collab.Executor) *collab.Session {
	t.Helper()
	s := collab.NewSession(opts, runner, exec, nil)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		_, _ = s.Teardown(context.Background())
	})
	return s
}

func spawn(t *testing.T, s *collab.Session, persona, message string) string {
	t.Helper()
	id, err := s.Spawn(context.Background(), collab.SpawnRequest{Persona: persona, Message: message})
	require.NoError(t, err)
	return id
}

func statusOf(t *testing.T, s *collab.Session, id string) agent.Status {
	t.Helper()
	out, err := s.AgentOutput(id, 0)
	require.NoError(t, err)
	return out.Status
}

func eventuallyStatus(t *testing.T, s *collab.Session, id string, want agent.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return statusOf(t, s, id) == want
	}, 2*time.Second, 5*time.Millisecond, "agent %s never reached %s", id, want)
}

// recorder collects bus events of the given types.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func record(bus *event.Bus) *recorder {
	r := &recorder{}
	bus.SubscribeAll(func(e event.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) ofType(t event.EventType) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// countingExecutor records calls and answers with a fixed output.
type countingExecutor struct {
	mu    sync.Mutex
	calls []collab.ToolCall
}

func (e *countingExecutor) Execute(_ context.Context, _ string, call collab.ToolCall) (collab.ToolResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
	return collab.ToolResult{Output: "ok: " + call.QualifiedName()}, nil
}

func (e *countingExecutor) Calls() []collab.ToolCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]collab.ToolCall(nil), e.calls...)
}

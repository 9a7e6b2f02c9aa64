// Package collabtest provides a scripted collab.Runner for tests.
package collabtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/collab"
	"github.com/opencode-ai/collab/internal/groupchat"
)

// errDone ends a script early without failing the task.
var errDone = errors.New("script done")

// Turn is the state a script runs against.
type Turn struct {
	Spec collab.TaskSpec
	// LastResult is the result of the most recent tool call.
	LastResult collab.ToolResult
	// Received collects every chat message the task has read.
	Received []groupchat.Message

	events chan<- collab.TaskEvent
}

// Emit sends an event unless ctx is done.
func (t *Turn) Emit(ctx context.Context, ev collab.TaskEvent) error {
	select {
	case t.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Step is one scripted action.
type Step func(ctx context.Context, t *Turn) error

// Runner runs a script per persona. Personas compare in normalized form.
type Runner struct {
	mu       sync.Mutex
	scripts  map[string][]Step
	fallback []Step
	started  []collab.TaskSpec
	startErr error
}

// NewRunner creates a runner whose unscripted agents idle until closed.
func NewRunner() *Runner {
	return &Runner{
		scripts:  make(map[string][]Step),
		fallback: []Step{Idle()},
	}
}

// On sets the script for agents with the given persona.
func (r *Runner) On(persona string, steps ...Step) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts[groupchat.NormalizePersona(persona)] = steps
	return r
}

// Otherwise sets the script for personas without their own.
func (r *Runner) Otherwise(steps ...Step) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = steps
	return r
}

// FailStart makes every subsequent Start return err.
func (r *Runner) FailStart(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startErr = err
}

// Started returns the specs of every task started so far.
func (r *Runner) Started() []collab.TaskSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]collab.TaskSpec, len(r.started))
	copy(out, r.started)
	return out
}

// Start implements collab.Runner.
func (r *Runner) Start(ctx context.Context, spec collab.TaskSpec) (collab.Task, error) {
	r.mu.Lock()
	if r.startErr != nil {
		err := r.startErr
		r.mu.Unlock()
		return nil, err
	}
	steps, ok := r.scripts[groupchat.NormalizePersona(spec.Persona)]
	if !ok {
		steps = r.fallback
	}
	r.started = append(r.started, spec)
	r.mu.Unlock()

	events := make(chan collab.TaskEvent, 16)
	go func() {
		defer close(events)
		turn := &Turn{Spec: spec, events: events}
		for _, step := range steps {
			err := step(ctx, turn)
			if err == nil {
				continue
			}
			if errors.Is(err, errDone) || ctx.Err() != nil {
				return
			}
			_ = turn.Emit(ctx, collab.TaskEvent{Kind: collab.EventError, Err: err})
			return
		}
	}()
	return task(events), nil
}

type task <-chan collab.TaskEvent

func (t task) Events() <-chan collab.TaskEvent {
	return t
}

// Reply posts a final message.
func Reply(text string) Step {
	return func(ctx context.Context, t *Turn) error {
		return t.Emit(ctx, collab.TaskEvent{Kind: collab.EventFinal, Text: text})
	}
}

// Interim posts a progress message.
func Interim(text string) Step {
	return func(ctx context.Context, t *Turn) error {
		return t.Emit(ctx, collab.TaskEvent{Kind: collab.EventInterim, Text: text})
	}
}

// Stream emits text deltas.
func Stream(parts ...string) Step {
	return func(ctx context.Context, t *Turn) error {
		for _, p := range parts {
			if err := t.Emit(ctx, collab.TaskEvent{Kind: collab.EventDelta, Text: p}); err != nil {
				return err
			}
		}
		return nil
	}
}

// Reason emits a reasoning note.
func Reason(text string) Step {
	return func(ctx context.Context, t *Turn) error {
		return t.Emit(ctx, collab.TaskEvent{Kind: collab.EventReasoning, Text: text})
	}
}

// Call invokes a tool through the agent's policy gate.
func Call(call collab.ToolCall) Step {
	return func(ctx context.Context, t *Turn) error {
		t.LastResult = t.Spec.Tools.Invoke(ctx, call)
		return nil
	}
}

// ReportResult posts the last tool result as the final message.
func ReportResult() Step {
	return func(ctx context.Context, t *Turn) error {
		text := t.LastResult.Text()
		if t.LastResult.Denied() {
			text = "could not proceed: " + text
		}
		return t.Emit(ctx, collab.TaskEvent{Kind: collab.EventFinal, Text: text})
	}
}

// Fail ends the task with err.
func Fail(err error) Step {
	return func(context.Context, *Turn) error {
		return err
	}
}

// Await reads one batch of chat input and emits a reasoning note for each
// message. It ends the script if the agent is asked to stop.
func Await() Step {
	return func(ctx context.Context, t *Turn) error {
		msgs, err := t.Spec.Inbox.Next(ctx)
		if errors.Is(err, agent.ErrMailboxClosed) {
			return errDone
		}
		if err != nil {
			return err
		}
		return t.read(ctx, msgs)
	}
}

// Idle reads chat input until the agent is asked to stop.
func Idle() Step {
	return func(ctx context.Context, t *Turn) error {
		for {
			if err := Await()(ctx, t); err != nil {
				if errors.Is(err, errDone) {
					return nil
				}
				return err
			}
		}
	}
}

// Hang blocks until the task is cancelled, ignoring requests to stop.
func Hang() Step {
	return func(ctx context.Context, t *Turn) error {
		<-ctx.Done()
		return ctx.Err()
	}
}

func (t *Turn) read(ctx context.Context, msgs []groupchat.Message) error {
	for _, m := range msgs {
		t.Received = append(t.Received, m)
		note := fmt.Sprintf("read #%d from %s: %s", m.Seq, m.Author, strings.TrimSpace(m.Body))
		if err := t.Emit(ctx, collab.TaskEvent{Kind: collab.EventReasoning, Text: note}); err != nil {
			return err
		}
	}
	return nil
}

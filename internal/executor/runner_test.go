package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/collab"
	"github.com/opencode-ai/collab/internal/groupchat"
	"github.com/opencode-ai/collab/internal/provider"
)

// scriptedProvider answers each completion with the next scripted turn.
type scriptedProvider struct {
	mu       sync.Mutex
	turns    []func(req *provider.CompletionRequest) ([]*schema.Message, error)
	requests []*provider.CompletionRequest
}

func (p *scriptedProvider) ID() string                            { return "scripted" }
func (p *scriptedProvider) Name() string                          { return "Scripted" }
func (p *scriptedProvider) Model() string                         { return "scripted-1" }
func (p *scriptedProvider) ChatModel() model.ToolCallingChatModel { return nil }

func (p *scriptedProvider) CreateCompletion(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionStream, error) {
	p.mu.Lock()
	copied := *req
	copied.Messages = append([]*schema.Message(nil), req.Messages...)
	p.requests = append(p.requests, &copied)
	if len(p.turns) == 0 {
		p.mu.Unlock()
		return nil, errors.New("no more turns")
	}
	turn := p.turns[0]
	p.turns = p.turns[1:]
	p.mu.Unlock()

	chunks, err := turn(req)
	if err != nil {
		return nil, err
	}
	return provider.NewCompletionStream(schema.StreamReaderFromArray(chunks)), nil
}

func (p *scriptedProvider) then(turn func(req *provider.CompletionRequest) ([]*schema.Message, error)) *scriptedProvider {
	p.turns = append(p.turns, turn)
	return p
}

func (p *scriptedProvider) say(parts ...string) *scriptedProvider {
	return p.then(func(*provider.CompletionRequest) ([]*schema.Message, error) {
		var chunks []*schema.Message
		for _, part := range parts {
			chunks = append(chunks, schema.AssistantMessage(part, nil))
		}
		return chunks, nil
	})
}

func (p *scriptedProvider) callTool(id, name, args string) *scriptedProvider {
	return p.then(func(*provider.CompletionRequest) ([]*schema.Message, error) {
		return []*schema.Message{schema.AssistantMessage("", []schema.ToolCall{{
			ID:       id,
			Function: schema.FunctionCall{Name: name, Arguments: args},
		}})}, nil
	})
}

func (p *scriptedProvider) fail(err error) *scriptedProvider {
	return p.then(func(*provider.CompletionRequest) ([]*schema.Message, error) {
		return nil, err
	})
}

func (p *scriptedProvider) request(i int) *provider.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

type staticTools struct{}

func (staticTools) ToolInfos(role agent.Role) []*schema.ToolInfo {
	return []*schema.ToolInfo{{Name: "read", Desc: "read a file for " + string(role)}}
}

func (staticTools) NewCall(id, name, arguments string) collab.ToolCall {
	return collab.ToolCall{ID: id, Name: name, Arguments: []byte(arguments)}
}

type recordingInvoker struct {
	mu     sync.Mutex
	calls  []collab.ToolCall
	result collab.ToolResult
}

func (r *recordingInvoker) Invoke(ctx context.Context, call collab.ToolCall) collab.ToolResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	res := r.result
	res.CallID = call.ID
	return res
}

func noRetryDelay(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, MaxRetries), ctx)
}

func newTestRunner(p provider.Provider) *Runner {
	return NewRunner(Config{Provider: p, Tools: staticTools{}, Backoff: noRetryDelay})
}

func newSpec(inv collab.ToolInvoker) (collab.TaskSpec, *agent.Mailbox) {
	inbox := agent.NewMailbox()
	return collab.TaskSpec{
		AgentID:      "agent-1",
		Persona:      "Planner",
		Instructions: "You plan.",
		Input:        "Plan the release.",
		Inbox:        inbox,
		Tools:        inv,
	}, inbox
}

func collect(t *testing.T, task collab.Task) []collab.TaskEvent {
	t.Helper()
	var out []collab.TaskEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-task.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("task did not finish")
			return nil
		}
	}
}

func TestRunner_StreamsAndReplies(t *testing.T) {
	p := (&scriptedProvider{}).say("Hel", "lo")
	spec, _ := newSpec(&recordingInvoker{})

	task, err := newTestRunner(p).Start(context.Background(), spec)
	require.NoError(t, err)
	events := collect(t, task)

	require.Len(t, events, 3)
	assert.Equal(t, collab.TaskEvent{Kind: collab.EventDelta, Text: "Hel"}, events[0])
	assert.Equal(t, collab.TaskEvent{Kind: collab.EventDelta, Text: "lo"}, events[1])
	assert.Equal(t, collab.TaskEvent{Kind: collab.EventFinal, Text: "Hello"}, events[2])

	req := p.request(0)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, schema.System, req.Messages[0].Role)
	assert.Equal(t, "You plan.", req.Messages[0].Content)
	assert.Equal(t, "Plan the release.", req.Messages[1].Content)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "read a file for subagent", req.Tools[0].Desc)
}

func TestRunner_ToolCallRoundTrip(t *testing.T) {
	p := (&scriptedProvider{}).
		callTool("call-1", "read", `{"path":"go.mod"}`).
		say("module is collab")
	inv := &recordingInvoker{result: collab.ToolResult{Output: "module github.com/opencode-ai/collab"}}
	spec, _ := newSpec(inv)

	task, err := newTestRunner(p).Start(context.Background(), spec)
	require.NoError(t, err)
	events := collect(t, task)

	require.NotEmpty(t, events)
	assert.Equal(t, collab.TaskEvent{Kind: collab.EventFinal, Text: "module is collab"}, events[len(events)-1])

	require.Len(t, inv.calls, 1)
	assert.Equal(t, "call-1", inv.calls[0].ID)
	assert.Equal(t, "read", inv.calls[0].Name)
	assert.JSONEq(t, `{"path":"go.mod"}`, string(inv.calls[0].Arguments))

	second := p.request(1)
	last := second.Messages[len(second.Messages)-1]
	assert.Equal(t, schema.Tool, last.Role)
	assert.Equal(t, "call-1", last.ToolCallID)
	assert.Equal(t, "module github.com/opencode-ai/collab", last.Content)
}

func TestRunner_DeniedToolResultReachesModel(t *testing.T) {
	p := (&scriptedProvider{}).
		callTool("call-1", "apply_patch", `{}`).
		say("could not apply the patch")
	denied := &collab.Error{Kind: collab.KindPolicyDenied, Message: "policy denied"}
	spec, _ := newSpec(&recordingInvoker{result: collab.ToolResult{Err: denied}})

	task, err := newTestRunner(p).Start(context.Background(), spec)
	require.NoError(t, err)
	collect(t, task)

	second := p.request(1)
	assert.Contains(t, second.Messages[len(second.Messages)-1].Content, "policy denied")
}

func TestRunner_Reasoning(t *testing.T) {
	p := (&scriptedProvider{}).then(func(*provider.CompletionRequest) ([]*schema.Message, error) {
		return []*schema.Message{
			{Role: schema.Assistant, ReasoningContent: "weighing "},
			{Role: schema.Assistant, ReasoningContent: "options"},
			{Role: schema.Assistant, Content: "Ready"},
		}, nil
	})
	spec, _ := newSpec(&recordingInvoker{})

	task, err := newTestRunner(p).Start(context.Background(), spec)
	require.NoError(t, err)
	events := collect(t, task)

	assert.Contains(t, events, collab.TaskEvent{Kind: collab.EventReasoning, Text: "weighing options"})
	assert.Equal(t, collab.TaskEvent{Kind: collab.EventFinal, Text: "Ready"}, events[len(events)-1])
}

func TestRunner_RetriesOpenFailures(t *testing.T) {
	p := (&scriptedProvider{}).
		fail(errors.New("503")).
		fail(errors.New("503")).
		say("done")
	spec, _ := newSpec(&recordingInvoker{})

	task, err := newTestRunner(p).Start(context.Background(), spec)
	require.NoError(t, err)
	events := collect(t, task)

	assert.Equal(t, 3, p.calls())
	assert.Equal(t, collab.TaskEvent{Kind: collab.EventFinal, Text: "done"}, events[len(events)-1])
}

func TestRunner_GivesUpAfterRetries(t *testing.T) {
	boom := errors.New("overloaded")
	p := &scriptedProvider{}
	for i := 0; i <= MaxRetries; i++ {
		p.fail(boom)
	}
	spec, _ := newSpec(&recordingInvoker{})

	task, err := newTestRunner(p).Start(context.Background(), spec)
	require.NoError(t, err)
	events := collect(t, task)

	require.Len(t, events, 1)
	assert.Equal(t, collab.EventError, events[0].Kind)
	assert.ErrorIs(t, events[0].Err, boom)
	assert.Equal(t, MaxRetries+1, p.calls())
}

func TestRunner_MaxSteps(t *testing.T) {
	p := (&scriptedProvider{}).
		callTool("c1", "read", `{}`).
		callTool("c2", "read", `{}`).
		callTool("c3", "read", `{}`)
	spec, _ := newSpec(&recordingInvoker{})
	r := NewRunner(Config{Provider: p, Tools: staticTools{}, MaxSteps: 2, Backoff: noRetryDelay})

	task, err := r.Start(context.Background(), spec)
	require.NoError(t, err)
	events := collect(t, task)

	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].Err, ErrMaxSteps)
	assert.Equal(t, 2, p.calls())
}

func TestRunner_FoldsChatInput(t *testing.T) {
	spec, inbox := newSpec(&recordingInvoker{})
	p := (&scriptedProvider{}).
		then(func(*provider.CompletionRequest) ([]*schema.Message, error) {
			// A message arrives while the model answers.
			inbox.Push(groupchat.Message{Seq: 4, Author: "orch", AuthorPersona: "Orchestrator", Visibility: groupchat.VisibilityInterim, Body: "@Planner also cover docs"})
			return []*schema.Message{schema.AssistantMessage("draft plan", nil)}, nil
		}).
		say("plan with docs")

	task, err := newTestRunner(p).Start(context.Background(), spec)
	require.NoError(t, err)
	events := collect(t, task)

	assert.Contains(t, events, collab.TaskEvent{Kind: collab.EventInterim, Text: "draft plan"})
	assert.Contains(t, events, collab.TaskEvent{Kind: collab.EventReasoning, Text: "read #4 from orch: @Planner also cover docs"})
	assert.Equal(t, collab.TaskEvent{Kind: collab.EventFinal, Text: "plan with docs"}, events[len(events)-1])

	second := p.request(1)
	last := second.Messages[len(second.Messages)-1]
	assert.Equal(t, schema.User, last.Role)
	assert.Contains(t, last.Content, "[#4 Orchestrator, interim]")
	assert.Contains(t, last.Content, "@Planner also cover docs")
}

func TestRunner_StopsWhenInboxClosed(t *testing.T) {
	p := (&scriptedProvider{}).say("never")
	spec, inbox := newSpec(&recordingInvoker{})
	inbox.Close()

	task, err := newTestRunner(p).Start(context.Background(), spec)
	require.NoError(t, err)

	assert.Empty(t, collect(t, task))
	assert.Zero(t, p.calls())
}

func TestRunner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	spec, _ := newSpec(&recordingInvoker{})

	task, err := newTestRunner((&scriptedProvider{}).say("x")).Start(ctx, spec)
	require.NoError(t, err)
	assert.Empty(t, collect(t, task))
}

func TestRunner_StartErrors(t *testing.T) {
	spec, _ := newSpec(&recordingInvoker{})

	_, err := NewRunner(Config{Tools: staticTools{}}).Start(context.Background(), spec)
	assert.Error(t, err)

	spec.Tools = nil
	_, err = newTestRunner(&scriptedProvider{}).Start(context.Background(), spec)
	assert.Error(t, err)
}

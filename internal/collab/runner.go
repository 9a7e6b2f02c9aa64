package collab

import (
	"context"

	"github.com/opencode-ai/collab/internal/groupchat"
	"github.com/opencode-ai/collab/internal/permission"
)

// TaskEventKind identifies what a running task reported.
type TaskEventKind string

const (
	// EventDelta carries a fragment of the text being generated.
	EventDelta TaskEventKind = "delta"
	// EventReasoning carries a complete reasoning note.
	EventReasoning TaskEventKind = "reasoning"
	// EventInterim posts a progress message to the group chat.
	EventInterim TaskEventKind = "interim"
	// EventFinal posts the task's result to the group chat.
	EventFinal TaskEventKind = "final"
	// EventError reports that the task failed.
	EventError TaskEventKind = "error"
)

// TaskEvent is one item in a task's event stream.
type TaskEvent struct {
	Kind TaskEventKind
	Text string
	Err  error
}

// Inbox is the pending chat input of an agent.
type Inbox interface {
	// Next blocks until input is queued. It returns agent.ErrMailboxClosed
	// once the agent has been asked to stop and no input remains.
	Next(ctx context.Context) ([]groupchat.Message, error)
	// TryNext returns queued input without blocking.
	TryNext() []groupchat.Message
	// Closed reports whether the agent has been asked to stop.
	Closed() bool
}

// ToolInvoker runs tool calls on behalf of an agent, subject to its policy.
type ToolInvoker interface {
	Invoke(ctx context.Context, call ToolCall) ToolResult
}

// TaskSpec is everything a Runner needs to start an agent's task.
type TaskSpec struct {
	AgentID        string
	Persona        string
	OrchestratorID string
	Instructions   string
	// Input is the first message the task works on.
	Input  string
	Policy permission.Policy
	Inbox  Inbox
	Tools  ToolInvoker
}

// Task is a started reasoning task.
type Task interface {
	// Events streams the task's progress. The channel is closed when the
	// task ends, whether it finished, failed or was cancelled.
	Events() <-chan TaskEvent
}

// Runner starts reasoning tasks. The context passed to Start is cancelled
// when the agent is force-closed or the session is torn down.
type Runner interface {
	Start(ctx context.Context, spec TaskSpec) (Task, error)
}

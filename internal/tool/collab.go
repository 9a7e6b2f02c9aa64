package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/collab"
	"github.com/opencode-ai/collab/internal/groupchat"
	"github.com/opencode-ai/collab/internal/permission"
)

// Collaboration tool names.
const (
	SpawnAgentTool  = "spawn_agent"
	SendInputTool   = "send_input"
	WaitTool        = "wait"
	CloseAgentTool  = "close_agent"
	ListAgentsTool  = "list_agents"
	AgentOutputTool = "agent_output"
)

// Service is the part of a collab.Session the collaboration tools drive.
type Service interface {
	Spawn(ctx context.Context, req collab.SpawnRequest) (string, error)
	SendInput(ctx context.Context, req collab.SendRequest) (collab.Delivery, error)
	Wait(ctx context.Context, ref string, timeout time.Duration) (collab.WaitResult, error)
	CloseAgent(ctx context.Context, ref string, timeout time.Duration) (agent.Status, error)
	ListAgents() ([]agent.Summary, error)
	AgentOutput(ref string, maxChars int) (collab.AgentOutput, error)
	Describe(ref string) (agent.Summary, error)
}

var _ Service = (*collab.Session)(nil)

// RegisterCollabTools registers the six collaboration tools bound to svc.
// Calls are made on behalf of the calling agent, whose role decides which
// tools it may use.
func (r *Registry) RegisterCollabTools(svc Service) {
	r.mu.Lock()
	r.roles = func(agentID string) (agent.Role, bool) {
		sum, err := svc.Describe(agentID)
		if err != nil {
			return "", false
		}
		return sum.Role, true
	}
	r.mu.Unlock()

	r.Register(NewSpawnAgentTool(svc))
	r.Register(NewSendInputTool(svc))
	r.Register(NewWaitTool(svc))
	r.Register(NewCloseAgentTool(svc))
	r.Register(NewListAgentsTool(svc))
	r.Register(NewAgentOutputTool(svc))
}

const spawnAgentDescription = `Start a subagent that works on a task in parallel with you.

Usage:
- message is the subagent's first assignment and is required
- persona names the subagent; other agents mention it as @persona
- The policy lists restrict the subagent's tools and shell commands with * and ? wildcards; deny lists win over allow lists, and an omitted list is inherited from you
- Returns the new agent's id. Use wait to collect its result`

// SpawnAgentInput is the input of spawn_agent.
type SpawnAgentInput struct {
	Persona      string `json:"persona,omitempty"`
	Description  string `json:"description,omitempty"`
	Message      string `json:"message"`
	Instructions string `json:"instructions,omitempty"`
	permission.Override
}

// NewSpawnAgentTool creates the spawn_agent tool.
func NewSpawnAgentTool(svc Service) *BaseTool {
	return NewBaseTool(SpawnAgentTool, spawnAgentDescription, json.RawMessage(`{
		"type": "object",
		"properties": {
			"persona": {"type": "string", "description": "Name of the subagent, for example Planner"},
			"description": {"type": "string", "description": "One line describing the subagent's role"},
			"message": {"type": "string", "description": "The first assignment for the subagent"},
			"instructions": {"type": "string", "description": "Extra instructions for the subagent"},
			"tool_allowlist": {"type": "array", "items": {"type": "string"}, "description": "Tool name patterns the subagent may call"},
			"tool_denylist": {"type": "array", "items": {"type": "string"}, "description": "Tool name patterns the subagent may not call"},
			"shell_command_allowlist": {"type": "array", "items": {"type": "string"}, "description": "Shell command patterns the subagent may run"},
			"shell_command_denylist": {"type": "array", "items": {"type": "string"}, "description": "Shell command patterns the subagent may not run"}
		},
		"required": ["message"]
	}`), func(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
		var params SpawnAgentInput
		if err := json.Unmarshal(input, &params); err != nil {
			return nil, &collab.Error{Kind: collab.KindInvalidSpawnArgs, Message: "invalid spawn_agent arguments", Err: err}
		}

		id, err := svc.Spawn(ctx, collab.SpawnRequest{
			ParentID:     toolCtx.AgentID,
			Persona:      params.Persona,
			Description:  params.Description,
			Message:      params.Message,
			Instructions: params.Instructions,
			Policy:       params.Override,
		})
		if err != nil {
			return nil, err
		}
		sum, err := svc.Describe(id)
		if err != nil {
			return nil, err
		}
		return jsonResult(fmt.Sprintf("Spawned %s", sum.Persona), map[string]any{
			"agent_id": sum.ID,
			"short_id": sum.ShortID,
			"persona":  sum.Persona,
			"status":   sum.Status,
		})
	}, agent.RoleOrchestrator)
}

const sendInputDescription = `Post a message to the group chat.

Usage:
- Mention agents with @persona, @short-id or @[full-id]; mentioned agents receive every chat message they have not read yet
- target delivers the message to one agent without a mention
- Set visibility to "final" only when the message is your finished result`

// SendInputInput is the input of send_input.
type SendInputInput struct {
	Target     string               `json:"target,omitempty"`
	Message    string               `json:"message"`
	Visibility groupchat.Visibility `json:"visibility,omitempty"`
}

// NewSendInputTool creates the send_input tool.
func NewSendInputTool(svc Service) *BaseTool {
	return NewBaseTool(SendInputTool, sendInputDescription, json.RawMessage(`{
		"type": "object",
		"properties": {
			"target": {"type": "string", "description": "Agent id, short id or persona to deliver to directly"},
			"message": {"type": "string", "description": "The message text"},
			"visibility": {"type": "string", "enum": ["interim", "final"], "description": "interim (default) or final"}
		},
		"required": ["message"]
	}`), func(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
		var params SendInputInput
		if err := json.Unmarshal(input, &params); err != nil {
			return nil, &collab.Error{Kind: collab.KindInvalidInput, Message: "invalid send_input arguments", Err: err}
		}

		d, err := svc.SendInput(ctx, collab.SendRequest{
			Author:     toolCtx.AgentID,
			Target:     params.Target,
			Message:    params.Message,
			Visibility: params.Visibility,
		})
		if err != nil {
			return nil, err
		}
		out := map[string]any{
			"seq":          d.Message.Seq,
			"delivered_to": d.DeliveredTo,
		}
		if len(d.Dropped) > 0 {
			out["dropped"] = d.Dropped
		}
		if len(d.Unknown) > 0 {
			out["unknown_mentions"] = d.Unknown
		}
		if len(d.Suggestions) > 0 {
			out["did_you_mean"] = d.Suggestions
		}
		return jsonResult(fmt.Sprintf("Message #%d", d.Message.Seq), out)
	})
}

const waitDescription = `Wait for a subagent to finish.

Usage:
- agent_id accepts an id, short id or persona
- timeout_ms defaults to 30000 and is capped at 300000; 0 checks once without waiting
- A timeout is not an error: the result has timed_out set and you may wait again`

// WaitInput is the input of wait.
type WaitInput struct {
	AgentID   string `json:"agent_id"`
	TimeoutMS *int64 `json:"timeout_ms,omitempty"`
}

// NewWaitTool creates the wait tool.
func NewWaitTool(svc Service) *BaseTool {
	return NewBaseTool(WaitTool, waitDescription, json.RawMessage(`{
		"type": "object",
		"properties": {
			"agent_id": {"type": "string", "description": "The agent to wait for"},
			"timeout_ms": {"type": "integer", "description": "Maximum time to wait in milliseconds"}
		},
		"required": ["agent_id"]
	}`), func(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
		var params WaitInput
		if err := json.Unmarshal(input, &params); err != nil {
			return nil, &collab.Error{Kind: collab.KindInvalidInput, Message: "invalid wait arguments", Err: err}
		}
		timeout, err := timeoutArg(params.TimeoutMS)
		if err != nil {
			return nil, err
		}

		res, err := svc.Wait(ctx, params.AgentID, timeout)
		if err != nil {
			return nil, err
		}
		out := map[string]any{
			"agent_id": res.AgentID,
			"persona":  res.Persona,
			"status":   res.Status,
		}
		if res.TimedOut {
			out["timed_out"] = true
		}
		if res.Result != nil {
			out["result"] = res.Result.Body
		}
		if res.Error != "" {
			out["error"] = res.Error
		}
		return jsonResult(fmt.Sprintf("%s is %s", res.Persona, res.Status), out)
	}, agent.RoleOrchestrator)
}

const closeAgentDescription = `Stop a subagent.

Usage:
- The agent is asked to stop and given timeout_ms (default 30000) to finish; after that it is closed
- Closing an agent that already finished returns its status`

// CloseAgentInput is the input of close_agent.
type CloseAgentInput struct {
	AgentID   string `json:"agent_id"`
	TimeoutMS *int64 `json:"timeout_ms,omitempty"`
}

// NewCloseAgentTool creates the close_agent tool.
func NewCloseAgentTool(svc Service) *BaseTool {
	return NewBaseTool(CloseAgentTool, closeAgentDescription, json.RawMessage(`{
		"type": "object",
		"properties": {
			"agent_id": {"type": "string", "description": "The agent to close"},
			"timeout_ms": {"type": "integer", "description": "Time to let the agent finish, in milliseconds"}
		},
		"required": ["agent_id"]
	}`), func(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
		var params CloseAgentInput
		if err := json.Unmarshal(input, &params); err != nil {
			return nil, &collab.Error{Kind: collab.KindInvalidInput, Message: "invalid close_agent arguments", Err: err}
		}
		timeout, err := timeoutArg(params.TimeoutMS)
		if err != nil {
			return nil, err
		}
		if timeout < 0 {
			timeout = collab.DefaultWaitTimeout
		} else if timeout > collab.MaxWaitTimeout {
			timeout = collab.MaxWaitTimeout
		}

		status, err := svc.CloseAgent(ctx, params.AgentID, timeout)
		if err != nil {
			return nil, err
		}
		return jsonResult(fmt.Sprintf("%s is %s", params.AgentID, status), map[string]any{
			"agent_id": params.AgentID,
			"status":   status,
		})
	}, agent.RoleOrchestrator)
}

const listAgentsDescription = `List every agent in the session in spawn order with its status.`

// NewListAgentsTool creates the list_agents tool.
func NewListAgentsTool(svc Service) *BaseTool {
	return NewBaseTool(ListAgentsTool, listAgentsDescription, json.RawMessage(`{
		"type": "object",
		"properties": {}
	}`), func(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
		agents, err := svc.ListAgents()
		if err != nil {
			return nil, err
		}
		type entry struct {
			ID      string       `json:"id"`
			ShortID string       `json:"short_id"`
			Persona string       `json:"persona"`
			Status  agent.Status `json:"status"`
		}
		out := make([]entry, 0, len(agents))
		for _, a := range agents {
			out = append(out, entry{ID: a.ID, ShortID: a.ShortID, Persona: a.Persona, Status: a.Status})
		}
		return jsonResult(fmt.Sprintf("%d agents", len(out)), out)
	})
}

const agentOutputDescription = `Show what a subagent has produced so far without waiting for it.

Usage:
- Returns its streamed text, last message, recent reasoning and recent tool events
- max_chars keeps only the last characters of each text field`

// AgentOutputInput is the input of agent_output.
type AgentOutputInput struct {
	AgentID  string `json:"agent_id"`
	MaxChars int    `json:"max_chars,omitempty"`
}

// NewAgentOutputTool creates the agent_output tool.
func NewAgentOutputTool(svc Service) *BaseTool {
	return NewBaseTool(AgentOutputTool, agentOutputDescription, json.RawMessage(`{
		"type": "object",
		"properties": {
			"agent_id": {"type": "string", "description": "The agent to inspect"},
			"max_chars": {"type": "integer", "description": "Keep only the last max_chars characters of each text"}
		},
		"required": ["agent_id"]
	}`), func(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
		var params AgentOutputInput
		if err := json.Unmarshal(input, &params); err != nil {
			return nil, &collab.Error{Kind: collab.KindInvalidInput, Message: "invalid agent_output arguments", Err: err}
		}
		out, err := svc.AgentOutput(params.AgentID, params.MaxChars)
		if err != nil {
			return nil, err
		}
		return jsonResult(fmt.Sprintf("%s output", out.Persona), map[string]any{
			"agent_id":                out.ID,
			"status":                  out.Status,
			"final_partial_text":      out.PartialText,
			"last_message":            out.LastMessage,
			"recent_reasoning_events": eventTexts(out.ReasoningEvents),
			"recent_tool_events":      eventTexts(out.ToolEvents),
		})
	}, agent.RoleOrchestrator)
}

// timeoutArg converts an optional millisecond timeout. Absent means the
// session default, signalled by a negative duration.
func timeoutArg(ms *int64) (time.Duration, error) {
	if ms == nil {
		return -1, nil
	}
	if *ms < 0 {
		return 0, &collab.Error{Kind: collab.KindInvalidInput, Message: "timeout_ms must not be negative"}
	}
	return collab.Millis(*ms), nil
}

func eventTexts(events []agent.OutputEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Text
	}
	return out
}

func jsonResult(title string, v any) (*Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &Result{Title: title, Output: string(data)}, nil
}

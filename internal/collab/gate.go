package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/event"
	"github.com/opencode-ai/collab/internal/permission"
)

// ToolCall is a tool invocation requested by an agent's task.
type ToolCall struct {
	ID string `json:"id"`
	// Name is the tool name. For tools provided by an MCP server, Server
	// holds the server name and policies see "<server>__<name>".
	Name   string `json:"name"`
	Server string `json:"server,omitempty"`
	// Command or Argv is set when the tool runs a shell command.
	Command   string          `json:"command,omitempty"`
	Argv      []string        `json:"argv,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// QualifiedName is the name tool patterns are matched against.
func (c ToolCall) QualifiedName() string {
	return permission.QualifiedToolName(c.Server, c.Name)
}

// CommandLine returns the command the call runs, or "".
func (c ToolCall) CommandLine() string {
	if c.Command != "" {
		return c.Command
	}
	return strings.Join(c.Argv, " ")
}

func (c ToolCall) displayName() string {
	if c.Server != "" {
		return c.Server + "/" + c.Name
	}
	return c.Name
}

// ToolResult is the outcome of a tool call as reported back to the task.
type ToolResult struct {
	CallID   string `json:"callId,omitempty"`
	Output   string `json:"output"`
	ExitCode int    `json:"exitCode,omitempty"`
	Err      error  `json:"-"`
}

// Failed reports whether the call failed, including policy denials.
func (r ToolResult) Failed() bool {
	return r.Err != nil
}

// Denied reports whether a policy refused the call.
func (r ToolResult) Denied() bool {
	return KindOf(r.Err) == KindPolicyDenied
}

// Text renders the result for the reasoning loop.
func (r ToolResult) Text() string {
	if r.Err == nil {
		return r.Output
	}
	if r.Output == "" {
		return "Error: " + r.Err.Error()
	}
	return r.Output + "\n\nError: " + r.Err.Error()
}

// Executor runs admitted tool calls.
type Executor interface {
	Execute(ctx context.Context, agentID string, call ToolCall) (ToolResult, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, agentID string, call ToolCall) (ToolResult, error)

func (f ExecutorFunc) Execute(ctx context.Context, agentID string, call ToolCall) (ToolResult, error) {
	return f(ctx, agentID, call)
}

// errNoExecutor is returned for admitted calls when no Executor is set.
var errNoExecutor = errors.New("no tool executor configured")

// gate checks one agent's tool calls against its policy before handing them
// to the session's Executor, and records the activity in the agent's output.
type gate struct {
	session *Session
	agent   *agent.Agent
}

var _ ToolInvoker = (*gate)(nil)

// Invoke never returns a Go error: denials and failures come back as failed
// results so the task can adapt.
func (g *gate) Invoke(ctx context.Context, call ToolCall) ToolResult {
	a := g.agent
	if st := a.Status(); st.IsTerminal() {
		return ToolResult{CallID: call.ID, Err: alreadyTerminal(a.ID, st)}
	}

	if d := evaluateCall(a.Policy, call); !d.Admit {
		return g.deny(call, d)
	}

	command := call.CommandLine()
	if command != "" {
		a.Output.AppendToolEvent("exec begin: " + command)
	} else {
		a.Output.AppendToolEvent(fmt.Sprintf("tool begin: %s (%s)", call.displayName(), call.ID))
	}

	var res ToolResult
	if g.session.exec == nil {
		res = ToolResult{Err: errNoExecutor}
	} else {
		var err error
		res, err = g.session.exec.Execute(ctx, a.ID, call)
		if err != nil && res.Err == nil {
			res.Err = err
		}
	}
	res.CallID = call.ID

	if command != "" {
		a.Output.AppendToolEvent(fmt.Sprintf("exec end: %s (exit %d)", command, res.ExitCode))
	} else {
		outcome := "ok"
		if res.Err != nil {
			outcome = "error"
		}
		a.Output.AppendToolEvent(fmt.Sprintf("tool end: %s (%s) %s", call.displayName(), call.ID, outcome))
	}
	return res
}

func (g *gate) deny(call ToolCall, d permission.Decision) ToolResult {
	a := g.agent
	denied := &permission.DeniedError{
		AgentID: a.ID,
		Attempt: d.Attempt,
		Pattern: d.Pattern,
		Reason:  d.Reason,
		Segment: d.Segment,
	}

	reason := d.Reason
	if d.Pattern != "" {
		reason = fmt.Sprintf("%s %q", d.Reason, d.Pattern)
	}
	a.Output.AppendToolEvent(fmt.Sprintf("denied: %s (%s)", d.Attempt.Subject, reason))

	g.session.log.Warn().
		Str("agent", a.ID).
		Str("kind", string(d.Attempt.Kind)).
		Str("subject", d.Attempt.Subject).
		Str("pattern", d.Pattern).
		Str("reason", d.Reason).
		Msg("policy denied tool call")
	g.session.bus.Publish(event.Event{
		Type: event.PolicyDenied,
		Data: event.PolicyDeniedData{
			AgentID: a.ID,
			CallID:  call.ID,
			Attempt: d.Attempt,
			Pattern: d.Pattern,
			Reason:  d.Reason,
		},
	})

	return ToolResult{
		CallID: call.ID,
		Err:    &Error{Kind: KindPolicyDenied, AgentID: a.ID, Message: "policy denied", Err: denied},
	}
}

// evaluateCall checks the tool name and then, for shell tools, the command.
// Tool patterns only gate the tool name and command patterns only gate the
// command, so a shell call must pass both.
func evaluateCall(p permission.Policy, call ToolCall) permission.Decision {
	d := p.Evaluate(permission.ToolAttempt(call.QualifiedName()))
	if !d.Admit {
		return d
	}
	if command := call.CommandLine(); command != "" {
		return p.Evaluate(permission.CommandAttempt(command))
	}
	return d
}

// Tools returns the policy gate of an agent. The orchestrator's reasoning
// runs outside any Runner and calls its tools through this gate.
func (s *Session) Tools(ref string) (ToolInvoker, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	a, err := s.lookup(ref)
	if err != nil {
		return nil, err
	}
	return &gate{session: s, agent: a}, nil
}

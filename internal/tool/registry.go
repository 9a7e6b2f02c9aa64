package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/collab"
	"github.com/opencode-ai/collab/internal/logging"
	"github.com/opencode-ai/collab/internal/permission"
)

// ErrUnknownTool is returned for calls to tools that are not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Registry manages tool registration and lookup. It is also the session's
// collab.Executor: admitted calls are dispatched to the registered tool.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	workDir  string
	roles    func(agentID string) (agent.Role, bool)
	fallback collab.Executor
}

var _ collab.Executor = (*Registry)(nil)

// NewRegistry creates a new tool registry.
func NewRegistry(workDir string) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		workDir: workDir,
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	logging.Debug().Str("tool", tool.ID()).Msg("registering tool")
	r.tools[tool.ID()] = tool
}

// SetFallback sets the executor for calls no registered tool handles, such
// as tools provided by MCP servers.
func (r *Registry) SetFallback(exec collab.Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = exec
}

// Get retrieves a tool by ID.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[id]
	return tool, ok
}

// List returns all registered tools sorted by ID.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].ID() < tools[j].ID() })
	return tools
}

// IDs returns all tool IDs, sorted.
func (r *Registry) IDs() []string {
	tools := r.List()
	ids := make([]string, len(tools))
	for i, t := range tools {
		ids[i] = t.ID()
	}
	return ids
}

// ForRole returns the tools an agent with the given role may call.
func (r *Registry) ForRole(role agent.Role) []Tool {
	var out []Tool
	for _, t := range r.List() {
		if available(t, role) {
			out = append(out, t)
		}
	}
	return out
}

// EinoTools returns Eino-compatible tools for a role.
func (r *Registry) EinoTools(role agent.Role) []einotool.BaseTool {
	tools := r.ForRole(role)
	out := make([]einotool.BaseTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, t.EinoTool())
	}
	return out
}

// ToolInfos returns Eino tool infos for the tools a role may call.
func (r *Registry) ToolInfos(role agent.Role) []*schema.ToolInfo {
	tools := r.ForRole(role)
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		infos = append(infos, toolInfo(t))
	}
	return infos
}

// NewCall turns a model tool call into a collab.ToolCall. Command tools get
// their command filled in so command policies apply, and unregistered
// "<server>__<tool>" names are split into server and tool.
func (r *Registry) NewCall(id, name, arguments string) collab.ToolCall {
	call := collab.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(arguments)}
	if arguments == "" {
		call.Arguments = json.RawMessage("{}")
	}

	t, ok := r.Get(name)
	if !ok {
		if server, tool, found := strings.Cut(name, permission.ServerSeparator); found && server != "" && tool != "" {
			call.Server, call.Name = server, tool
		}
		return call
	}
	if ct, ok := t.(CommandTool); ok {
		if command, err := ct.Command(call.Arguments); err == nil {
			call.Command = command
		}
	}
	return call
}

// Execute implements collab.Executor.
func (r *Registry) Execute(ctx context.Context, agentID string, call collab.ToolCall) (collab.ToolResult, error) {
	r.mu.RLock()
	t, ok := r.tools[call.Name]
	fallback := r.fallback
	roles := r.roles
	r.mu.RUnlock()

	if call.Server != "" || !ok {
		if fallback != nil {
			return fallback.Execute(ctx, agentID, call)
		}
		return collab.ToolResult{}, fmt.Errorf("%w: %s", ErrUnknownTool, call.QualifiedName())
	}

	if roles != nil {
		if role, found := roles(agentID); found && !available(t, role) {
			return collab.ToolResult{}, fmt.Errorf("tool %s is not available to %s agents", t.ID(), role)
		}
	}

	toolCtx := &Context{AgentID: agentID, CallID: call.ID, WorkDir: r.workDir}
	res, err := t.Execute(ctx, call.Arguments, toolCtx)
	if err != nil {
		return collab.ToolResult{}, err
	}
	return collab.ToolResult{Output: res.Output, ExitCode: res.ExitCode(), Err: res.Error}, nil
}

func available(t Tool, role agent.Role) bool {
	if s, ok := t.(Scoped); ok {
		return s.AvailableTo(role)
	}
	return true
}

// DefaultRegistry creates a registry with the collaboration tools bound to
// svc and, when shell is true, the shell tool.
func DefaultRegistry(workDir string, svc Service, shell bool) *Registry {
	r := NewRegistry(workDir)
	r.RegisterCollabTools(svc)
	if shell {
		r.Register(NewShellTool(workDir))
	}
	logging.Debug().Strs("tools", r.IDs()).Msg("default registry created")
	return r
}

// Package tool exposes the collaboration operations, and the shell, as tools
// a model can call.
package tool

import (
	"context"
	"encoding/json"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/collab/internal/agent"
)

// Tool defines the interface for all tools.
type Tool interface {
	// ID returns the tool identifier.
	ID() string

	// Description returns the tool description.
	Description() string

	// Parameters returns the JSON Schema for tool parameters.
	Parameters() json.RawMessage

	// Execute executes the tool with the given input.
	Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error)

	// EinoTool returns an Eino-compatible tool implementation.
	EinoTool() einotool.InvokableTool
}

// CommandTool is implemented by tools that run a shell command. The command
// is what command policies are checked against.
type CommandTool interface {
	Tool
	Command(input json.RawMessage) (string, error)
}

// Scoped is implemented by tools that only some roles may call.
type Scoped interface {
	AvailableTo(role agent.Role) bool
}

// Context provides execution context to tools.
type Context struct {
	// AgentID is the calling agent.
	AgentID string
	CallID  string
	WorkDir string
	Extra   map[string]any

	// Metadata callback for real-time updates
	OnMetadata func(title string, meta map[string]any)
}

// SetMetadata updates tool execution metadata.
func (c *Context) SetMetadata(title string, meta map[string]any) {
	if c != nil && c.OnMetadata != nil {
		c.OnMetadata(title, meta)
	}
}

// Result represents the output of a tool execution.
type Result struct {
	Title    string         `json:"title"`
	Output   string         `json:"output"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Error    error          `json:"-"`
}

// ExitCode returns the "exit" metadata of command results, or 0.
func (r *Result) ExitCode() int {
	if r == nil {
		return 0
	}
	code, _ := r.Metadata["exit"].(int)
	return code
}

// BaseTool provides a base implementation for tools.
type BaseTool struct {
	id          string
	description string
	parameters  json.RawMessage
	roles       []agent.Role
	execute     func(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error)
}

// NewBaseTool creates a new base tool. With no roles the tool is available
// to every agent.
func NewBaseTool(id, description string, params json.RawMessage, execute func(context.Context, json.RawMessage, *Context) (*Result, error), roles ...agent.Role) *BaseTool {
	return &BaseTool{
		id:          id,
		description: description,
		parameters:  params,
		roles:       roles,
		execute:     execute,
	}
}

func (t *BaseTool) ID() string                  { return t.id }
func (t *BaseTool) Description() string         { return t.description }
func (t *BaseTool) Parameters() json.RawMessage { return t.parameters }

func (t *BaseTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	return t.execute(ctx, input, toolCtx)
}

// AvailableTo implements Scoped.
func (t *BaseTool) AvailableTo(role agent.Role) bool {
	if len(t.roles) == 0 {
		return true
	}
	for _, r := range t.roles {
		if r == role {
			return true
		}
	}
	return false
}

// EinoTool returns an Eino-compatible tool implementation.
func (t *BaseTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}

// einoToolWrapper wraps a Tool to implement Eino's InvokableTool interface.
type einoToolWrapper struct {
	tool Tool
}

// Info returns the tool information.
func (w *einoToolWrapper) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return toolInfo(w.tool), nil
}

// InvokableRun executes the tool outside any policy gate.
func (w *einoToolWrapper) InvokableRun(ctx context.Context, argsJSON string, opts ...einotool.Option) (string, error) {
	result, err := w.tool.Execute(ctx, json.RawMessage(argsJSON), &Context{})
	if err != nil {
		return "", err
	}
	return result.Output, nil
}

func toolInfo(t Tool) *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        t.ID(),
		Desc:        t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(parseJSONSchemaToParams(t.Parameters())),
	}
}

type jsonSchemaProperty struct {
	Type        string              `json:"type"`
	Description string              `json:"description"`
	Enum        []string            `json:"enum"`
	Items       *jsonSchemaProperty `json:"items"`
}

// parseJSONSchemaToParams converts JSON Schema to Eino ParameterInfo.
func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var jsonSchema struct {
		Properties map[string]*jsonSchemaProperty `json:"properties"`
		Required   []string                       `json:"required"`
	}

	if err := json.Unmarshal(schemaJSON, &jsonSchema); err != nil {
		return nil
	}

	requiredSet := make(map[string]bool)
	for _, r := range jsonSchema.Required {
		requiredSet[r] = true
	}

	params := make(map[string]*schema.ParameterInfo)
	for name, prop := range jsonSchema.Properties {
		info := paramInfo(prop)
		info.Required = requiredSet[name]
		params[name] = info
	}

	return params
}

func paramInfo(prop *jsonSchemaProperty) *schema.ParameterInfo {
	info := &schema.ParameterInfo{
		Type: schema.String,
		Desc: prop.Description,
		Enum: prop.Enum,
	}
	switch prop.Type {
	case "integer":
		info.Type = schema.Integer
	case "number":
		info.Type = schema.Number
	case "boolean":
		info.Type = schema.Boolean
	case "array":
		info.Type = schema.Array
		if prop.Items != nil {
			info.ElemInfo = paramInfo(prop.Items)
		}
	case "object":
		info.Type = schema.Object
	}
	return info
}

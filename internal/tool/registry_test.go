package tool

import (
	"context"
	"encoding/json"
	"testing"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/collab"
)

// mockTool implements Tool for testing
type mockTool struct {
	id     string
	params json.RawMessage
	calls  int
}

func (m *mockTool) ID() string                  { return m.id }
func (m *mockTool) Description() string         { return "mock " + m.id }
func (m *mockTool) Parameters() json.RawMessage { return m.params }
func (m *mockTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	m.calls++
	return &Result{Output: "mock result for " + toolCtx.AgentID}, nil
}
func (m *mockTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: m}
}

func newMockTool(id string) *mockTool {
	return &mockTool{id: id, params: json.RawMessage(`{"type": "object", "properties": {}}`)}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry(t.TempDir())
	registry.Register(newMockTool("test_tool"))

	got, ok := registry.Get("test_tool")
	require.True(t, ok)
	assert.Equal(t, "test_tool", got.ID())

	_, ok = registry.Get("nonexistent")
	assert.False(t, ok)
}

func TestRegistry_ListIsSorted(t *testing.T) {
	registry := NewRegistry(t.TempDir())
	registry.Register(newMockTool("gamma"))
	registry.Register(newMockTool("alpha"))
	registry.Register(newMockTool("beta"))

	assert.Equal(t, []string{"alpha", "beta", "gamma"}, registry.IDs())
}

func TestRegistry_ForRole(t *testing.T) {
	registry := DefaultRegistry(t.TempDir(), nopService{}, true)

	assert.Equal(t, []string{
		AgentOutputTool, CloseAgentTool, ListAgentsTool, SendInputTool, ShellToolID, SpawnAgentTool, WaitTool,
	}, ids(registry.ForRole(agent.RoleOrchestrator)))
	assert.Equal(t, []string{ListAgentsTool, SendInputTool, ShellToolID}, ids(registry.ForRole(agent.RoleSubagent)))
	assert.Len(t, registry.EinoTools(agent.RoleSubagent), 3)
}

func TestRegistry_ToolInfos(t *testing.T) {
	registry := NewRegistry(t.TempDir())
	registry.RegisterCollabTools(nopService{})

	infos := registry.ToolInfos(agent.RoleOrchestrator)
	var spawn *schema.ToolInfo
	for _, info := range infos {
		if info.Name == SpawnAgentTool {
			spawn = info
		}
	}
	require.NotNil(t, spawn)

	params := parseJSONSchemaToParams(NewSpawnAgentTool(nopService{}).Parameters())
	require.Contains(t, params, "message")
	assert.True(t, params["message"].Required)
	assert.False(t, params["persona"].Required)
	require.Contains(t, params, "tool_denylist")
	assert.Equal(t, schema.Array, params["tool_denylist"].Type)
	require.NotNil(t, params["tool_denylist"].ElemInfo)
	assert.Equal(t, schema.String, params["tool_denylist"].ElemInfo.Type)

	visibility := parseJSONSchemaToParams(NewSendInputTool(nopService{}).Parameters())["visibility"]
	assert.Equal(t, []string{"interim", "final"}, visibility.Enum)
}

func TestRegistry_NewCall(t *testing.T) {
	registry := NewRegistry(t.TempDir())
	registry.Register(NewShellTool(t.TempDir()))
	registry.Register(newMockTool("read"))

	call := registry.NewCall("c1", "shell", `{"command": "cargo test -p app-core"}`)
	assert.Equal(t, "shell", call.Name)
	assert.Equal(t, "cargo test -p app-core", call.Command)

	call = registry.NewCall("c2", "read", "")
	assert.Empty(t, call.Command)
	assert.JSONEq(t, `{}`, string(call.Arguments))

	call = registry.NewCall("c3", "search__query", `{"q": "x"}`)
	assert.Equal(t, "search", call.Server)
	assert.Equal(t, "query", call.Name)
	assert.Equal(t, "search__query", call.QualifiedName())

	call = registry.NewCall("c4", "__broken", "{}")
	assert.Empty(t, call.Server)
	assert.Equal(t, "__broken", call.Name)
}

func TestRegistry_ExecuteUnknownTool(t *testing.T) {
	registry := NewRegistry(t.TempDir())

	_, err := registry.Execute(context.Background(), "agent", collab.ToolCall{ID: "1", Name: "missing"})
	assert.ErrorIs(t, err, ErrUnknownTool)

	var got collab.ToolCall
	registry.SetFallback(collab.ExecutorFunc(func(_ context.Context, _ string, call collab.ToolCall) (collab.ToolResult, error) {
		got = call
		return collab.ToolResult{Output: "from fallback"}, nil
	}))
	res, err := registry.Execute(context.Background(), "agent", collab.ToolCall{ID: "2", Server: "docs", Name: "fetch"})
	require.NoError(t, err)
	assert.Equal(t, "from fallback", res.Output)
	assert.Equal(t, "docs__fetch", got.QualifiedName())
}

func TestRegistry_ExecutePassesCaller(t *testing.T) {
	registry := NewRegistry(t.TempDir())
	mock := newMockTool("read")
	registry.Register(mock)

	res, err := registry.Execute(context.Background(), "agent-7", collab.ToolCall{ID: "1", Name: "read"})
	require.NoError(t, err)
	assert.Equal(t, "mock result for agent-7", res.Output)
	assert.Equal(t, 1, mock.calls)
}

func TestEinoWrapper(t *testing.T) {
	mock := newMockTool("read")
	info, err := mock.EinoTool().Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "read", info.Name)

	out, err := mock.EinoTool().InvokableRun(context.Background(), "{}")
	require.NoError(t, err)
	assert.Equal(t, "mock result for ", out)
}

func ids(tools []Tool) []string {
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = t.ID()
	}
	return out
}

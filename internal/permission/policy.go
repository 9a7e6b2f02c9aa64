package permission

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind distinguishes the two families of pattern lists.
type Kind string

const (
	KindTool    Kind = "tool"
	KindCommand Kind = "command"
)

// Decision reasons.
const (
	ReasonDenyMatch    = "matched deny pattern"
	ReasonNoAllowMatch = "no allow-list match"
)

// ServerSeparator joins an MCP server name and tool name into the qualified
// tool name that tool patterns are matched against.
const ServerSeparator = "__"

// QualifiedToolName returns the name used for policy matching of a tool
// exposed by an MCP server.
func QualifiedToolName(server, tool string) string {
	if server == "" {
		return tool
	}
	return server + ServerSeparator + tool
}

// Attempt is a candidate action checked against a Policy.
type Attempt struct {
	Kind    Kind   `json:"kind"`
	Subject string `json:"subject"`
}

// ToolAttempt builds a tool attempt for the given qualified tool name.
func ToolAttempt(name string) Attempt {
	return Attempt{Kind: KindTool, Subject: name}
}

// CommandAttempt builds a command attempt from a shell command line.
func CommandAttempt(command string) Attempt {
	return Attempt{Kind: KindCommand, Subject: command}
}

// ArgvAttempt builds a command attempt from an argument vector. The words are
// joined with single spaces, which is the form command patterns are written in.
func ArgvAttempt(argv []string) Attempt {
	return CommandAttempt(strings.Join(argv, " "))
}

// Decision is the outcome of evaluating an Attempt.
type Decision struct {
	Admit   bool    `json:"admit"`
	Attempt Attempt `json:"attempt"`
	// Pattern is the deny pattern that matched, if any.
	Pattern string `json:"pattern,omitempty"`
	Reason  string `json:"reason,omitempty"`
	// Segment is the simple command inside a compound command line that
	// caused the denial.
	Segment string `json:"segment,omitempty"`
}

// Err converts a denial into a *DeniedError attributed to agentID.
// It returns nil when the attempt was admitted.
func (d Decision) Err(agentID string) error {
	if d.Admit {
		return nil
	}
	return &DeniedError{
		AgentID: agentID,
		Attempt: d.Attempt,
		Pattern: d.Pattern,
		Reason:  d.Reason,
		Segment: d.Segment,
	}
}

// Policy is the set of allow and deny patterns attached to an agent.
type Policy struct {
	ToolAllow    []string `json:"tool_allowlist,omitempty" yaml:"tool_allowlist,omitempty"`
	ToolDeny     []string `json:"tool_denylist,omitempty" yaml:"tool_denylist,omitempty"`
	CommandAllow []string `json:"shell_command_allowlist,omitempty" yaml:"shell_command_allowlist,omitempty"`
	CommandDeny  []string `json:"shell_command_denylist,omitempty" yaml:"shell_command_denylist,omitempty"`
}

// IsZero reports whether the policy has no patterns at all.
func (p Policy) IsZero() bool {
	return len(p.ToolAllow) == 0 && len(p.ToolDeny) == 0 &&
		len(p.CommandAllow) == 0 && len(p.CommandDeny) == 0
}

// Clone returns a deep copy of p.
func (p Policy) Clone() Policy {
	return Policy{
		ToolAllow:    cloneList(p.ToolAllow),
		ToolDeny:     cloneList(p.ToolDeny),
		CommandAllow: cloneList(p.CommandAllow),
		CommandDeny:  cloneList(p.CommandDeny),
	}
}

// Validate checks that every pattern is usable.
func (p Policy) Validate() error {
	lists := []struct {
		field    string
		patterns []string
	}{
		{"tool_allowlist", p.ToolAllow},
		{"tool_denylist", p.ToolDeny},
		{"shell_command_allowlist", p.CommandAllow},
		{"shell_command_denylist", p.CommandDeny},
	}
	for _, l := range lists {
		for i, pattern := range l.patterns {
			if !utf8.ValidString(pattern) {
				return fmt.Errorf("%s[%d]: pattern is not valid UTF-8", l.field, i)
			}
			if strings.ContainsRune(pattern, 0) {
				return fmt.Errorf("%s[%d]: pattern contains a NUL byte", l.field, i)
			}
		}
	}
	return nil
}

// With returns a copy of p with the lists set in o replacing p's lists.
func (p Policy) With(o Override) Policy {
	out := p.Clone()
	if o.ToolAllow != nil {
		out.ToolAllow = replaceList(*o.ToolAllow)
	}
	if o.ToolDeny != nil {
		out.ToolDeny = replaceList(*o.ToolDeny)
	}
	if o.CommandAllow != nil {
		out.CommandAllow = replaceList(*o.CommandAllow)
	}
	if o.CommandDeny != nil {
		out.CommandDeny = replaceList(*o.CommandDeny)
	}
	return out
}

// Evaluate decides whether the attempt is admitted.
func (p Policy) Evaluate(a Attempt) Decision {
	allow, deny := p.lists(a.Kind)
	d := evaluate(allow, deny, a.Subject)
	d.Attempt = a
	if !d.Admit || a.Kind != KindCommand {
		return d
	}

	// A compound line must not smuggle a denied command past a pattern
	// that matched the line as a whole.
	commands, err := ParseCommand(a.Subject)
	if err != nil || len(commands) < 2 {
		return d
	}
	for _, cmd := range commands {
		segment := cmd.String()
		sub := evaluate(allow, deny, segment)
		if !sub.Admit {
			sub.Attempt = a
			sub.Segment = segment
			return sub
		}
	}
	return d
}

func (p Policy) lists(kind Kind) (allow, deny []string) {
	if kind == KindCommand {
		return p.CommandAllow, p.CommandDeny
	}
	return p.ToolAllow, p.ToolDeny
}

func evaluate(allow, deny []string, subject string) Decision {
	if pattern, ok := MatchAny(deny, subject); ok {
		return Decision{Pattern: pattern, Reason: ReasonDenyMatch}
	}
	if len(allow) > 0 {
		if _, ok := MatchAny(allow, subject); !ok {
			return Decision{Reason: ReasonNoAllowMatch}
		}
	}
	return Decision{Admit: true}
}

// Override carries the policy lists a spawn request sets explicitly.
// A nil field inherits the parent's list; a non-nil empty list clears it.
type Override struct {
	ToolAllow    *[]string `json:"tool_allowlist,omitempty" yaml:"tool_allowlist,omitempty"`
	ToolDeny     *[]string `json:"tool_denylist,omitempty" yaml:"tool_denylist,omitempty"`
	CommandAllow *[]string `json:"shell_command_allowlist,omitempty" yaml:"shell_command_allowlist,omitempty"`
	CommandDeny  *[]string `json:"shell_command_denylist,omitempty" yaml:"shell_command_denylist,omitempty"`
}

// IsZero reports whether the override changes nothing.
func (o Override) IsZero() bool {
	return o.ToolAllow == nil && o.ToolDeny == nil &&
		o.CommandAllow == nil && o.CommandDeny == nil
}

// replaceList copies an override list. The result is never nil so that an
// explicitly empty override stays distinguishable from an inherited list.
func replaceList(list []string) []string {
	out := make([]string, len(list))
	copy(out, list)
	return out
}

func cloneList(list []string) []string {
	if list == nil {
		return nil
	}
	out := make([]string, len(list))
	copy(out, list)
	return out
}

package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// MockLLMConfig defines the YAML configuration schema for MockLLM scenarios.
type MockLLMConfig struct {
	Settings  MockSettings   `yaml:"settings"`
	Defaults  MockDefaults   `yaml:"defaults"`
	Responses []ResponseRule `yaml:"responses"`
	ToolRules []ToolRule     `yaml:"tool_rules"`
}

// MockSettings configures MockLLM server behavior.
type MockSettings struct {
	LagMS        int `yaml:"lag_ms"`         // Artificial delay before every reply
	ChunkDelayMS int `yaml:"chunk_delay_ms"` // Delay between streaming chunks
}

// MockDefaults defines fallback behavior.
type MockDefaults struct {
	Fallback string `yaml:"fallback"` // Response when no rules match
}

// MockPrompt is what rules are matched against: the system prompt, which
// carries the agent's persona, and the last non-assistant message, which
// is the task input, a tool result or folded group chat messages.
type MockPrompt struct {
	System string
	Last   string
	// LastRole is "user" or "tool".
	LastRole string
	Tools    []string
}

// ResponseRule defines a prompt-to-response mapping.
type ResponseRule struct {
	Name     string      `yaml:"name"`
	Persona  string      `yaml:"persona"` // Must appear in the system prompt's persona line
	Match    MatchConfig `yaml:"match"`
	Response string      `yaml:"response"`
	LagMS    int         `yaml:"lag_ms"` // Extra delay for this rule
	Priority int         `yaml:"priority"`
}

// ToolRule defines when to generate a tool call.
type ToolRule struct {
	Name    string      `yaml:"name"`
	Persona string      `yaml:"persona"`
	Match   MatchConfig `yaml:"match"`
	Tool    string      `yaml:"tool"`
	// Force calls the tool even when the request does not offer it.
	Force    bool           `yaml:"force"`
	ToolCall ToolCallConfig `yaml:"tool_call"`
	Response string         `yaml:"response"` // Optional text alongside the call
	Priority int            `yaml:"priority"`
}

// ToolCallConfig defines a tool call to generate.
type ToolCallConfig struct {
	ID        string         `yaml:"id"`
	Arguments map[string]any `yaml:"arguments"`
}

// MatchConfig defines how to match a prompt.
type MatchConfig struct {
	// Role restricts the rule to a last message of this role.
	Role string `yaml:"role"`

	// Simple string matching (case-insensitive contains)
	Contains string `yaml:"contains"`

	// All strings must be present (case-insensitive)
	ContainsAll []string `yaml:"contains_all"`

	// Any string must be present (case-insensitive)
	ContainsAny []string `yaml:"contains_any"`

	// Exact match (case-insensitive)
	Exact string `yaml:"exact"`

	// Regex pattern
	Regex string `yaml:"regex"`
}

// DefaultMockLLMConfig returns the scenarios the e2e suite runs against.
func DefaultMockLLMConfig() *MockLLMConfig {
	return &MockLLMConfig{
		Settings: MockSettings{ChunkDelayMS: 2},
		Defaults: MockDefaults{
			Fallback: "Done.",
		},
		Responses: []ResponseRule{
			{
				Name:     "report-denial",
				Match:    MatchConfig{Role: "tool", Contains: "denied"},
				Response: "My policy denied that call, so I am leaving the change to someone else.",
				Priority: 20,
			},
			{
				Name:     "tool-done",
				Match:    MatchConfig{Role: "tool"},
				Response: "Tool finished.",
				Priority: 1,
			},
			{
				Name:     "ack-chat",
				Match:    MatchConfig{Role: "user", Contains: "New group chat messages:"},
				Response: "Acknowledged the new chat messages.",
				Priority: 15,
			},
			{
				Name:     "ready",
				Match:    MatchConfig{Role: "user", ContainsAll: []string{"reply", "ready"}},
				Response: "Ready",
				Priority: 10,
			},
			{
				Name:     "slow-review",
				Persona:  "Reviewer",
				Match:    MatchConfig{Role: "user", Contains: "please review"},
				Response: "Starting the review.",
				LagMS:    1500,
				Priority: 12,
			},
		},
		ToolRules: []ToolRule{
			{
				Name:    "planner-patches",
				Persona: "Planner",
				Match:   MatchConfig{Role: "user", Contains: "apply"},
				Tool:    "apply_patch",
				Force:   true,
				ToolCall: ToolCallConfig{
					ID:        "call_patch_001",
					Arguments: map[string]any{"patch": "--- a/main.go\n+++ b/main.go\n"},
				},
				Response: "Applying the patch.",
				Priority: 10,
			},
			{
				Name:  "list-agents",
				Match: MatchConfig{Role: "user", Contains: "who is here"},
				Tool:  "list_agents",
				ToolCall: ToolCallConfig{
					ID:        "call_list_001",
					Arguments: map[string]any{},
				},
				Priority: 10,
			},
		},
	}
}

// LoadMockLLMConfig loads configuration from a YAML file.
func LoadMockLLMConfig(path string) (*MockLLMConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config MockLLMConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadMockLLMConfigFromDir looks for mockllm.yaml in the given directory.
func LoadMockLLMConfigFromDir(dir string) (*MockLLMConfig, error) {
	path := filepath.Join(dir, "mockllm.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = filepath.Join(dir, "mockllm.yml")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, err
		}
	}
	return LoadMockLLMConfig(path)
}

// Matches checks if the prompt matches this rule.
func (m *MatchConfig) Matches(p MockPrompt) bool {
	if m.Role != "" && !strings.EqualFold(m.Role, p.LastRole) {
		return false
	}
	prompt := p.Last
	promptLower := strings.ToLower(prompt)

	if m.Exact != "" {
		return strings.EqualFold(prompt, m.Exact)
	}

	if m.Contains != "" {
		return strings.Contains(promptLower, strings.ToLower(m.Contains))
	}

	if len(m.ContainsAll) > 0 {
		for _, s := range m.ContainsAll {
			if !strings.Contains(promptLower, strings.ToLower(s)) {
				return false
			}
		}
		return true
	}

	if len(m.ContainsAny) > 0 {
		for _, s := range m.ContainsAny {
			if strings.Contains(promptLower, strings.ToLower(s)) {
				return true
			}
		}
		return false
	}

	if m.Regex != "" {
		re, err := regexp.Compile(m.Regex)
		return err == nil && re.MatchString(prompt)
	}

	// A rule with only a role matches any message of that role
	return m.Role != ""
}

// hasPersona reports whether the system prompt names persona on its
// "Persona:" line.
func (p MockPrompt) hasPersona(persona string) bool {
	if persona == "" {
		return true
	}
	_, rest, ok := strings.Cut(p.System, "Persona:\n")
	if !ok {
		return false
	}
	line, _, _ := strings.Cut(rest, "\n")
	name, _, _ := strings.Cut(line, ":")
	return strings.EqualFold(strings.TrimSpace(name), persona)
}

// FindMatchingResponse finds the highest priority response rule for a prompt.
func (c *MockLLMConfig) FindMatchingResponse(p MockPrompt) (*ResponseRule, bool) {
	var bestMatch *ResponseRule
	bestPriority := -1

	for i := range c.Responses {
		rule := &c.Responses[i]
		if p.hasPersona(rule.Persona) && rule.Match.Matches(p) && rule.Priority > bestPriority {
			bestMatch = rule
			bestPriority = rule.Priority
		}
	}

	if bestMatch != nil {
		return bestMatch, true
	}
	return &ResponseRule{Name: "fallback", Response: c.Defaults.Fallback}, false
}

// FindMatchingToolRule finds a matching tool rule for a prompt and the tools
// the request offers.
func (c *MockLLMConfig) FindMatchingToolRule(p MockPrompt) *ToolRule {
	toolSet := make(map[string]bool)
	for _, t := range p.Tools {
		toolSet[t] = true
	}

	var bestMatch *ToolRule
	bestPriority := -1

	for i := range c.ToolRules {
		rule := &c.ToolRules[i]
		if !rule.Force && !toolSet[rule.Tool] {
			continue
		}
		if p.hasPersona(rule.Persona) && rule.Match.Matches(p) && rule.Priority > bestPriority {
			bestMatch = rule
			bestPriority = rule.Priority
		}
	}

	return bestMatch
}

// arguments renders the tool call arguments as a JSON object.
func (r *ToolRule) arguments() string {
	args := r.ToolCall.Arguments
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

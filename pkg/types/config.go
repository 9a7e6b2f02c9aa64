// Package types holds the wire types shared by the configuration files, the
// HTTP API and the CLI.
package types

// Config represents the collab configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Model selection, "provider/model"
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// Provider configs keyed by provider id
	Provider map[string]ProviderConfig `json:"provider,omitempty" yaml:"provider,omitempty"`

	LogLevel string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`

	// Additional instruction files, appended to every agent's instructions
	Instructions []string `json:"instructions,omitempty" yaml:"instructions,omitempty"`

	// Orchestrator persona name
	Orchestrator string `json:"orchestrator,omitempty" yaml:"orchestrator,omitempty"`

	// Spawn the default subagent templates when a session starts
	DefaultSubagents *bool `json:"defaultSubagents,omitempty" yaml:"defaultSubagents,omitempty"`

	// Persona templates keyed by persona name
	Personas map[string]PersonaConfig `json:"personas,omitempty" yaml:"personas,omitempty"`

	// Root policy for the orchestrator, inherited by subagents
	Policy *PolicyConfig `json:"policy,omitempty" yaml:"policy,omitempty"`

	Timeouts *TimeoutConfig `json:"timeouts,omitempty" yaml:"timeouts,omitempty"`
	Limits   *LimitsConfig  `json:"limits,omitempty" yaml:"limits,omitempty"`
	Server   *ServerConfig  `json:"server,omitempty" yaml:"server,omitempty"`
	Shell    *ShellConfig   `json:"shell,omitempty" yaml:"shell,omitempty"`

	// Maximum model turns per task
	MaxSteps int `json:"maxSteps,omitempty" yaml:"maxSteps,omitempty"`
}

// ProviderConfig holds configuration for a specific provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`

	// Model/Endpoint ID (for providers like ARK that require endpoint specification)
	Model     string `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`

	// Nested options (TypeScript style)
	Options *ProviderOptions `json:"options,omitempty" yaml:"options,omitempty"`

	// Disable provider
	Disable bool `json:"disable,omitempty" yaml:"disable,omitempty"`
}

// ProviderOptions holds nested provider options (TypeScript style).
type ProviderOptions struct {
	APIKey  string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
}

// PersonaConfig describes a subagent template.
type PersonaConfig struct {
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
	InitialMessage string `json:"initialMessage,omitempty" yaml:"initialMessage,omitempty"`
	Instructions   string `json:"instructions,omitempty" yaml:"instructions,omitempty"`

	// Policy overrides the inherited policy list by list.
	Policy *PolicyConfig `json:"policy,omitempty" yaml:"policy,omitempty"`

	// Disable drops the persona, including a built-in one.
	Disable bool `json:"disable,omitempty" yaml:"disable,omitempty"`
}

// PolicyConfig holds tool and shell command patterns. A nil list is
// inherited; an empty list clears the inherited one.
type PolicyConfig struct {
	ToolAllowlist         *[]string `json:"tool_allowlist,omitempty" yaml:"tool_allowlist,omitempty"`
	ToolDenylist          *[]string `json:"tool_denylist,omitempty" yaml:"tool_denylist,omitempty"`
	ShellCommandAllowlist *[]string `json:"shell_command_allowlist,omitempty" yaml:"shell_command_allowlist,omitempty"`
	ShellCommandDenylist  *[]string `json:"shell_command_denylist,omitempty" yaml:"shell_command_denylist,omitempty"`
}

// TimeoutConfig holds timeouts in milliseconds. Zero selects the default.
type TimeoutConfig struct {
	WaitMs     int `json:"waitMs,omitempty" yaml:"waitMs,omitempty"`
	WaitMaxMs  int `json:"waitMaxMs,omitempty" yaml:"waitMaxMs,omitempty"`
	CloseMs    int `json:"closeMs,omitempty" yaml:"closeMs,omitempty"`
	TeardownMs int `json:"teardownMs,omitempty" yaml:"teardownMs,omitempty"`
}

// LimitsConfig bounds the in-memory chat log and output buffers.
type LimitsConfig struct {
	MaxMessages        int `json:"maxMessages,omitempty" yaml:"maxMessages,omitempty"`
	MaxOutputChars     int `json:"maxOutputChars,omitempty" yaml:"maxOutputChars,omitempty"`
	MaxReasoningEvents int `json:"maxReasoningEvents,omitempty" yaml:"maxReasoningEvents,omitempty"`
	MaxToolEvents      int `json:"maxToolEvents,omitempty" yaml:"maxToolEvents,omitempty"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Port int      `json:"port,omitempty" yaml:"port,omitempty"`
	CORS []string `json:"cors,omitempty" yaml:"cors,omitempty"`
}

// ShellConfig configures the shell tool.
type ShellConfig struct {
	Enabled bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	WorkDir string `json:"workDir,omitempty" yaml:"workDir,omitempty"`
}

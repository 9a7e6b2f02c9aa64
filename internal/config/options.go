package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/collab"
	"github.com/opencode-ai/collab/internal/logging"
	"github.com/opencode-ai/collab/internal/permission"
	"github.com/opencode-ai/collab/pkg/types"
)

// SessionOptions turns a loaded configuration into session options.
// Instruction files are resolved relative to directory.
func SessionOptions(cfg *types.Config, directory string) (collab.Options, error) {
	opts := collab.DefaultOptions()
	if cfg == nil {
		return opts, nil
	}

	if cfg.Orchestrator != "" {
		opts.OrchestratorPersona = cfg.Orchestrator
	}
	if cfg.DefaultSubagents != nil {
		opts.DefaultSubagents = *cfg.DefaultSubagents
	}

	instructions, err := readInstructions(cfg.Instructions, directory)
	if err != nil {
		return opts, err
	}
	opts.Instructions = instructions

	opts.Policy = permission.Policy{}.With(PolicyOverride(cfg.Policy))
	if err := opts.Policy.Validate(); err != nil {
		return opts, fmt.Errorf("policy: %w", err)
	}

	templates, err := Templates(cfg.Personas)
	if err != nil {
		return opts, err
	}
	opts.Templates = templates

	if t := cfg.Timeouts; t != nil {
		opts.WaitTimeout = millis(t.WaitMs, opts.WaitTimeout)
		opts.MaxWaitTimeout = millis(t.WaitMaxMs, opts.MaxWaitTimeout)
		opts.CloseTimeout = millis(t.CloseMs, opts.CloseTimeout)
		opts.TeardownTimeout = millis(t.TeardownMs, opts.TeardownTimeout)
	}
	if l := cfg.Limits; l != nil {
		if l.MaxMessages > 0 {
			opts.MaxMessages = l.MaxMessages
		}
		if l.MaxOutputChars > 0 {
			opts.OutputLimits.MaxChars = l.MaxOutputChars
		}
		if l.MaxReasoningEvents > 0 {
			opts.OutputLimits.MaxReasoningEvents = l.MaxReasoningEvents
		}
		if l.MaxToolEvents > 0 {
			opts.OutputLimits.MaxToolEvents = l.MaxToolEvents
		}
	}
	return opts, nil
}

// PolicyOverride converts configured policy lists to a permission override.
func PolicyOverride(p *types.PolicyConfig) permission.Override {
	if p == nil {
		return permission.Override{}
	}
	return permission.Override{
		ToolAllow:    p.ToolAllowlist,
		ToolDeny:     p.ToolDenylist,
		CommandAllow: p.ShellCommandAllowlist,
		CommandDeny:  p.ShellCommandDenylist,
	}
}

// Templates merges configured personas into the default subagent templates.
// A configured persona with the name of a default one replaces its fields
// that are set; new personas follow the defaults in name order.
func Templates(personas map[string]types.PersonaConfig) ([]agent.Template, error) {
	defaults := agent.DefaultTemplates()
	index := make(map[string]int, len(defaults))
	for i, t := range defaults {
		index[strings.ToLower(t.Persona)] = i
	}

	names := make([]string, 0, len(personas))
	for name := range personas {
		names = append(names, name)
	}
	sort.Strings(names)

	disabled := make(map[string]bool)
	for _, name := range names {
		p := personas[name]
		key := strings.ToLower(name)
		if p.Disable {
			disabled[key] = true
			continue
		}

		override := PolicyOverride(p.Policy)
		if err := (permission.Policy{}).With(override).Validate(); err != nil {
			return nil, fmt.Errorf("persona %s: %w", name, err)
		}

		i, ok := index[key]
		if !ok {
			defaults = append(defaults, agent.Template{Persona: name, InitialMessage: agent.ReadyMessage(name)})
			i = len(defaults) - 1
			index[key] = i
		}
		t := &defaults[i]
		if p.Description != "" {
			t.Description = p.Description
		}
		if p.InitialMessage != "" {
			t.InitialMessage = p.InitialMessage
		}
		if p.Instructions != "" {
			t.Instructions = p.Instructions
		}
		if !override.IsZero() {
			t.Policy = override
		}
	}

	out := make([]agent.Template, 0, len(defaults))
	for _, t := range defaults {
		if !disabled[strings.ToLower(t.Persona)] {
			out = append(out, t)
		}
	}
	return out, nil
}

func readInstructions(files []string, directory string) (string, error) {
	var parts []string
	for _, f := range files {
		data, err := os.ReadFile(resolvePath(f, directory))
		if os.IsNotExist(err) {
			logging.Warn().Str("path", f).Msg("instruction file not found")
			continue
		}
		if err != nil {
			return "", fmt.Errorf("read instructions %s: %w", f, err)
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func millis(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return collab.Millis(int64(ms))
}

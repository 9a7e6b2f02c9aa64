package agent

import (
	"fmt"
	"strings"

	"github.com/opencode-ai/collab/internal/permission"
)

// Template describes a subagent that a session can spawn on start.
type Template struct {
	Persona        string `json:"persona" yaml:"persona"`
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
	InitialMessage string `json:"initialMessage" yaml:"initialMessage"`
	// Instructions are added to the subagent's instructions.
	Instructions string              `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Policy       permission.Override `json:"policy,omitempty" yaml:"policy,omitempty"`
}

// PersonaLine renders the template persona as it appears in instructions.
func (t Template) PersonaLine() string {
	if t.Description == "" {
		return t.Persona
	}
	return t.Persona + ": " + t.Description
}

// DefaultTemplates returns the Planner, Builder and Reviewer subagents.
func DefaultTemplates() []Template {
	return []Template{
		{
			Persona:        "Planner",
			Description:    "break work into steps, flag dependencies, and propose parallel splits.",
			InitialMessage: ReadyMessage("Planner"),
		},
		{
			Persona:        "Builder",
			Description:    "focus on implementation details and concrete code changes.",
			InitialMessage: ReadyMessage("Builder"),
		},
		{
			Persona:        "Reviewer",
			Description:    "focus on correctness, edge cases, and tests.",
			InitialMessage: ReadyMessage("Reviewer"),
		},
	}
}

// ReadyMessage is the first message of a subagent spawned from a template.
func ReadyMessage(persona string) string {
	return fmt.Sprintf("You are the %s subagent. Reply \"Ready\" and wait for assignments.", persona)
}

const orchestratorPrompt = `You coordinate a team of subagents in a shared group chat.
Use spawn_agent to create a subagent with a persona and a first task. Address
subagents with @persona or @short-id in send_input; a subagent only reads the
chat when a message mentions it. Use wait to block on a subagent's result,
agent_output to inspect what it is doing, and close_agent once its work is no
longer needed.`

const subagentPrompt = `You are a subagent working for an orchestrator in a shared group chat.
You only see chat messages that mention you, together with anything posted
since you were last addressed. Post short progress notes while you work and
end with one final message that states your result. Some tools and commands
may be denied by your policy; report a denial instead of retrying it.`

// OrchestratorInstructions appends the orchestrator prompt to existing.
func OrchestratorInstructions(existing string) string {
	return mergeInstructions(existing, orchestratorPrompt)
}

// SubagentInstructions appends the persona, the subagent prompt and the
// orchestrator's id to existing.
func SubagentInstructions(existing, persona, orchestratorID string) string {
	var sb strings.Builder
	if p := strings.TrimSpace(persona); p != "" {
		sb.WriteString("Persona:\n")
		sb.WriteString(p)
		sb.WriteString("\n\n")
	}
	sb.WriteString(subagentPrompt)
	sb.WriteString("\n\n")
	sb.WriteString("Orchestrator id: ")
	sb.WriteString(orchestratorID)
	return mergeInstructions(existing, sb.String())
}

func mergeInstructions(existing, addition string) string {
	addition = strings.TrimSpace(addition)
	existing = strings.TrimSpace(existing)
	switch {
	case addition == "":
		return existing
	case existing == "":
		return addition
	}
	return existing + "\n\n" + addition
}

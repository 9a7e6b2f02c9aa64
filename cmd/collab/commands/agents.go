package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/collab/internal/config"
)

var agentsCmd = &cobra.Command{
	Use:     "agents",
	Aliases: []string{"personas"},
	Short:   "List the subagent templates a session starts with",
	Long: `List the persona templates: the built-in Planner, Builder and Reviewer
merged with personas from the configuration and .collab/agents/.`,
	Args: cobra.NoArgs,
	RunE: runAgentsList,
}

func runAgentsList(cmd *cobra.Command, args []string) error {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dir)
	if err != nil {
		return err
	}
	opts, err := config.SessionOptions(cfg, dir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Orchestrator: %s\n", opts.OrchestratorPersona)
	if opts.DefaultSubagents {
		fmt.Fprintln(out, "Default subagents: spawned on start")
	} else {
		fmt.Fprintln(out, "Default subagents: off")
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PERSONA\tDESCRIPTION\tPOLICY")
	for _, t := range opts.Templates {
		policy := "inherited"
		if !t.Policy.IsZero() {
			policy = "custom"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Persona, t.Description, policy)
	}
	return w.Flush()
}

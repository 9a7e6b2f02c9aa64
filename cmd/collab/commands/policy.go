package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/collab/internal/config"
	"github.com/opencode-ai/collab/internal/permission"
)

var (
	policyKind    string
	policyPersona string
	policyJSON    bool
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect tool and shell command policies",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective policy of the orchestrator or a persona",
	Args:  cobra.NoArgs,
	RunE:  runPolicyShow,
}

var policyCheckCmd = &cobra.Command{
	Use:   "check <subject...>",
	Short: "Check whether a tool or shell command would be admitted",
	Long: `Evaluate a tool name or a shell command line against the configured
policy without running anything.

Examples:
  collab policy check --kind tool apply_patch
  collab policy check --kind command --persona Planner "git push origin main"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPolicyCheck,
}

func init() {
	policyCmd.PersistentFlags().StringVar(&policyPersona, "persona", "", "Evaluate a persona template's policy instead of the root policy")
	policyCmd.PersistentFlags().BoolVar(&policyJSON, "json", false, "Print JSON")
	policyCheckCmd.Flags().StringVar(&policyKind, "kind", string(permission.KindCommand), "Attempt kind (tool|command)")

	policyCmd.AddCommand(policyShowCmd)
	policyCmd.AddCommand(policyCheckCmd)
}

// effectivePolicy returns the root policy, narrowed by a persona template
// when one is named.
func effectivePolicy() (permission.Policy, error) {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return permission.Policy{}, err
	}
	cfg, err := loadConfig(dir)
	if err != nil {
		return permission.Policy{}, err
	}
	opts, err := config.SessionOptions(cfg, dir)
	if err != nil {
		return permission.Policy{}, err
	}
	if policyPersona == "" {
		return opts.Policy, nil
	}
	for _, t := range opts.Templates {
		if strings.EqualFold(t.Persona, policyPersona) {
			return opts.Policy.With(t.Policy), nil
		}
	}
	return permission.Policy{}, fmt.Errorf("unknown persona %q", policyPersona)
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	policy, err := effectivePolicy()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if policyJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(policy)
	}
	lists := []struct {
		name     string
		patterns []string
	}{
		{"tool_allowlist", policy.ToolAllow},
		{"tool_denylist", policy.ToolDeny},
		{"shell_command_allowlist", policy.CommandAllow},
		{"shell_command_denylist", policy.CommandDeny},
	}
	for _, l := range lists {
		if len(l.patterns) == 0 {
			fmt.Fprintf(out, "%s: (none)\n", l.name)
			continue
		}
		fmt.Fprintf(out, "%s:\n", l.name)
		for _, p := range l.patterns {
			fmt.Fprintf(out, "  %s\n", p)
		}
	}
	return nil
}

func runPolicyCheck(cmd *cobra.Command, args []string) error {
	kind := permission.Kind(strings.ToLower(policyKind))
	if kind != permission.KindTool && kind != permission.KindCommand {
		return fmt.Errorf("unknown kind %q, want tool or command", policyKind)
	}
	policy, err := effectivePolicy()
	if err != nil {
		return err
	}

	decision := policy.Evaluate(permission.Attempt{Kind: kind, Subject: strings.Join(args, " ")})
	out := cmd.OutOrStdout()
	if policyJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(decision); err != nil {
			return err
		}
	} else if decision.Admit {
		fmt.Fprintln(out, "allowed")
	} else {
		fmt.Fprintf(out, "denied: %s", decision.Reason)
		if decision.Pattern != "" {
			fmt.Fprintf(out, " %q", decision.Pattern)
		}
		if decision.Segment != "" {
			fmt.Fprintf(out, " in %q", decision.Segment)
		}
		fmt.Fprintln(out)
	}
	if !decision.Admit {
		cmd.SilenceUsage = true
		return fmt.Errorf("%s %q denied", kind, decision.Attempt.Subject)
	}
	return nil
}

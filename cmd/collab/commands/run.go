package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/collab/internal/collab"
	"github.com/opencode-ai/collab/internal/groupchat"
)

var (
	runModel      string
	runFormat     string
	runTranscript bool
)

var runCmd = &cobra.Command{
	Use:   "run [message...]",
	Short: "Run a collaboration session for one request",
	Long: `Start a session, hand the message to the orchestrator and print its
answer. The session is torn down when the orchestrator finishes.

Examples:
  collab run "Add a --verbose flag to the build script"
  collab run --model anthropic/claude-sonnet-4 "Review the last commit"
  echo "Plan the migration" | collab run --format json`,
	RunE: runSession,
}

func init() {
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model to use (provider/model format)")
	runCmd.Flags().StringVar(&runFormat, "format", "default", "Output format (default|json)")
	runCmd.Flags().BoolVar(&runTranscript, "transcript", false, "Print the group chat transcript after the answer")
}

// runResult is the JSON output of run.
type runResult struct {
	SessionID  string              `json:"sessionId"`
	Answer     string              `json:"answer"`
	Transcript []groupchat.Message `json:"transcript,omitempty"`
}

func runSession(cmd *cobra.Command, args []string) error {
	if runFormat != "default" && runFormat != "json" {
		return fmt.Errorf("unknown format %q", runFormat)
	}
	message := strings.TrimSpace(strings.Join(args, " "))
	if message == "" {
		if stat, err := os.Stdin.Stat(); err == nil && stat.Mode()&os.ModeCharDevice == 0 {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			message = strings.TrimSpace(string(data))
		}
	}
	if message == "" {
		return fmt.Errorf("message required. Usage: collab run \"your message\"")
	}

	dir, err := GetWorkDir(workDir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, dir, runModel)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var onEvent func(collab.TaskEvent)
	if runFormat == "default" {
		onEvent = func(ev collab.TaskEvent) {
			if ev.Kind == collab.EventDelta {
				fmt.Fprint(out, ev.Text)
			}
		}
	}

	answer, runErr := a.runner.Orchestrate(ctx, a.session, message, onEvent)

	teardownCtx, cancel := context.WithTimeout(context.Background(), a.session.Options().TeardownTimeout+5*time.Second)
	defer cancel()
	transcript, err := a.session.Teardown(teardownCtx)
	if err != nil {
		transcript = nil
	}
	if cerr := a.bus.Close(); cerr != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), cerr)
	}
	if runErr != nil {
		return runErr
	}

	if runFormat == "json" {
		res := runResult{SessionID: a.session.ID(), Answer: answer}
		if runTranscript {
			res.Transcript = transcript
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintln(out)
	if runTranscript {
		fmt.Fprintln(out)
		printTranscript(out, transcript)
	}
	return nil
}

func printTranscript(w io.Writer, msgs []groupchat.Message) {
	for _, m := range msgs {
		author := m.AuthorPersona
		if author == "" {
			author = m.Author
		}
		fmt.Fprintf(w, "#%d %s [%s] %s\n", m.Seq, author, m.Visibility, m.Body)
	}
}

package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/opencode-ai/collab/internal/permission"
)

const (
	DefaultShellTimeout = 120 * time.Second
	MaxShellTimeout     = 10 * time.Minute
	MaxOutputLength     = 30000
	SigkillTimeout      = 200 * time.Millisecond
)

// ShellToolID is the name shell command policies apply to.
const ShellToolID = "shell"

const shellDescription = `Executes a shell command.

Usage:
- Command is required
- Optional timeout in milliseconds (max 600000)
- Output is captured from stdout and stderr
- Commands are checked against your shell command policy before they run`

// ShellTool runs shell commands in the working directory.
type ShellTool struct {
	workDir string
	shell   string
}

var _ CommandTool = (*ShellTool)(nil)

// ShellInput represents the input for the shell tool.
type ShellInput struct {
	Command     string `json:"command"`
	Timeout     int    `json:"timeout,omitempty"` // milliseconds
	Description string `json:"description,omitempty"`
}

// NewShellTool creates a new shell tool.
func NewShellTool(workDir string) *ShellTool {
	return &ShellTool{
		workDir: workDir,
		shell:   detectShell(),
	}
}

func detectShell() string {
	if s := os.Getenv("SHELL"); s != "" {
		// Exclude unsupported shells
		if s != "/bin/fish" && s != "/usr/bin/fish" &&
			s != "/bin/nu" && s != "/usr/bin/nu" {
			return s
		}
	}

	if runtime.GOOS == "darwin" {
		return "/bin/zsh"
	}
	if bash, err := exec.LookPath("bash"); err == nil {
		return bash
	}
	return "/bin/sh"
}

func (t *ShellTool) ID() string          { return ShellToolID }
func (t *ShellTool) Description() string { return shellDescription }

func (t *ShellTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"type": "string",
				"description": "The command to execute"
			},
			"timeout": {
				"type": "integer",
				"description": "Optional timeout in milliseconds (max 600000)"
			},
			"description": {
				"type": "string",
				"description": "Brief description of what this command does"
			}
		},
		"required": ["command"]
	}`)
}

// Command returns the command a call would run after checking that it parses.
func (t *ShellTool) Command(input json.RawMessage) (string, error) {
	var params ShellInput
	if err := json.Unmarshal(input, &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if params.Command == "" {
		return "", fmt.Errorf("command is required")
	}
	if _, err := permission.ParseCommand(params.Command); err != nil {
		return "", err
	}
	return params.Command, nil
}

func (t *ShellTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params ShellInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Command == "" {
		return nil, fmt.Errorf("command is required")
	}

	timeout := DefaultShellTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Millisecond
		if timeout > MaxShellTimeout {
			timeout = MaxShellTimeout
		}
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, t.shell, "-c", params.Command)
	if toolCtx != nil && toolCtx.WorkDir != "" {
		cmd.Dir = toolCtx.WorkDir
	} else if t.workDir != "" {
		cmd.Dir = t.workDir
	}
	cmd.Env = os.Environ()

	// Own process group so the whole pipeline is signalled on cancel.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = SigkillTimeout

	toolCtx.SetMetadata(params.Description, map[string]any{
		"command":     params.Command,
		"description": params.Description,
	})

	output, err := cmd.CombinedOutput()
	timedOut := cmdCtx.Err() == context.DeadlineExceeded

	result := string(output)
	if len(result) > MaxOutputLength {
		result = result[:MaxOutputLength] + "\n\n(Output truncated)"
	}
	if timedOut {
		result += fmt.Sprintf("\n\n(Command timed out after %v)", timeout)
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil && !timedOut {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			result += fmt.Sprintf("\n\nError: %v", err)
		}
	}

	title := params.Description
	if title == "" {
		title = params.Command
	}

	return &Result{
		Title:  title,
		Output: result,
		Metadata: map[string]any{
			"exit":        exitCode,
			"description": params.Description,
		},
	}, nil
}

func (t *ShellTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}

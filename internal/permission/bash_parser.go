package permission

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Command is one simple command found in a shell command line.
type Command struct {
	Name string
	Args []string
}

// String renders the command the way command patterns are written: the name
// and its words separated by single spaces.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// ParseCommand splits a shell command line into its simple commands,
// including those nested in pipelines, lists, subshells and command
// substitutions.
func ParseCommand(command string) ([]Command, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}

	var commands []Command
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd, ok := extractCommand(call); ok {
				commands = append(commands, cmd)
			}
		}
		return true
	})

	return commands, nil
}

func extractCommand(call *syntax.CallExpr) (Command, bool) {
	if len(call.Args) == 0 {
		return Command{}, false
	}

	name := wordToString(call.Args[0])
	if name == "" {
		return Command{}, false
	}

	cmd := Command{Name: name}
	for _, arg := range call.Args[1:] {
		cmd.Args = append(cmd.Args, wordToString(arg))
	}
	return cmd, true
}

func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				switch q := qp.(type) {
				case *syntax.Lit:
					sb.WriteString(q.Value)
				case *syntax.ParamExp:
					sb.WriteString("$" + q.Param.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			// The substituted commands are visited as their own CallExprs.
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

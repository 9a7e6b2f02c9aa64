// Package main provides the entry point for the collab CLI.
package main

import (
	"fmt"
	"os"

	"github.com/opencode-ai/collab/cmd/collab/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Package main provides the entry point for the agentmux-chat CLI.
package main

import (
	"fmt"
	"os"

	"github.com/agentmux/agentmux/cmd/agentmux-chat/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentmux/agentmux/pkg/agentmux"
	"github.com/agentmux/agentmux/pkg/types"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation with the agentmux runtime.

Type a message and press enter; Ctrl-C aborts the current turn, and a
second Ctrl-C (or /quit) ends the conversation.

Examples:
  agentmux-chat chat
  agentmux-chat chat --model m1
  agentmux-chat chat --url localhost:8923`,
	RunE: runChat,
}

var (
	assistantColor = color.New(color.FgCyan)
	errorColor     = color.New(color.FgRed)
	infoColor      = color.New(color.FgHiBlack)
)

func runChat(cmd *cobra.Command, args []string) error {
	client, cfg, err := newClient()
	if err != nil {
		return err
	}
	defer client.Stop()

	ctx := context.Background()

	session, err := client.CreateSession(ctx, &agentmux.SessionConfig{Model: cfg.Model})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Destroy(ctx)

	done := make(chan struct{})
	unsubscribe := session.On(func(ev types.SessionEvent) {
		switch ev.Type {
		case types.EventAssistantMessage:
			assistantColor.Println(ev.Content())
		case types.EventSessionError:
			errorColor.Printf("error: %s\n", ev.ErrMessage())
		case types.EventSessionIdle:
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	// Ctrl-C during a turn aborts the turn, not the program.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	infoColor.Printf("session %s ready\n", session.ID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		if prompt == "/quit" || prompt == "/exit" {
			return nil
		}

		if _, err := session.Send(ctx, agentmux.Message{Prompt: prompt}); err != nil {
			return fmt.Errorf("send failed: %w", err)
		}

		select {
		case <-done:
		case <-interrupts:
			infoColor.Println("aborting turn")
			if err := session.Abort(ctx); err != nil {
				errorColor.Printf("abort failed: %v\n", err)
			}
		}
	}
}

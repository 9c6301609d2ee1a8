// Package commands provides the CLI commands for agentmux-chat, a small
// terminal client built on the agentmux SDK.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentmux/agentmux/internal/logging"
	"github.com/agentmux/agentmux/pkg/agentmux"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	flagBin      string
	flagURL      string
	flagModel    string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "agentmux-chat",
	Short: "agentmux-chat - terminal client for the agentmux runtime",
	Long: `agentmux-chat drives an agentmux runtime from the terminal.

Run 'agentmux-chat chat' for an interactive conversation, or
'agentmux-chat models' to list the models the runtime offers.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBin, "bin", "", "Path to the agentmux runtime binary")
	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "Attach to a running runtime instead of spawning one")
	rootCmd.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "Model to use")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug|info|warn|error)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("agentmux-chat %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(modelsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newClient builds a client from the resolved configuration.
func newClient() (*agentmux.Client, *Config, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	logging.Init(logging.Config{Level: logging.ParseLevel(cfg.LogLevel), Pretty: true})

	client, err := agentmux.New(&agentmux.Options{
		BinPath:  cfg.Bin,
		URL:      cfg.URL,
		LogLevel: cfg.LogLevel,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

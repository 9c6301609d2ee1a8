package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var modelsVerbose bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available models",
	Long: `List the models the agentmux runtime offers.

Examples:
  agentmux-chat models
  agentmux-chat models --verbose    # Show billing information`,
	RunE: runModels,
}

func init() {
	modelsCmd.Flags().BoolVarP(&modelsVerbose, "verbose", "v", false, "Include billing information")
}

func runModels(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}
	defer client.Stop()

	models, err := client.ListModels(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	if modelsVerbose {
		fmt.Fprintln(w, "ID\tNAME\tCONTEXT\tPREMIUM\tMULTIPLIER\t")
	} else {
		fmt.Fprintln(w, "ID\tNAME\tCONTEXT\tFEATURES\t")
	}

	for _, model := range models {
		contextK := model.Capabilities.Limits.MaxContextWindowTokens / 1000

		if modelsVerbose {
			premium := "no"
			multiplier := 0.0
			if model.Billing != nil {
				if model.Billing.IsPremium {
					premium = "yes"
				}
				multiplier = model.Billing.Multiplier
			}
			fmt.Fprintf(w, "%s\t%s\t%dk\t%s\t%.1fx\t\n",
				model.ID, model.Name, contextK, premium, multiplier)
			continue
		}

		features := ""
		if model.Capabilities.Supports.Vision {
			features += "vision "
		}
		if model.Capabilities.Supports.ReasoningEffort {
			features += "reasoning "
		}
		fmt.Fprintf(w, "%s\t%s\t%dk\t%s\t\n", model.ID, model.Name, contextK, features)
	}

	return w.Flush()
}

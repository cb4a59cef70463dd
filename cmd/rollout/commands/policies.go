package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openrollout/openrollout/pkg/policy"
)

func newPoliciesCommand() *cobra.Command {
	var policyDir string

	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List the active deployment policies",
		Example: `  # List built-in policies
  rollout policies

  # Include policies from a directory
  rollout policies --policy-dir ./policies`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := policy.NewEngine(log.Logger)
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			if policyDir != "" {
				if err := engine.LoadPolicies(cmd.Context(), []string{policyDir}); err != nil {
					return &ExitError{Code: 2, Message: err.Error()}
				}
			}

			policies := engine.ListPolicies()
			if jsonOutput {
				return printJSON(policies)
			}
			for _, p := range policies {
				state := "enabled"
				if !p.Enabled {
					state = "disabled"
				}
				fmt.Printf("%-20s %-8s %-8s %s\n", p.Name, p.Severity, state, p.Description)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&policyDir, "policy-dir", "", "directory with additional Rego policies")

	return cmd
}

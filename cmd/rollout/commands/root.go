// Package commands implements the rollout CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	kubeContext string
	dbPath      string
	verbose     bool
	jsonOutput  bool
)

// ExitError carries an explicit process exit code out of command execution.
// Code 1 means a failed verdict or deployment; code 2 means the tool itself
// misbehaved (crashed check, unusable configuration).
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return e.Message
}

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rollout",
		Short: "openrollout - deployment orchestration and verification",
		Long: `openrollout applies ordered infrastructure stacks to a control plane,
confirms readiness under per-kind timeout budgets, and verifies the
deployed environment with a weighted check suite.

Features:
  - Ordered stack application with continue-on-failure semantics
  - Readiness polling with per-kind timeout budgets
  - Rego policy gate before anything is applied
  - Post-deployment verification with weighted findings
  - Queryable deployment history across runs`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&kubeContext, "context", "", "kubeconfig context to target")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "history database path (disabled when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newDeployCommand())
	rootCmd.AddCommand(newVerifyCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newPoliciesCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}

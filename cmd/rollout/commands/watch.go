package commands

import (
	"context"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openrollout/openrollout/pkg/manifest"
	"github.com/openrollout/openrollout/pkg/policy"
)

func newWatchCommand() *cobra.Command {
	var policyDir string

	cmd := &cobra.Command{
		Use:   "watch <stack-dir>",
		Short: "Watch a stack directory and revalidate on change",
		Long: `Watch the stack manifests (and optionally a policy directory) and
re-run loading, validation, and the policy gate whenever a file changes.
Nothing is applied to the control plane.`,
		Example: `  # Revalidate the stack on every edit
  rollout watch ./stack

  # Also reload policies on change
  rollout watch ./stack --policy-dir ./policies`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			stackDir := args[0]

			policyEngine, err := policy.NewEngine(log.Logger)
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			if policyDir != "" {
				if err := policyEngine.LoadPolicies(ctx, []string{policyDir}); err != nil {
					return &ExitError{Code: 2, Message: err.Error()}
				}

				loader := policy.NewLoader(log.Logger)
				err := loader.Watch(ctx, []string{policyDir}, func(policies []policy.Policy) error {
					if err := policyEngine.ReplacePolicies(policies); err != nil {
						return err
					}
					revalidate(ctx, policyEngine, stackDir)
					return nil
				})
				if err != nil {
					return &ExitError{Code: 2, Message: err.Error()}
				}
				defer loader.StopWatching()
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			defer watcher.Close()
			if err := watcher.Add(stackDir); err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}

			// Validate once up front so the first report does not wait for
			// an edit.
			revalidate(ctx, policyEngine, stackDir)
			log.Info().Str("stack", stackDir).Msg("Watching for changes")

			var debounce *time.Timer
			for {
				select {
				case <-ctx.Done():
					return nil

				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
						continue
					}
					if !strings.HasSuffix(event.Name, ".yaml") && !strings.HasSuffix(event.Name, ".yml") {
						continue
					}
					if debounce != nil {
						debounce.Stop()
					}
					debounce = time.AfterFunc(500*time.Millisecond, func() {
						revalidate(ctx, policyEngine, stackDir)
					})

				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.Error().Err(err).Msg("Watcher error")
				}
			}
		},
	}

	cmd.Flags().StringVar(&policyDir, "policy-dir", "", "directory with additional Rego policies")

	return cmd
}

// revalidate loads the stack and runs the policy gate, logging the result.
func revalidate(ctx context.Context, policyEngine *policy.Engine, stackDir string) {
	descriptors, err := manifest.NewLoader(
		manifest.WithLoaderLogger(log.Logger),
	).Load(stackDir)
	if err != nil {
		log.Error().Err(err).Msg("Stack validation failed")
		return
	}

	result, err := policyEngine.Evaluate(ctx, descriptors)
	if err != nil {
		log.Error().Err(err).Msg("Policy evaluation failed")
		return
	}
	for _, v := range result.Violations {
		log.Warn().
			Str("policy", v.Policy).
			Str("resource", v.Resource).
			Str("severity", string(v.Severity)).
			Msg(v.Message)
	}

	logEvent := log.Info()
	if !result.Allowed {
		logEvent = log.Warn()
	}
	logEvent.
		Int("resources", len(descriptors)).
		Int("violations", len(result.Violations)).
		Bool("allowed", result.Allowed).
		Msg("Stack validated")
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openrollout/openrollout/pkg/controlplane"
	"github.com/openrollout/openrollout/pkg/engine"
	"github.com/openrollout/openrollout/pkg/manifest"
	"github.com/openrollout/openrollout/pkg/policy"
	"github.com/openrollout/openrollout/pkg/stores"
	"github.com/openrollout/openrollout/pkg/telemetry"
)

func newDeployCommand() *cobra.Command {
	var (
		pollInterval   time.Duration
		defaultTimeout time.Duration
		skipPolicy     bool
		policyDir      string
		outputFile     string
		metricsAddr    string
		traceExporter  string
		traceEndpoint  string
	)

	cmd := &cobra.Command{
		Use:   "deploy <stack-dir>",
		Short: "Apply an ordered resource stack and confirm readiness",
		Long: `Apply every manifest in the stack directory in sequence order.

This command:
  - Loads and validates the stack manifests
  - Evaluates Rego policies before anything is applied
  - Applies each descriptor, continuing past individual failures
  - Polls monitorable resources until ready or their budget expires
  - Records issues and successes in the history database`,
		Example: `  # Deploy a stack with history recording
  rollout deploy ./stack --db rollout.db

  # Deploy against a specific kube context
  rollout deploy ./stack --context prod-admin

  # Write the run result as JSON
  rollout deploy ./stack --output run.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			stackDir := args[0]

			descriptors, err := manifest.NewLoader(
				manifest.WithLoaderLogger(log.Logger),
			).Load(stackDir)
			if err != nil {
				return &ExitError{Code: 2, Message: fmt.Sprintf("failed to load stack: %v", err)}
			}
			log.Info().Int("resources", len(descriptors)).Str("stack", stackDir).Msg("Stack loaded")

			if !skipPolicy {
				if err := gateStack(ctx, descriptors, policyDir); err != nil {
					return err
				}
			}

			sink, closeSink, err := openSink(ctx)
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			defer closeSink()

			metrics, err := setupMetrics(metricsAddr)
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}

			tracer, err := setupTracer(traceExporter, traceEndpoint)
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tracer.Shutdown(shutdownCtx)
			}()

			client := controlplane.NewKubectlClient(controlplane.Options{
				Context: kubeContext,
				Logger:  log.Logger,
			})

			timeouts := engine.DefaultTimeoutPolicy()
			if defaultTimeout > 0 {
				timeouts.Default = defaultTimeout
			}

			poller := engine.NewPoller(client,
				engine.WithPollInterval(pollInterval),
				engine.WithPollLogger(log.Logger),
			)

			orch := engine.NewOrchestrator(client,
				engine.WithSink(sink),
				engine.WithPoller(poller),
				engine.WithTimeoutPolicy(timeouts),
				engine.WithLogger(log.Logger),
			)

			metrics.RecordRunStarted()
			runCtx, span := tracer.StartRunSpan(ctx, stackDir)
			run := orch.Run(runCtx, descriptors)
			if run.Success {
				telemetry.RecordOK(span)
			}
			span.End()

			recordRunMetrics(metrics, run)
			saveRun(ctx, sink, run)

			if err := writeRunResult(run, outputFile); err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}

			summary := run.Summary()
			log.Info().
				Str("status", string(run.Status())).
				Int("deployed", summary.Deployed).
				Int("failed", summary.Failed).
				Int("not_ready", summary.NotReady).
				Msg("Deployment run finished")

			if !run.Success {
				return &ExitError{Code: 1, Message: "one or more resources failed to deploy"}
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&pollInterval, "poll-interval", engine.DefaultPollInterval, "delay between readiness queries")
	cmd.Flags().DurationVar(&defaultTimeout, "default-timeout", 0, "override the default readiness budget")
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "skip the policy gate")
	cmd.Flags().StringVar(&policyDir, "policy-dir", "", "directory with additional Rego policies")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "write the run result JSON to this file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address")
	cmd.Flags().StringVar(&traceExporter, "trace-exporter", "", "trace exporter (otlp, stdout)")
	cmd.Flags().StringVar(&traceEndpoint, "trace-endpoint", "", "OTLP trace endpoint")

	return cmd
}

// gateStack evaluates the stack against loaded policies and blocks on
// error-severity violations.
func gateStack(ctx context.Context, descriptors []engine.Descriptor, policyDir string) error {
	policyEngine, err := policy.NewEngine(log.Logger)
	if err != nil {
		return &ExitError{Code: 2, Message: fmt.Sprintf("failed to initialize policy engine: %v", err)}
	}
	if policyDir != "" {
		if err := policyEngine.LoadPolicies(ctx, []string{policyDir}); err != nil {
			return &ExitError{Code: 2, Message: fmt.Sprintf("failed to load policies: %v", err)}
		}
	}

	result, err := policyEngine.Evaluate(ctx, descriptors)
	if err != nil {
		return &ExitError{Code: 2, Message: fmt.Sprintf("policy evaluation failed: %v", err)}
	}
	for _, v := range result.Violations {
		log.Warn().
			Str("policy", v.Policy).
			Str("resource", v.Resource).
			Str("severity", string(v.Severity)).
			Msg(v.Message)
	}
	if !result.Allowed {
		return &ExitError{Code: 1, Message: "stack blocked by policy violations"}
	}
	return nil
}

// openSink opens the history store when a database path is configured.
func openSink(ctx context.Context) (engine.Sink, func(), error) {
	if dbPath == "" {
		return engine.NopSink{}, func() {}, nil
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create history store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to open history store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to migrate history store: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

func setupMetrics(addr string) (*telemetry.Metrics, error) {
	cfg := telemetry.DefaultConfig().Metrics
	if addr != "" {
		cfg.Enabled = true
		cfg.ListenAddress = addr
	}
	metrics, err := telemetry.NewMetrics(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	if cfg.Enabled {
		if err := metrics.StartMetricsServer(); err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
	}
	return metrics, nil
}

func setupTracer(exporter, endpoint string) (*telemetry.Tracer, error) {
	cfg := telemetry.DefaultConfig().Tracing
	if exporter != "" {
		cfg.Enabled = true
		cfg.Exporter = exporter
		cfg.Endpoint = endpoint
	}
	tracer, err := telemetry.NewTracer(cfg, "openrollout", "dev", "cli")
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	return tracer, nil
}

func recordRunMetrics(metrics *telemetry.Metrics, run *engine.RunResult) {
	metrics.RecordRunCompleted(string(run.Status()), run.CompletedAt.Sub(run.StartedAt))
	for _, apply := range run.Applies {
		status := "deployed"
		if !apply.Deployed {
			status = "failed"
		}
		metrics.RecordApply(apply.Resource.Kind, status, time.Duration(apply.DurationSeconds*float64(time.Second)))
		if apply.ErrorClass != "" {
			metrics.RecordError(string(apply.ErrorClass), apply.ErrorCode)
		}
	}
	for _, res := range run.Results {
		metrics.SetResourceReady(res.Resource.ID(), res.Resource.Kind, res.Monitored)
		if res.Queries > 0 {
			metrics.RecordStatusQueries(res.Resource.Kind, res.Queries)
			metrics.RecordPoll(res.Resource.Kind, pollOutcome(res), time.Duration(res.PollSeconds*float64(time.Second)))
		}
	}
}

func pollOutcome(res engine.DeploymentResult) string {
	switch {
	case res.Confidence == engine.ConfidenceOptimistic:
		return "optimistic"
	case res.Monitored:
		return "ready"
	default:
		return "not_ready"
	}
}

// saveRun persists the full run when the sink is a history store.
func saveRun(ctx context.Context, sink engine.Sink, run *engine.RunResult) {
	store, ok := sink.(*stores.SQLiteStore)
	if !ok {
		return
	}
	if err := store.SaveRun(ctx, run); err != nil {
		log.Warn().Err(err).Msg("Failed to persist run record")
	}
}

func writeRunResult(run *engine.RunResult, outputFile string) error {
	if outputFile == "" && !jsonOutput {
		return nil
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run result: %w", err)
	}
	data = append(data, '\n')

	if outputFile != "" {
		if err := os.WriteFile(outputFile, data, 0o644); err != nil {
			return fmt.Errorf("failed to write run result: %w", err)
		}
	}
	if jsonOutput {
		_, _ = os.Stdout.Write(data)
	}
	return nil
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Orchestrator walks an ordered resource stack, applies each descriptor, and
// decides which require readiness polling. Individual failures never abort
// the sequence: later resources may be independently useful even when an
// earlier one failed.
type Orchestrator struct {
	client   ControlPlane
	sink     Sink
	poller   *Poller
	timeouts TimeoutPolicy
	logger   zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSink sets the telemetry sink. Sink failures are logged and swallowed.
func WithSink(sink Sink) Option {
	return func(o *Orchestrator) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// WithPoller replaces the default readiness poller.
func WithPoller(p *Poller) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.poller = p
		}
	}
}

// WithTimeoutPolicy replaces the default per-kind timeout budgets.
func WithTimeoutPolicy(policy TimeoutPolicy) Option {
	return func(o *Orchestrator) { o.timeouts = policy }
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// NewOrchestrator creates an orchestrator for the given control plane.
func NewOrchestrator(client ControlPlane, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:   client,
		sink:     NopSink{},
		timeouts: DefaultTimeoutPolicy(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.poller == nil {
		o.poller = NewPoller(client, WithPollLogger(o.logger))
	}
	return o
}

// Run applies the stack strictly in sequence order and returns the
// accumulated result log. The log contains exactly one entry per input
// descriptor, in input order. Run never returns an error for per-resource
// failures; its completion is guaranteed short of process termination.
func (o *Orchestrator) Run(ctx context.Context, resources []Descriptor) *RunResult {
	run := &RunResult{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		Applies:   make([]ApplyResult, 0, len(resources)),
		Results:   make([]DeploymentResult, 0, len(resources)),
	}

	logger := o.logger.With().Str("run_id", run.ID).Logger()
	logger.Info().Int("resources", len(resources)).Msg("Starting deployment run")

	for _, d := range resources {
		apply, result := o.deployOne(ctx, logger, d)
		run.Applies = append(run.Applies, apply)
		run.Results = append(run.Results, result)
	}

	run.CompletedAt = time.Now()
	run.Success = true
	for _, r := range run.Results {
		if !r.Deployed {
			run.Success = false
			break
		}
	}

	summary := run.Summary()
	logger.Info().
		Int("total", summary.Total).
		Int("deployed", summary.Deployed).
		Int("failed", summary.Failed).
		Bool("success", run.Success).
		Msg("Deployment run completed")

	o.recordRunSummary(ctx, logger, run)

	return run
}

// deployOne applies a single descriptor and, when required, confirms its
// readiness. Any panic inside the step is caught at the step boundary and
// recorded as a failed result so the remaining sequence still runs.
func (o *Orchestrator) deployOne(ctx context.Context, logger zerolog.Logger, d Descriptor) (apply ApplyResult, result DeploymentResult) {
	defer func() {
		if r := recover(); r != nil {
			text := fmt.Sprintf("panic: %v", r)
			logger.Error().Str("resource", d.ID()).Str("panic", text).Msg("Unhandled fault in deployment step")
			apply = ApplyResult{Resource: d, Deployed: false, ErrorText: text, ErrorClass: ErrorClassPermanent, ErrorCode: ErrCodePanic}
			result = DeploymentResult{Resource: d, Deployed: false, Monitored: false, Confidence: ConfidenceNone, Message: text}
			o.recordIssue(ctx, logger, d.Kind, Issue{
				Description: fmt.Sprintf("%s deployment step panicked", d.Kind),
				ErrorOutput: text,
				Context:     fmt.Sprintf("sequence position %d", d.SequencePosition),
			})
		}
	}()

	logger.Info().
		Str("resource", d.ID()).
		Int("position", d.SequencePosition).
		Msg("Applying resource")

	o.consultHistory(ctx, logger, d)

	start := time.Now()
	err := o.client.Apply(ctx, &d)
	duration := time.Since(start).Seconds()

	if err != nil {
		logger.Error().Err(err).Str("resource", d.ID()).Msg("Apply failed, continuing with remaining resources")
		apply = ApplyResult{Resource: d, Deployed: false, ErrorText: err.Error(), DurationSeconds: duration}
		var derr *DeployError
		if errors.As(err, &derr) {
			apply.ErrorClass = derr.Class
			apply.ErrorCode = derr.Code
		}
		o.recordIssue(ctx, logger, d.Kind, Issue{
			Description:    fmt.Sprintf("%s deployment failed", d.Kind),
			Symptoms:       []string{"control plane rejected descriptor"},
			ErrorOutput:    err.Error(),
			ResolutionHint: "check descriptor syntax and CRD availability",
			Context:        fmt.Sprintf("sequence position %d (%s)", d.SequencePosition, d.SourceFile),
		})
		result = DeploymentResult{Resource: d, Deployed: false, Monitored: false, Confidence: ConfidenceNone, Message: err.Error()}
		return apply, result
	}

	apply = ApplyResult{Resource: d, Deployed: true, DurationSeconds: duration}

	// Record the success pattern synchronously, before and regardless of
	// any monitoring outcome.
	o.recordSuccess(ctx, logger, d.Kind, Success{
		DurationSeconds: duration,
		ConfigSummary:   fmt.Sprintf("standard %s configuration", d.Kind),
		Dependencies:    []string{"previous resources in sequence"},
	})

	if !d.Monitorable {
		logger.Info().Str("resource", d.ID()).Msg("Applied, no monitoring needed")
		result = DeploymentResult{Resource: d, Deployed: true, Monitored: true, Confidence: ConfidenceConfirmed}
		return apply, result
	}

	budget := o.timeouts.Resolve(d.Kind)
	logger.Info().
		Str("resource", d.ID()).
		Dur("budget", budget).
		Msg("Monitoring readiness")

	poll := o.poller.Poll(ctx, d, budget)
	result = DeploymentResult{
		Resource:    d,
		Deployed:    true,
		Monitored:   poll.Ready,
		Confidence:  poll.Confidence,
		Message:     poll.Message,
		Queries:     poll.Queries,
		PollSeconds: poll.Elapsed.Seconds(),
	}

	if poll.Ready {
		if poll.Confidence == ConfidenceConfirmed {
			o.recordSuccess(ctx, logger, d.Kind+"-timing", Success{
				DurationSeconds: poll.Elapsed.Seconds(),
				ConfigSummary:   fmt.Sprintf("provisioning completed in %ds", int(poll.Elapsed.Seconds())),
			})
		}
		return apply, result
	}

	o.recordIssue(ctx, logger, d.Kind+"-timeout", Issue{
		Description: fmt.Sprintf("%s provisioning did not confirm readiness", d.Kind),
		Symptoms:    []string{fmt.Sprintf("not ready after %s", budget)},
		ErrorOutput: poll.Message,
		Context:     "may need a longer budget or upstream capacity",
	})
	return apply, result
}

// consultHistory asks the sink for prior issues with this kind. The answer
// is advisory only: it is logged as a hint and never changes the run.
func (o *Orchestrator) consultHistory(ctx context.Context, logger zerolog.Logger, d Descriptor) {
	entries, err := o.sink.Query(ctx, fmt.Sprintf("%s issues", d.Kind))
	if err != nil {
		logger.Debug().Err(err).Msg("History query failed")
		return
	}
	if len(entries) > 0 {
		logger.Warn().
			Str("resource", d.ID()).
			Int("prior_issues", len(entries)).
			Msg("Previous issues recorded for this kind")
	}
}

func (o *Orchestrator) recordIssue(ctx context.Context, logger zerolog.Logger, resourceType string, issue Issue) {
	if err := o.sink.RecordIssue(ctx, resourceType, issue); err != nil {
		logger.Warn().Err(err).Str("resource_type", resourceType).Msg("Failed to record issue observation")
	}
}

func (o *Orchestrator) recordSuccess(ctx context.Context, logger zerolog.Logger, resourceType string, success Success) {
	if err := o.sink.RecordSuccess(ctx, resourceType, success); err != nil {
		logger.Warn().Err(err).Str("resource_type", resourceType).Msg("Failed to record success observation")
	}
}

func (o *Orchestrator) recordRunSummary(ctx context.Context, logger zerolog.Logger, run *RunResult) {
	summary := run.Summary()
	o.recordSuccess(ctx, logger, "deployment-summary", Success{
		DurationSeconds: run.CompletedAt.Sub(run.StartedAt).Seconds(),
		ConfigSummary:   fmt.Sprintf("%d/%d resources deployed", summary.Deployed, summary.Total),
	})
}

package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Runner executes checks sequentially and shields the caller from check
// panics. A panicked check is recorded as failed with Panicked set; the
// remaining checks still run.
type Runner struct {
	logger zerolog.Logger
}

// NewRunner creates a check runner.
func NewRunner(logger zerolog.Logger) *Runner {
	return &Runner{logger: logger.With().Str("component", "check-runner").Logger()}
}

// RunAll executes every check in order and returns one outcome per check.
func (r *Runner) RunAll(ctx context.Context, checks []Check) []Outcome {
	outcomes := make([]Outcome, 0, len(checks))
	for _, check := range checks {
		outcome := r.runOne(ctx, check)
		level := zerolog.InfoLevel
		if !outcome.Passed {
			level = zerolog.WarnLevel
		}
		r.logger.WithLevel(level).
			Str("check", outcome.Name).
			Bool("passed", outcome.Passed).
			Dur("duration", outcome.Duration).
			Str("details", outcome.Details).
			Msg("Check completed")
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// runOne executes a single check with panic recovery.
func (r *Runner) runOne(ctx context.Context, check Check) (outcome Outcome) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("check", check.Name).
				Str("panic", fmt.Sprintf("%v", rec)).
				Msg("Check panicked")
			outcome = Outcome{
				Name:     check.Name,
				Passed:   false,
				Panicked: true,
				Details:  fmt.Sprintf("panic: %v", rec),
				Duration: time.Since(start),
			}
		}
	}()

	outcome = check.Run(ctx)
	outcome.Duration = time.Since(start)
	return outcome
}

// AnyPanicked reports whether any outcome was produced by a recovered
// panic.
func AnyPanicked(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if o.Panicked {
			return true
		}
	}
	return false
}

// CollectFindings flattens the findings from all outcomes, in check order.
func CollectFindings(outcomes []Outcome) []Finding {
	var findings []Finding
	for _, o := range outcomes {
		findings = append(findings, o.Findings...)
	}
	return findings
}

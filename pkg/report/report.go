// Package report aggregates check outcomes into an overall verdict and
// renders the machine-readable run report.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/openrollout/openrollout/pkg/checks"
)

// Verdict is the aggregated result of a check suite.
type Verdict struct {
	// Passed is the number of passing checks.
	Passed int `json:"passed"`

	// Total is the number of checks executed.
	Total int `json:"total"`

	// Overall is the aggregated pass/fail decision.
	Overall bool `json:"overall"`

	// PassRate is Passed/Total, or 0 when no checks ran.
	PassRate float64 `json:"pass_rate"`

	// RiskScore is the summed weight of all findings.
	RiskScore int `json:"risk_score"`

	// RiskLevel buckets the risk score.
	RiskLevel checks.RiskLevel `json:"risk_level"`
}

// Policy decides the overall verdict from individual outcomes and findings.
type Policy interface {
	// Decide returns the aggregated pass/fail decision. An empty outcome
	// set never passes.
	Decide(outcomes []checks.Outcome, findings []checks.Finding) bool
}

// Unanimous passes only when every check passed.
type Unanimous struct{}

// Decide implements Policy.
func (Unanimous) Decide(outcomes []checks.Outcome, _ []checks.Finding) bool {
	if len(outcomes) == 0 {
		return false
	}
	for _, o := range outcomes {
		if !o.Passed {
			return false
		}
	}
	return true
}

// ThresholdWithVeto passes when the pass rate meets Fraction and no finding
// at or above the Veto severity exists. The veto applies regardless of how
// high the pass rate is.
type ThresholdWithVeto struct {
	// Fraction is the minimum pass rate, in [0, 1].
	Fraction float64

	// Veto is the severity that unconditionally fails the verdict.
	Veto checks.Severity
}

// DefaultThresholdPolicy returns the standard 80% threshold with a critical
// veto.
func DefaultThresholdPolicy() ThresholdWithVeto {
	return ThresholdWithVeto{Fraction: 0.8, Veto: checks.SeverityCritical}
}

// Decide implements Policy.
func (p ThresholdWithVeto) Decide(outcomes []checks.Outcome, findings []checks.Finding) bool {
	if len(outcomes) == 0 {
		return false
	}
	for _, f := range findings {
		if f.Severity.Weight() >= p.Veto.Weight() {
			return false
		}
	}

	passed := 0
	for _, o := range outcomes {
		if o.Passed {
			passed++
		}
	}
	return float64(passed)/float64(len(outcomes)) >= p.Fraction
}

// Aggregate reduces outcomes and findings into a verdict under the given
// policy.
func Aggregate(outcomes []checks.Outcome, findings []checks.Finding, policy Policy) Verdict {
	passed := 0
	for _, o := range outcomes {
		if o.Passed {
			passed++
		}
	}

	rate := 0.0
	if len(outcomes) > 0 {
		rate = float64(passed) / float64(len(outcomes))
	}

	score := checks.RiskScore(findings)
	return Verdict{
		Passed:    passed,
		Total:     len(outcomes),
		Overall:   policy.Decide(outcomes, findings),
		PassRate:  rate,
		RiskScore: score,
		RiskLevel: checks.RiskLevelFor(score),
	}
}

// Metadata describes the run that produced a report.
type Metadata struct {
	// GeneratedAt is when the report was written.
	GeneratedAt time.Time `json:"generated_at"`

	// Target describes the verified environment (cluster or gateway).
	Target string `json:"target,omitempty"`

	// Version is the tool version that produced the report.
	Version string `json:"version,omitempty"`

	// DurationSeconds is the total suite runtime.
	DurationSeconds float64 `json:"duration_seconds"`
}

// Report is the full machine-readable verification report.
type Report struct {
	// Metadata describes the run.
	Metadata Metadata `json:"metadata"`

	// Summary is the aggregated verdict.
	Summary Verdict `json:"summary"`

	// Results lists every check outcome in execution order.
	Results []checks.Outcome `json:"results"`

	// Findings lists every weighted finding, in check order.
	Findings []checks.Finding `json:"findings"`
}

// New assembles a report from outcomes under the given policy.
func New(meta Metadata, outcomes []checks.Outcome, policy Policy) *Report {
	findings := checks.CollectFindings(outcomes)
	return &Report{
		Metadata: meta,
		Summary:  Aggregate(outcomes, findings, policy),
		Results:  outcomes,
		Findings: findings,
	}
}

// Write renders the report as indented JSON.
func (r *Report) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

package checks

import (
	"context"
	"time"
)

// Querier issues raw read-only queries against the control plane. It is
// satisfied by controlplane.KubectlClient.
type Querier interface {
	Get(ctx context.Context, args ...string) ([]byte, error)
}

// Commander runs an external CLI and returns its stdout. It is satisfied by
// controlplane.ExecRunner and used by checks that reach outside the cluster,
// such as the DNS permission probe.
type Commander interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Finding is a weighted observation attached to a check outcome.
type Finding struct {
	// Severity classifies the finding.
	Severity Severity `json:"severity"`

	// Type is a short machine-readable category (e.g. "mtls-permissive").
	Type string `json:"type"`

	// Description explains what was observed.
	Description string `json:"description"`

	// Remediation suggests a fix.
	Remediation string `json:"remediation,omitempty"`
}

// Outcome is the result of a single check.
type Outcome struct {
	// Name is the check name.
	Name string `json:"name"`

	// Passed indicates whether the check passed.
	Passed bool `json:"passed"`

	// Details describes what was verified or why it failed.
	Details string `json:"details,omitempty"`

	// Panicked is set when the check crashed and was recovered. A panicked
	// check counts as failed and is surfaced separately by the CLI.
	Panicked bool `json:"panicked,omitempty"`

	// Duration is how long the check took.
	Duration time.Duration `json:"duration"`

	// Findings holds the weighted observations this check produced.
	Findings []Finding `json:"findings,omitempty"`
}

// Check is a named verification routine.
type Check struct {
	// Name identifies the check in outcomes and logs.
	Name string

	// Run executes the check.
	Run func(ctx context.Context) Outcome
}

// fail is a convenience constructor for a failed outcome with one finding.
func fail(name, details string, findings ...Finding) Outcome {
	return Outcome{Name: name, Passed: false, Details: details, Findings: findings}
}

// pass is a convenience constructor for a passing outcome.
func pass(name, details string) Outcome {
	return Outcome{Name: name, Passed: true, Details: details}
}

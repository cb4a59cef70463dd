package engine

import (
	"context"
	"time"
)

// ControlPlane applies resource descriptors and reports their live status.
// Implementations live outside the engine (see pkg/controlplane).
type ControlPlane interface {
	// Apply submits a descriptor to the control plane. A nil return means
	// the descriptor was accepted; it does not imply readiness.
	Apply(ctx context.Context, d *Descriptor) error

	// GetStatus queries the current status conditions for a resource.
	// A momentarily missing resource returns a transient error with code
	// ErrCodeNotFound. A kind that cannot be introspected at all returns an
	// error with code ErrCodeIntrospection.
	GetStatus(ctx context.Context, kind, name, namespace string) (*ResourceState, error)
}

// ResourceState is the explicit status schema returned by GetStatus. Every
// field is either present or has a declared fallback; absence of a readiness
// condition maps to a named message, never a crash.
type ResourceState struct {
	// Conditions is the ordered condition list reported by the control plane.
	Conditions []Condition `json:"conditions"`
}

// Condition is a single status condition, fetched fresh on every poll tick
// and never cached across ticks.
type Condition struct {
	// Type is the condition type (e.g., "Ready").
	Type string `json:"type"`

	// Status is True, False, or Unknown.
	Status ConditionStatus `json:"status"`

	// Reason is a machine-readable cause, if the control plane reports one.
	Reason string `json:"reason,omitempty"`

	// Message is a human-readable description of the condition.
	Message string `json:"message,omitempty"`
}

// NoReadyConditionMessage is the declared fallback when the status payload
// carries no readiness condition. It is distinct from "not ready".
const NoReadyConditionMessage = "no Ready condition found"

// Ready locates the readiness condition in the state. The second return is
// false when no such condition exists.
func (s *ResourceState) Ready() (Condition, bool) {
	for _, c := range s.Conditions {
		if c.Type == ReadyConditionType {
			return c, true
		}
	}
	return Condition{}, false
}

// TerminalFailure reports whether the state carries an explicit
// unrecoverable-failure signal, with its message. Polling stops early on a
// terminal failure instead of waiting out the timeout budget.
func (s *ResourceState) TerminalFailure() (string, bool) {
	for _, c := range s.Conditions {
		if c.Type != ReadyConditionType || c.Status != ConditionFalse {
			continue
		}
		switch c.Reason {
		case "Failed", "Fatal", "ProvisioningFailed":
			return c.Message, true
		}
	}
	return "", false
}

// Issue is the payload recorded when a resource fails to apply or times out.
type Issue struct {
	// Description summarizes what went wrong.
	Description string `json:"description"`

	// Symptoms lists observed symptoms.
	Symptoms []string `json:"symptoms,omitempty"`

	// ErrorOutput is the raw control-plane error output.
	ErrorOutput string `json:"error_output,omitempty"`

	// ResolutionHint suggests a first troubleshooting step.
	ResolutionHint string `json:"resolution_hint,omitempty"`

	// Context describes where in the sequence the failure occurred.
	Context string `json:"context,omitempty"`
}

// Success is the payload recorded after a successful apply or readiness
// confirmation.
type Success struct {
	// DurationSeconds is how long the operation took.
	DurationSeconds float64 `json:"duration_seconds"`

	// ConfigSummary briefly describes the configuration that succeeded.
	ConfigSummary string `json:"config_summary,omitempty"`

	// Dependencies lists what the success depended on.
	Dependencies []string `json:"dependencies,omitempty"`
}

// HistoryEntry is a prior observation returned by Sink.Query.
type HistoryEntry struct {
	// ID is the entry identifier.
	ID string `json:"id"`

	// Kind is "issue" or "success".
	Kind string `json:"kind"`

	// ResourceType is the resource type the entry was recorded for.
	ResourceType string `json:"resource_type"`

	// Description is the entry summary.
	Description string `json:"description"`

	// RecordedAt is when the entry was stored.
	RecordedAt time.Time `json:"recorded_at"`
}

// Sink records issue and success observations and answers advisory
// historical queries. Sink calls are assumed idempotent; a sink failure must
// be logged but must never fail the orchestration run, and Query results
// never change the correctness of a run, only logged hints.
type Sink interface {
	RecordIssue(ctx context.Context, resourceType string, issue Issue) error
	RecordSuccess(ctx context.Context, resourceType string, success Success) error
	Query(ctx context.Context, pattern string) ([]HistoryEntry, error)
}

// NopSink is a Sink that records nothing. Used when history storage is
// disabled.
type NopSink struct{}

// RecordIssue implements Sink.
func (NopSink) RecordIssue(context.Context, string, Issue) error { return nil }

// RecordSuccess implements Sink.
func (NopSink) RecordSuccess(context.Context, string, Success) error { return nil }

// Query implements Sink.
func (NopSink) Query(context.Context, string) ([]HistoryEntry, error) { return nil, nil }

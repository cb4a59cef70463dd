package engine

import (
	"fmt"
	"time"
)

// Descriptor identifies a single declarative resource submitted to the
// control plane at a defined position in the stack sequence. Descriptors are
// immutable once loaded.
type Descriptor struct {
	// Kind is the control-plane resource kind (e.g., "ManagedCluster").
	Kind string `json:"kind" validate:"required"`

	// Name is the resource name.
	Name string `json:"name" validate:"required"`

	// Namespace is the resource namespace. Empty for cluster-scoped kinds.
	Namespace string `json:"namespace,omitempty"`

	// SequencePosition defines the total order of application within a run.
	SequencePosition int `json:"sequence_position"`

	// Monitorable marks resources that require asynchronous readiness
	// confirmation after apply. Non-monitorable resources are considered
	// complete on successful application alone.
	Monitorable bool `json:"monitorable"`

	// SourceFile is the manifest file this descriptor was loaded from.
	SourceFile string `json:"source_file,omitempty"`
}

// ID returns a stable identifier for logs and telemetry records.
func (d Descriptor) ID() string {
	if d.Namespace == "" {
		return fmt.Sprintf("%s/%s", d.Kind, d.Name)
	}
	return fmt.Sprintf("%s/%s/%s", d.Kind, d.Namespace, d.Name)
}

// ApplyResult records the outcome of submitting one descriptor to the
// control plane. Exactly one ApplyResult is created per descriptor per run,
// at apply time; it is never mutated afterward.
type ApplyResult struct {
	// Resource is the descriptor that was applied.
	Resource Descriptor `json:"resource"`

	// Deployed indicates whether the control plane accepted the descriptor.
	Deployed bool `json:"deployed"`

	// ErrorText is the control-plane rejection message, if any.
	ErrorText string `json:"error_text,omitempty"`

	// ErrorClass classifies a rejected apply.
	ErrorClass ErrorClass `json:"error_class,omitempty"`

	// ErrorCode is the classified error code, if any.
	ErrorCode string `json:"error_code,omitempty"`

	// DurationSeconds is how long the apply took.
	DurationSeconds float64 `json:"duration_seconds"`
}

// DeploymentResult is one entry in the ordered result log. The log has a
// single writer (the orchestrator) and is read-only once the run completes.
type DeploymentResult struct {
	// Resource is the descriptor this entry belongs to.
	Resource Descriptor `json:"resource"`

	// Deployed indicates whether the apply succeeded.
	Deployed bool `json:"deployed"`

	// Monitored indicates whether readiness was confirmed (or not required).
	Monitored bool `json:"monitored"`

	// Confidence distinguishes confirmed readiness from the degraded
	// optimistic fallback.
	Confidence Confidence `json:"confidence"`

	// Message is the last status message observed for this resource.
	Message string `json:"message,omitempty"`

	// Queries is the number of readiness status queries issued. Zero for
	// resources that were never polled.
	Queries int `json:"queries,omitempty"`

	// PollSeconds is the wall-clock readiness polling duration.
	PollSeconds float64 `json:"poll_seconds,omitempty"`
}

// PollResult is the outcome of a readiness polling loop for one resource.
type PollResult struct {
	// Ready indicates the readiness condition was observed with a positive
	// status, or optimistically assumed when introspection was impossible.
	Ready bool `json:"ready"`

	// Confidence qualifies Ready. Callers must be able to distinguish a
	// confirmed result from the optimistic fallback.
	Confidence Confidence `json:"confidence"`

	// Message is the last status message observed before returning.
	Message string `json:"message"`

	// Queries is the number of status queries issued.
	Queries int `json:"queries"`

	// Elapsed is the wall-clock polling duration.
	Elapsed time.Duration `json:"elapsed"`
}

// RunResult is the accumulated outcome of one orchestration run. It is
// returned by Run as an explicit accumulator; the orchestrator holds no
// cross-run state.
type RunResult struct {
	// ID is the unique identifier for this run.
	ID string `json:"id"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run completed.
	CompletedAt time.Time `json:"completed_at"`

	// Applies holds exactly one entry per input descriptor, in input order.
	Applies []ApplyResult `json:"applies"`

	// Results holds exactly one entry per input descriptor, in input order.
	Results []DeploymentResult `json:"results"`

	// Success is true only if every resource in the sequence deployed.
	Success bool `json:"success"`
}

// Status derives the run status from the result log.
func (r *RunResult) Status() RunStatus {
	deployed := 0
	for _, res := range r.Results {
		if res.Deployed {
			deployed++
		}
	}
	switch {
	case len(r.Results) > 0 && deployed == len(r.Results):
		return RunStatusSucceeded
	case deployed > 0:
		return RunStatusPartial
	default:
		return RunStatusFailed
	}
}

// Summary reduces the result log to counts.
func (r *RunResult) Summary() RunSummary {
	s := RunSummary{Total: len(r.Results)}
	for _, res := range r.Results {
		if res.Deployed {
			s.Deployed++
		} else {
			s.Failed++
		}
		if res.Deployed && !res.Monitored {
			s.NotReady++
		}
		if res.Confidence == ConfidenceOptimistic {
			s.Optimistic++
		}
	}
	return s
}

// RunSummary provides statistics about a run.
type RunSummary struct {
	// Total is the number of descriptors in the stack.
	Total int `json:"total"`

	// Deployed is the number of resources the control plane accepted.
	Deployed int `json:"deployed"`

	// Failed is the number of resources that failed to apply.
	Failed int `json:"failed"`

	// NotReady is the number of deployed resources that never confirmed
	// readiness within their timeout budget.
	NotReady int `json:"not_ready"`

	// Optimistic is the number of degraded-confidence successes.
	Optimistic int `json:"optimistic"`
}

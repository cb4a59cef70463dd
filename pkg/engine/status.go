package engine

import (
	"encoding/json"
	"fmt"
)

// ConditionStatus represents the reported state of a readiness condition.
type ConditionStatus string

const (
	// ConditionTrue indicates the condition is satisfied.
	ConditionTrue ConditionStatus = "True"

	// ConditionFalse indicates the condition is not satisfied.
	ConditionFalse ConditionStatus = "False"

	// ConditionUnknown indicates the control plane cannot determine the
	// condition state.
	ConditionUnknown ConditionStatus = "Unknown"
)

// Validate checks if the condition status is valid.
func (s ConditionStatus) Validate() error {
	switch s {
	case ConditionTrue, ConditionFalse, ConditionUnknown:
		return nil
	default:
		return fmt.Errorf("invalid condition status: %s", s)
	}
}

// ReadyConditionType is the designated readiness marker searched for in
// status conditions.
const ReadyConditionType = "Ready"

// Confidence distinguishes a confirmed readiness result from a degraded
// optimistic one.
type Confidence string

const (
	// ConfidenceConfirmed indicates readiness was observed directly from a
	// status condition.
	ConfidenceConfirmed Confidence = "confirmed"

	// ConfidenceOptimistic indicates the resource's sub-components could not
	// be introspected and success was assumed rather than verified.
	ConfidenceOptimistic Confidence = "optimistic"

	// ConfidenceNone indicates the resource was never confirmed ready.
	ConfidenceNone Confidence = "none"
)

// RunStatus represents the overall outcome of a deployment run.
type RunStatus string

const (
	// RunStatusSucceeded indicates every resource in the stack deployed.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusPartial indicates some resources deployed and some failed.
	RunStatusPartial RunStatus = "partial"

	// RunStatusFailed indicates no resource in the stack deployed.
	RunStatusFailed RunStatus = "failed"
)

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusSucceeded, RunStatusPartial, RunStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}

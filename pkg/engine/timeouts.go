package engine

import (
	"strings"
	"time"
)

// DefaultTimeout is the readiness budget applied to kinds without an
// override.
const DefaultTimeout = 300 * time.Second

// TimeoutPolicy maps resource kinds to readiness timeout budgets, with a
// default fallback. It is static for the duration of a run.
type TimeoutPolicy struct {
	// Default is used when no override matches.
	Default time.Duration

	// Overrides maps lowercase kind names to budgets for kinds known to
	// provision slowly.
	Overrides map[string]time.Duration
}

// DefaultTimeoutPolicy returns the standard per-kind budgets: 30 minutes for
// managed clusters, 10 minutes for cluster extensions, 5 minutes otherwise.
func DefaultTimeoutPolicy() TimeoutPolicy {
	return TimeoutPolicy{
		Default: DefaultTimeout,
		Overrides: map[string]time.Duration{
			"managedcluster": 1800 * time.Second,
			"extension":      600 * time.Second,
		},
	}
}

// Resolve looks up the budget for a kind. The lookup is pure and
// side-effect-free, and always succeeds: unknown kinds fall back to the
// default budget.
func (p TimeoutPolicy) Resolve(kind string) time.Duration {
	if d, ok := p.Overrides[strings.ToLower(kind)]; ok {
		return d
	}
	if p.Default > 0 {
		return p.Default
	}
	return DefaultTimeout
}

package engine

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval is the fixed delay between status queries.
const DefaultPollInterval = 30 * time.Second

// Poller repeatedly queries a resource's status until the readiness
// condition is met, an explicit terminal failure is reported, or the timeout
// budget expires. Polling blocks the calling goroutine; resources are never
// polled in parallel.
type Poller struct {
	client   ControlPlane
	interval time.Duration
	logger   zerolog.Logger

	// OnStatus is invoked once per distinct status message per resource.
	// Repeated identical messages across ticks do not re-trigger it.
	OnStatus func(d Descriptor, message string)
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollInterval overrides the fixed tick interval.
func WithPollInterval(interval time.Duration) PollerOption {
	return func(p *Poller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithPollLogger sets the poller logger.
func WithPollLogger(logger zerolog.Logger) PollerOption {
	return func(p *Poller) { p.logger = logger }
}

// WithStatusObserver sets the debounced status observer.
func WithStatusObserver(fn func(Descriptor, string)) PollerOption {
	return func(p *Poller) { p.OnStatus = fn }
}

// NewPoller creates a readiness poller backed by the given control plane.
func NewPoller(client ControlPlane, opts ...PollerOption) *Poller {
	p := &Poller{
		client:   client,
		interval: DefaultPollInterval,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll queries the resource status at the fixed interval until ready,
// terminally failed, or timed out. With timeout T and interval I, a resource
// that never reaches readiness is queried exactly ceil(T/I) times.
//
// A first query that reports the resource cannot be introspected at all
// returns an optimistic success flagged ConfidenceOptimistic: callers must
// treat it as a degraded, unverified result rather than a confirmed one.
func (p *Poller) Poll(ctx context.Context, d Descriptor, timeout time.Duration) PollResult {
	start := time.Now()
	logger := p.logger.With().Str("resource", d.ID()).Logger()

	if d.Kind == "" || d.Name == "" {
		logger.Warn().Msg("Resource is not introspectable, assuming success")
		return PollResult{Ready: true, Confidence: ConfidenceOptimistic, Elapsed: time.Since(start)}
	}

	maxTicks := int(math.Ceil(timeout.Seconds() / p.interval.Seconds()))
	if maxTicks < 1 {
		maxTicks = 1
	}

	var (
		lastMessage string
		queries     int
	)

	for tick := 0; tick < maxTicks; tick++ {
		state, err := p.client.GetStatus(ctx, d.Kind, d.Name, d.Namespace)
		queries++

		switch {
		case err == nil:
			cond, found := state.Ready()
			if !found {
				p.observe(d, logger, &lastMessage, NoReadyConditionMessage)
				break
			}
			if cond.Status == ConditionTrue {
				elapsed := time.Since(start)
				logger.Info().
					Dur("elapsed", elapsed).
					Int("queries", queries).
					Msg("Resource ready")
				return PollResult{
					Ready:      true,
					Confidence: ConfidenceConfirmed,
					Message:    cond.Message,
					Queries:    queries,
					Elapsed:    elapsed,
				}
			}
			if msg, terminal := state.TerminalFailure(); terminal {
				logger.Error().Str("message", msg).Msg("Resource reported terminal failure")
				return PollResult{
					Ready:      false,
					Confidence: ConfidenceNone,
					Message:    msg,
					Queries:    queries,
					Elapsed:    time.Since(start),
				}
			}
			p.observe(d, logger, &lastMessage, cond.Message)

		case IsIntrospection(err):
			// Sub-resources cannot be enumerated. Degrade to an
			// optimistic success instead of blocking the sequence.
			logger.Warn().Err(err).Msg("Resource is not introspectable, assuming success")
			return PollResult{
				Ready:      true,
				Confidence: ConfidenceOptimistic,
				Queries:    queries,
				Elapsed:    time.Since(start),
			}

		default:
			// Transient query failures (including momentary not-found) are
			// treated as not-yet-ready and retried on the next tick.
			p.observe(d, logger, &lastMessage, err.Error())
		}

		if tick < maxTicks-1 {
			select {
			case <-time.After(p.interval):
			case <-ctx.Done():
				return PollResult{
					Ready:      false,
					Confidence: ConfidenceNone,
					Message:    lastMessage,
					Queries:    queries,
					Elapsed:    time.Since(start),
				}
			}
		}
	}

	logger.Warn().
		Dur("timeout", timeout).
		Int("queries", queries).
		Msg("Resource did not become ready within budget")

	return PollResult{
		Ready:      false,
		Confidence: ConfidenceNone,
		Message:    lastMessage,
		Queries:    queries,
		Elapsed:    time.Since(start),
	}
}

// observe emits a status observation only when the message differs from the
// previously observed one for this resource.
func (p *Poller) observe(d Descriptor, logger zerolog.Logger, last *string, message string) {
	if message == *last {
		return
	}
	*last = message
	logger.Info().Str("status", message).Msg("Waiting for readiness")
	if p.OnStatus != nil {
		p.OnStatus(d, message)
	}
}

package checks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// gatewayRouting verifies the external gateway answers with a success
// status.
func (s *Suite) gatewayRouting(ctx context.Context) Outcome {
	const name = "gateway-routing"

	status, _, _, err := s.probe(ctx)
	if err != nil {
		return fail(name, err.Error(), Finding{
			Severity:    SeverityCritical,
			Type:        "gateway-unreachable",
			Description: fmt.Sprintf("gateway %s unreachable: %v", s.config.GatewayURL, err),
			Remediation: "check gateway service, virtual service routes, and DNS",
		})
	}
	if status < 200 || status >= 400 {
		return fail(name, fmt.Sprintf("gateway returned %d", status), Finding{
			Severity:    SeverityCritical,
			Type:        "gateway-error",
			Description: fmt.Sprintf("gateway %s returned status %d", s.config.GatewayURL, status),
			Remediation: "inspect virtual service routing and backend health",
		})
	}
	return pass(name, fmt.Sprintf("gateway answered with %d", status))
}

// versionedResponse is the body shape the distribution check expects from
// the probed endpoint.
type versionedResponse struct {
	Version string `json:"version"`
}

// canaryDistribution samples traffic and verifies the canary receives at
// least its expected share minus the tolerance. Receiving more than expected
// is not a failure; the tolerance is one-sided.
func (s *Suite) canaryDistribution(ctx context.Context) Outcome {
	const name = "canary-distribution"

	total := s.config.ProbeRequests
	if total <= 0 {
		total = 20
	}

	canary := 0
	sampled := 0
	for i := 0; i < total; i++ {
		status, body, _, err := s.probe(ctx)
		if err != nil || status < 200 || status >= 400 {
			continue
		}
		sampled++

		var vr versionedResponse
		if json.Unmarshal(body, &vr) == nil && vr.Version == "canary" {
			canary++
		}
	}

	if sampled == 0 {
		return fail(name, "no successful samples", Finding{
			Severity:    SeverityMedium,
			Type:        "canary-unsampled",
			Description: "traffic distribution could not be sampled",
		})
	}

	percent := float64(canary) / float64(sampled) * 100
	floor := s.config.ExpectedCanaryPercent - s.config.CanaryTolerance
	details := fmt.Sprintf("canary received %.0f%% of %d samples (expected %.0f%%, floor %.0f%%)",
		percent, sampled, s.config.ExpectedCanaryPercent, floor)

	if percent < floor {
		return fail(name, details, Finding{
			Severity:    SeverityMedium,
			Type:        "canary-underweighted",
			Description: details,
			Remediation: "check virtual service weight configuration and canary pod health",
		})
	}
	return pass(name, details)
}

// performanceBaseline samples request latency against the gateway and
// verifies mean and worst-case stay within budget.
func (s *Suite) performanceBaseline(ctx context.Context) Outcome {
	const name = "performance-baseline"

	total := s.config.ProbeRequests
	if total <= 0 {
		total = 20
	}

	var (
		sum     time.Duration
		max     time.Duration
		sampled int
	)
	for i := 0; i < total; i++ {
		status, _, elapsed, err := s.probe(ctx)
		if err != nil || status < 200 || status >= 400 {
			continue
		}
		sampled++
		sum += elapsed
		if elapsed > max {
			max = elapsed
		}
	}

	if sampled == 0 {
		return fail(name, "no successful samples", Finding{
			Severity:    SeverityMedium,
			Type:        "latency-unsampled",
			Description: "latency baseline could not be sampled",
		})
	}

	avg := sum / time.Duration(sampled)
	details := fmt.Sprintf("avg %s, max %s over %d samples", avg.Round(time.Millisecond), max.Round(time.Millisecond), sampled)

	if avg > s.config.AvgLatencyBudget || max > s.config.MaxLatencyBudget {
		return fail(name, details, Finding{
			Severity:    SeverityMedium,
			Type:        "latency-budget-exceeded",
			Description: fmt.Sprintf("%s exceeds budget (avg %s, max %s)", details, s.config.AvgLatencyBudget, s.config.MaxLatencyBudget),
			Remediation: "profile backend latency and gateway resource limits",
		})
	}
	return pass(name, details)
}

// probe issues one GET against the gateway and returns status, body, and
// elapsed time.
func (s *Suite) probe(ctx context.Context) (int, []byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.GatewayURL, nil)
	if err != nil {
		return 0, nil, 0, err
	}

	start := time.Now()
	resp, err := s.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return 0, nil, elapsed, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, elapsed, err
	}
	return resp.StatusCode, body, elapsed, nil
}

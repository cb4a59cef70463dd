package checks

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/openrollout/openrollout/pkg/controlplane"
)

// Config tunes the verification suite for a specific deployment.
type Config struct {
	// MeshNamespace is where the service mesh control plane runs.
	MeshNamespace string

	// AppNamespace is where the application workloads run.
	AppNamespace string

	// GatewayURL is the external entry point probed by routing checks.
	GatewayURL string

	// InjectionThreshold is the minimum fraction of workload pods that must
	// carry a sidecar.
	InjectionThreshold float64

	// ExpectedCanaryPercent is the traffic share the canary should receive.
	ExpectedCanaryPercent float64

	// CanaryTolerance is the allowed shortfall, in percentage points, below
	// the expected canary share. Overshoot is not penalized.
	CanaryTolerance float64

	// ProbeRequests is how many requests distribution and latency checks
	// send.
	ProbeRequests int

	// AvgLatencyBudget is the mean-latency ceiling for the baseline check.
	AvgLatencyBudget time.Duration

	// MaxLatencyBudget is the worst-case latency ceiling.
	MaxLatencyBudget time.Duration

	// DNSZone is the DNS zone holding ACME challenge records. The DNS
	// permission check runs only when a zone is configured.
	DNSZone string

	// DNSResourceGroup is the resource group containing the DNS zone.
	DNSResourceGroup string
}

// DefaultConfig returns the standard verification configuration.
func DefaultConfig() Config {
	return Config{
		MeshNamespace:         "istio-system",
		AppNamespace:          "default",
		InjectionThreshold:    0.9,
		ExpectedCanaryPercent: 20,
		CanaryTolerance:       20,
		ProbeRequests:         20,
		AvgLatencyBudget:      time.Second,
		MaxLatencyBudget:      2 * time.Second,
		DNSResourceGroup:      "dns",
	}
}

// Suite holds the dependencies shared by all checks.
type Suite struct {
	config    Config
	querier   Querier
	commander Commander
	http      *http.Client
	logger    zerolog.Logger
}

// SuiteOption configures a Suite.
type SuiteOption func(*Suite)

// WithHTTPClient overrides the HTTP client used by routing checks.
func WithHTTPClient(client *http.Client) SuiteOption {
	return func(s *Suite) {
		if client != nil {
			s.http = client
		}
	}
}

// WithCommander overrides the CLI runner used by the DNS permission check.
func WithCommander(c Commander) SuiteOption {
	return func(s *Suite) {
		if c != nil {
			s.commander = c
		}
	}
}

// WithSuiteLogger sets the suite logger.
func WithSuiteLogger(logger zerolog.Logger) SuiteOption {
	return func(s *Suite) { s.logger = logger }
}

// NewSuite creates a verification suite against the given control plane.
func NewSuite(querier Querier, cfg Config, opts ...SuiteOption) *Suite {
	s := &Suite{
		config:    cfg,
		querier:   querier,
		commander: controlplane.ExecRunner{},
		http:      &http.Client{Timeout: 10 * time.Second},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checks returns every check in execution order. Checks that need a DNS zone
// or a gateway URL are included only when one is configured.
func (s *Suite) Checks() []Check {
	checks := []Check{
		{Name: "control-plane-health", Run: s.controlPlaneHealth},
		{Name: "sidecar-injection", Run: s.sidecarInjection},
		{Name: "crd-presence", Run: s.crdPresence},
		{Name: "cluster-issuers", Run: s.clusterIssuers},
		{Name: "mtls-strict", Run: s.mtlsStrict},
		{Name: "authorization-policies", Run: s.authorizationPolicies},
		{Name: "service-entries", Run: s.serviceEntries},
		{Name: "destination-rules", Run: s.destinationRules},
		{Name: "certificate-readiness", Run: s.certificateReadiness},
	}
	if s.config.DNSZone != "" {
		checks = append(checks,
			Check{Name: "azure-dns-permissions", Run: s.dnsPermissions})
	}
	if s.config.GatewayURL != "" {
		checks = append(checks,
			Check{Name: "gateway-routing", Run: s.gatewayRouting},
			Check{Name: "canary-distribution", Run: s.canaryDistribution},
			Check{Name: "performance-baseline", Run: s.performanceBaseline},
		)
	}
	return checks
}

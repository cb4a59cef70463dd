package checks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeQuerier maps the first query argument to a canned payload.
type fakeQuerier struct {
	payloads map[string][]byte
	errs     map[string]error
}

func (f *fakeQuerier) Get(_ context.Context, args ...string) ([]byte, error) {
	key := args[0]
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	if payload, ok := f.payloads[key]; ok {
		return payload, nil
	}
	return []byte(`{"items": []}`), nil
}

func podListJSON(running, injected, total int) []byte {
	var items []string
	for i := 0; i < total; i++ {
		phase := "Running"
		if i >= running {
			phase = "Pending"
		}
		containers := `{"name": "app"}`
		if i < injected {
			containers += `, {"name": "istio-proxy"}`
		}
		items = append(items, fmt.Sprintf(`{
			"metadata": {"name": "pod-%d"},
			"spec": {"containers": [%s]},
			"status": {"phase": "%s", "containerStatuses": [{"name": "app", "ready": true}]}
		}`, i, containers, phase))
	}
	return []byte(`{"items": [` + strings.Join(items, ",") + `]}`)
}

func newSuite(q Querier, mutate func(*Config)) *Suite {
	cfg := DefaultConfig()
	cfg.AppNamespace = "shop"
	if mutate != nil {
		mutate(&cfg)
	}
	return NewSuite(q, cfg)
}

func TestControlPlaneHealth(t *testing.T) {
	healthy := newSuite(&fakeQuerier{payloads: map[string][]byte{
		"pods": podListJSON(3, 0, 3),
	}}, nil)
	if out := healthy.controlPlaneHealth(context.Background()); !out.Passed {
		t.Errorf("healthy control plane reported failed: %s", out.Details)
	}

	degraded := newSuite(&fakeQuerier{payloads: map[string][]byte{
		"pods": podListJSON(2, 0, 3),
	}}, nil)
	out := degraded.controlPlaneHealth(context.Background())
	if out.Passed {
		t.Fatalf("degraded control plane reported healthy")
	}
	if len(out.Findings) != 1 || out.Findings[0].Severity != SeverityCritical {
		t.Errorf("expected one critical finding, got %+v", out.Findings)
	}
}

func TestControlPlaneHealthUnreachable(t *testing.T) {
	s := newSuite(&fakeQuerier{errs: map[string]error{
		"pods": errors.New("connection refused"),
	}}, nil)
	out := s.controlPlaneHealth(context.Background())
	if out.Passed {
		t.Fatalf("unreachable control plane reported healthy")
	}
	if out.Findings[0].Severity != SeverityCritical {
		t.Errorf("severity = %s, want CRITICAL", out.Findings[0].Severity)
	}
}

func TestSidecarInjectionThreshold(t *testing.T) {
	cases := []struct {
		name     string
		injected int
		total    int
		wantPass bool
	}{
		{"all injected", 10, 10, true},
		{"at threshold", 9, 10, true},
		{"below threshold", 8, 10, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newSuite(&fakeQuerier{payloads: map[string][]byte{
				"pods": podListJSON(tc.total, tc.injected, tc.total),
			}}, nil)
			out := s.sidecarInjection(context.Background())
			if out.Passed != tc.wantPass {
				t.Errorf("passed = %v, want %v (%s)", out.Passed, tc.wantPass, out.Details)
			}
		})
	}
}

func TestCRDPresence(t *testing.T) {
	var items []string
	for _, name := range requiredCRDs[:len(requiredCRDs)-1] {
		items = append(items, fmt.Sprintf(`{"metadata": {"name": "%s"}}`, name))
	}
	s := newSuite(&fakeQuerier{payloads: map[string][]byte{
		"crd": []byte(`{"items": [` + strings.Join(items, ",") + `]}`),
	}}, nil)

	out := s.crdPresence(context.Background())
	if out.Passed {
		t.Fatalf("missing CRD not detected")
	}
	if !strings.Contains(out.Details, requiredCRDs[len(requiredCRDs)-1]) {
		t.Errorf("details = %q, want missing CRD named", out.Details)
	}
}

func TestMTLSStrict(t *testing.T) {
	strict := newSuite(&fakeQuerier{payloads: map[string][]byte{
		"peerauthentication": []byte(`{"items": [{"metadata": {"name": "default"}, "spec": {"mtls": {"mode": "STRICT"}}}]}`),
	}}, nil)
	if out := strict.mtlsStrict(context.Background()); !out.Passed {
		t.Errorf("strict mTLS reported failed: %s", out.Details)
	}

	permissive := newSuite(&fakeQuerier{payloads: map[string][]byte{
		"peerauthentication": []byte(`{"items": [{"metadata": {"name": "default"}, "spec": {"mtls": {"mode": "PERMISSIVE"}}}]}`),
	}}, nil)
	out := permissive.mtlsStrict(context.Background())
	if out.Passed {
		t.Fatalf("permissive mTLS reported passed")
	}
	if out.Findings[0].Severity != SeverityMedium {
		t.Errorf("severity = %s, want MEDIUM", out.Findings[0].Severity)
	}
}

func TestAuthorizationPoliciesMissingIsHighFinding(t *testing.T) {
	s := newSuite(&fakeQuerier{}, nil)
	out := s.authorizationPolicies(context.Background())
	if out.Passed {
		t.Fatalf("absent policies reported passed")
	}
	if out.Findings[0].Severity != SeverityHigh {
		t.Errorf("severity = %s, want HIGH", out.Findings[0].Severity)
	}
}

func TestCanaryDistributionOneSidedTolerance(t *testing.T) {
	serve := func(canaryEvery int) *httptest.Server {
		calls := 0
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++
			version := "stable"
			if canaryEvery > 0 && calls%canaryEvery == 0 {
				version = "canary"
			}
			fmt.Fprintf(w, `{"version": %q}`, version)
		}))
	}

	cases := []struct {
		name        string
		canaryEvery int // every Nth response is canary; 0 means never
		wantPass    bool
	}{
		{"at expected share", 2, true},    // 50%
		{"overshoot is fine", 1, true},    // 100%
		{"starved canary fails", 0, false}, // 0% against a 30% floor
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := serve(tc.canaryEvery)
			defer srv.Close()

			s := newSuite(&fakeQuerier{}, func(c *Config) {
				c.GatewayURL = srv.URL
				c.ExpectedCanaryPercent = 50
				c.CanaryTolerance = 20
				c.ProbeRequests = 10
			})
			out := s.canaryDistribution(context.Background())
			if out.Passed != tc.wantPass {
				t.Errorf("passed = %v, want %v (%s)", out.Passed, tc.wantPass, out.Details)
			}
		})
	}
}

func TestPerformanceBaseline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"version": "stable"}`)
	}))
	defer srv.Close()

	fast := newSuite(&fakeQuerier{}, func(c *Config) {
		c.GatewayURL = srv.URL
		c.ProbeRequests = 5
	})
	if out := fast.performanceBaseline(context.Background()); !out.Passed {
		t.Errorf("local server exceeded latency budget: %s", out.Details)
	}

	strict := newSuite(&fakeQuerier{}, func(c *Config) {
		c.GatewayURL = srv.URL
		c.ProbeRequests = 5
		c.AvgLatencyBudget = time.Nanosecond
		c.MaxLatencyBudget = time.Nanosecond
	})
	out := strict.performanceBaseline(context.Background())
	if out.Passed {
		t.Fatalf("nanosecond budget reported within bounds")
	}
	if out.Findings[0].Severity != SeverityMedium {
		t.Errorf("severity = %s, want MEDIUM", out.Findings[0].Severity)
	}
}

func TestGatewayChecksSkippedWithoutURL(t *testing.T) {
	s := newSuite(&fakeQuerier{}, nil)
	for _, check := range s.Checks() {
		if strings.HasPrefix(check.Name, "gateway") || strings.HasPrefix(check.Name, "canary") || strings.HasPrefix(check.Name, "performance") {
			t.Errorf("check %s present without a gateway URL", check.Name)
		}
	}
}

// fakeCommander returns one canned result for any invocation.
type fakeCommander struct {
	out  []byte
	err  error
	args []string
}

func (f *fakeCommander) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	f.args = append([]string{name}, args...)
	return f.out, f.err
}

func TestDNSPermissions(t *testing.T) {
	readable := &fakeCommander{out: []byte(`["_acme-challenge.shop", "_acme-challenge.api"]`)}
	s := newSuite(&fakeQuerier{}, func(c *Config) { c.DNSZone = "example.com" })
	s.commander = readable

	out := s.dnsPermissions(context.Background())
	if !out.Passed {
		t.Fatalf("readable zone reported failed: %s", out.Details)
	}
	if !strings.Contains(out.Details, "2 ACME challenge records") {
		t.Errorf("details = %q, want record count", out.Details)
	}
	want := []string{"az", "network", "dns", "record-set", "txt", "list",
		"--zone-name", "example.com", "--resource-group", "dns",
		"--query", "[?contains(name, 'acme-challenge')].name", "-o", "json"}
	if strings.Join(readable.args, " ") != strings.Join(want, " ") {
		t.Errorf("az invocation = %v, want %v", readable.args, want)
	}

	empty := newSuite(&fakeQuerier{}, func(c *Config) { c.DNSZone = "example.com" })
	empty.commander = &fakeCommander{out: []byte(`[]`)}
	if out := empty.dnsPermissions(context.Background()); !out.Passed {
		t.Errorf("empty record set must pass: %s", out.Details)
	}
}

func TestDNSPermissionsInaccessibleZoneIsHighFinding(t *testing.T) {
	s := newSuite(&fakeQuerier{}, func(c *Config) { c.DNSZone = "example.com" })
	s.commander = &fakeCommander{err: errors.New("AuthorizationFailed: caller lacks read access")}

	out := s.dnsPermissions(context.Background())
	if out.Passed {
		t.Fatalf("inaccessible zone reported passed")
	}
	if len(out.Findings) != 1 || out.Findings[0].Severity != SeverityHigh {
		t.Errorf("expected one HIGH finding, got %+v", out.Findings)
	}
}

func TestDNSCheckIncludedOnlyWithZone(t *testing.T) {
	without := newSuite(&fakeQuerier{}, nil)
	for _, check := range without.Checks() {
		if check.Name == "azure-dns-permissions" {
			t.Errorf("DNS check present without a configured zone")
		}
	}

	with := newSuite(&fakeQuerier{}, func(c *Config) { c.DNSZone = "example.com" })
	found := false
	for _, check := range with.Checks() {
		if check.Name == "azure-dns-permissions" {
			found = true
		}
	}
	if !found {
		t.Errorf("DNS check missing despite a configured zone")
	}
}

func TestRunnerRecoversFromCheckPanic(t *testing.T) {
	runner := NewRunner(zerolog.Nop())
	checks := []Check{
		{Name: "first", Run: func(context.Context) Outcome { return pass("first", "ok") }},
		{Name: "explosive", Run: func(context.Context) Outcome { panic("nil deref in parser") }},
		{Name: "last", Run: func(context.Context) Outcome { return pass("last", "ok") }},
	}

	outcomes := runner.RunAll(context.Background(), checks)
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3 (panic must not abort the suite)", len(outcomes))
	}
	if !outcomes[1].Panicked || outcomes[1].Passed {
		t.Errorf("panicked check outcome = %+v", outcomes[1])
	}
	if !outcomes[2].Passed {
		t.Errorf("check after the panic did not run")
	}
	if !AnyPanicked(outcomes) {
		t.Errorf("AnyPanicked = false, want true")
	}
}

func TestRiskScoring(t *testing.T) {
	findings := []Finding{
		{Severity: SeverityCritical}, // 40
		{Severity: SeverityHigh},     // 20
		{Severity: SeverityMedium},   // 10
		{Severity: SeverityLow},      // 5
	}
	if got := RiskScore(findings); got != 75 {
		t.Errorf("score = %d, want 75", got)
	}

	cases := []struct {
		score int
		want  RiskLevel
	}{
		{120, RiskCritical},
		{100, RiskCritical},
		{75, RiskHigh},
		{40, RiskMedium},
		{10, RiskLow},
		{0, RiskLow},
	}
	for _, tc := range cases {
		if got := RiskLevelFor(tc.score); got != tc.want {
			t.Errorf("RiskLevelFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

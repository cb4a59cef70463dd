package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/openrollout/openrollout/pkg/checks"
)

func outcomes(passed, failed int) []checks.Outcome {
	var out []checks.Outcome
	for i := 0; i < passed; i++ {
		out = append(out, checks.Outcome{Name: "pass", Passed: true})
	}
	for i := 0; i < failed; i++ {
		out = append(out, checks.Outcome{Name: "fail", Passed: false})
	}
	return out
}

func TestUnanimousPolicy(t *testing.T) {
	cases := []struct {
		name string
		out  []checks.Outcome
		want bool
	}{
		{"all pass", outcomes(5, 0), true},
		{"one failure", outcomes(4, 1), false},
		{"empty set never passes", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := (Unanimous{}).Decide(tc.out, nil); got != tc.want {
				t.Errorf("decide = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestThresholdWithVetoPolicy(t *testing.T) {
	critical := []checks.Finding{{Severity: checks.SeverityCritical}}
	medium := []checks.Finding{{Severity: checks.SeverityMedium}}

	cases := []struct {
		name     string
		out      []checks.Outcome
		findings []checks.Finding
		want     bool
	}{
		{"four of five passes", outcomes(4, 1), nil, true},
		{"four of five with medium finding passes", outcomes(4, 1), medium, true},
		{"four of five with critical finding vetoed", outcomes(4, 1), critical, false},
		{"all pass with critical finding vetoed", outcomes(5, 0), critical, false},
		{"three of five below threshold", outcomes(3, 2), nil, false},
		{"exactly at threshold", outcomes(8, 2), nil, true},
		{"empty set never passes", nil, nil, false},
	}

	policy := DefaultThresholdPolicy()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := policy.Decide(tc.out, tc.findings); got != tc.want {
				t.Errorf("decide = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestVetoAppliesToSeveritiesAboveTheConfiguredOne(t *testing.T) {
	policy := ThresholdWithVeto{Fraction: 0.8, Veto: checks.SeverityHigh}
	critical := []checks.Finding{{Severity: checks.SeverityCritical}}
	medium := []checks.Finding{{Severity: checks.SeverityMedium}}

	if policy.Decide(outcomes(5, 0), critical) {
		t.Errorf("critical finding must veto a HIGH-veto policy")
	}
	if !policy.Decide(outcomes(5, 0), medium) {
		t.Errorf("medium finding must not veto a HIGH-veto policy")
	}
}

func TestAggregateComputesRisk(t *testing.T) {
	out := []checks.Outcome{
		{Name: "a", Passed: true},
		{Name: "b", Passed: false, Findings: []checks.Finding{
			{Severity: checks.SeverityCritical},
			{Severity: checks.SeverityHigh},
		}},
	}
	findings := checks.CollectFindings(out)

	verdict := Aggregate(out, findings, Unanimous{})
	if verdict.Overall {
		t.Errorf("overall = true, want false")
	}
	if verdict.Passed != 1 || verdict.Total != 2 {
		t.Errorf("counts = %d/%d", verdict.Passed, verdict.Total)
	}
	if verdict.RiskScore != 60 {
		t.Errorf("risk score = %d, want 60", verdict.RiskScore)
	}
	if verdict.RiskLevel != checks.RiskHigh {
		t.Errorf("risk level = %s, want HIGH", verdict.RiskLevel)
	}
}

func TestReportJSONShape(t *testing.T) {
	out := []checks.Outcome{
		{Name: "control-plane-health", Passed: true, Details: "3 pods healthy"},
		{Name: "mtls-strict", Passed: false, Findings: []checks.Finding{
			{Severity: checks.SeverityMedium, Type: "mtls-permissive", Description: "not strict"},
		}},
	}

	rep := New(Metadata{
		GeneratedAt: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
		Target:      "https://gateway.example.com",
	}, out, DefaultThresholdPolicy())

	var buf bytes.Buffer
	if err := rep.Write(&buf); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	for _, key := range []string{"metadata", "summary", "results", "findings"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("report missing top-level key %q", key)
		}
	}

	var results []checks.Outcome
	if err := json.Unmarshal(decoded["results"], &results); err != nil {
		t.Fatalf("results decode failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("results = %d, want 2 (one entry per executed check)", len(results))
	}
}

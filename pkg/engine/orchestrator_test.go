package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// countingSink records observations in memory.
type countingSink struct {
	issues    []string
	successes []string
	queries   []string
	failWith  error
}

func (s *countingSink) RecordIssue(_ context.Context, resourceType string, _ Issue) error {
	s.issues = append(s.issues, resourceType)
	return s.failWith
}

func (s *countingSink) RecordSuccess(_ context.Context, resourceType string, _ Success) error {
	s.successes = append(s.successes, resourceType)
	return s.failWith
}

func (s *countingSink) Query(_ context.Context, pattern string) ([]HistoryEntry, error) {
	s.queries = append(s.queries, pattern)
	return nil, s.failWith
}

func stack(n int) []Descriptor {
	resources := make([]Descriptor, n)
	for i := range resources {
		resources[i] = Descriptor{
			Kind:             "UserAssignedIdentity",
			Name:             fmt.Sprintf("identity-%d", i),
			Namespace:        "azure-system",
			SequencePosition: i,
		}
	}
	return resources
}

func TestRunContinuesPastApplyFailure(t *testing.T) {
	resources := stack(7)
	cp := &fakeControlPlane{applyErr: map[string]error{
		"identity-4": NewPermanentError("webhook rejected descriptor", nil).WithCode(ErrCodeApplyFailed),
	}}
	sink := &countingSink{}
	o := NewOrchestrator(cp, WithSink(sink))

	run := o.Run(context.Background(), resources)

	if len(run.Results) != len(resources) {
		t.Fatalf("result log length = %d, want %d", len(run.Results), len(resources))
	}
	if len(run.Applies) != len(resources) {
		t.Fatalf("apply log length = %d, want %d", len(run.Applies), len(resources))
	}
	for i, res := range run.Results {
		if res.Resource.Name != resources[i].Name {
			t.Errorf("result %d is %s, want %s (sequence order must be preserved)", i, res.Resource.Name, resources[i].Name)
		}
		if i == 4 {
			if res.Deployed || res.Monitored {
				t.Errorf("failed resource marked deployed=%v monitored=%v, want false/false", res.Deployed, res.Monitored)
			}
			continue
		}
		if !res.Deployed {
			t.Errorf("resource %d not deployed", i)
		}
	}
	if run.Success {
		t.Errorf("run marked success despite a failed resource")
	}
	if run.Status() != RunStatusPartial {
		t.Errorf("status = %s, want partial", run.Status())
	}
	failed := run.Applies[4]
	if failed.ErrorClass != ErrorClassPermanent || failed.ErrorCode != ErrCodeApplyFailed {
		t.Errorf("failed apply classified as %s/%s, want %s/%s",
			failed.ErrorClass, failed.ErrorCode, ErrorClassPermanent, ErrCodeApplyFailed)
	}
}

func TestRunFullSuccess(t *testing.T) {
	cp := &fakeControlPlane{}
	o := NewOrchestrator(cp)

	run := o.Run(context.Background(), stack(3))
	if !run.Success {
		t.Fatalf("expected success")
	}
	if run.Status() != RunStatusSucceeded {
		t.Errorf("status = %s, want succeeded", run.Status())
	}
	for _, res := range run.Results {
		// Non-monitorable resources are complete on apply alone.
		if !res.Monitored {
			t.Errorf("non-monitorable resource %s not marked monitored", res.Resource.ID())
		}
	}
}

func TestRunEmitsObservationsPerResource(t *testing.T) {
	resources := stack(3)
	cp := &fakeControlPlane{applyErr: map[string]error{
		"identity-1": errors.New("boom"),
	}}
	sink := &countingSink{}
	o := NewOrchestrator(cp, WithSink(sink))

	o.Run(context.Background(), resources)

	// One advisory query per resource.
	if len(sink.queries) != 3 {
		t.Errorf("advisory queries = %d, want 3", len(sink.queries))
	}
	// Success observation after each successful apply, plus the run summary.
	if len(sink.successes) != 3 {
		t.Errorf("success observations = %d, want 3 (two applies + summary)", len(sink.successes))
	}
	if len(sink.issues) != 1 {
		t.Errorf("issue observations = %d, want 1", len(sink.issues))
	}
}

func TestRunSurvivesSinkFailures(t *testing.T) {
	cp := &fakeControlPlane{}
	sink := &countingSink{failWith: errors.New("sink unavailable")}
	o := NewOrchestrator(cp, WithSink(sink))

	run := o.Run(context.Background(), stack(4))
	if !run.Success {
		t.Fatalf("sink failures must never affect run correctness")
	}
	if len(run.Results) != 4 {
		t.Fatalf("result log length = %d, want 4", len(run.Results))
	}
}

func TestRunMonitorsOnlyMonitorableResources(t *testing.T) {
	resources := []Descriptor{
		{Kind: "ResourceGroup", Name: "rg", SequencePosition: 0},
		{Kind: "ManagedCluster", Name: "prod", Namespace: "azure-system", SequencePosition: 1, Monitorable: true},
	}
	polled := 0
	cp := &fakeControlPlane{statusFn: func(int) (*ResourceState, error) {
		polled++
		return readyState("provisioned"), nil
	}}
	o := NewOrchestrator(cp, WithPoller(NewPoller(cp, WithPollInterval(time.Millisecond))))

	run := o.Run(context.Background(), resources)
	if polled != 1 {
		t.Errorf("status queries = %d, want 1 (only the monitorable resource is polled)", polled)
	}
	if got := run.Results[1].Confidence; got != ConfidenceConfirmed {
		t.Errorf("confidence = %q, want confirmed", got)
	}
	if got := run.Results[1].Queries; got != 1 {
		t.Errorf("recorded queries = %d, want 1", got)
	}
	if run.Results[0].Queries != 0 {
		t.Errorf("unpolled resource recorded %d queries, want 0", run.Results[0].Queries)
	}
}

func TestRunRecordsTimeoutAsNotMonitored(t *testing.T) {
	resources := []Descriptor{
		{Kind: "Extension", Name: "flux", Namespace: "azure-system", SequencePosition: 0, Monitorable: true},
	}
	cp := &fakeControlPlane{statusFn: func(int) (*ResourceState, error) {
		return notReadyState("installing"), nil
	}}
	sink := &countingSink{}
	o := NewOrchestrator(cp,
		WithSink(sink),
		WithPoller(NewPoller(cp, WithPollInterval(time.Millisecond))),
		WithTimeoutPolicy(TimeoutPolicy{Default: 5 * time.Millisecond}),
	)

	run := o.Run(context.Background(), resources)

	res := run.Results[0]
	if !res.Deployed {
		t.Fatalf("apply succeeded, resource must be marked deployed")
	}
	if res.Monitored {
		t.Errorf("timed-out resource must not be marked monitored")
	}
	// Overall success follows deployed flags only.
	if !run.Success {
		t.Errorf("run success = false, want true")
	}
	if len(sink.issues) == 0 {
		t.Errorf("timeout must record an issue observation")
	}
}

func TestRunRecoversFromPanicInsideStep(t *testing.T) {
	resources := stack(3)
	cp := &panickyControlPlane{inner: &fakeControlPlane{}, panicOn: "identity-1"}
	o := NewOrchestrator(cp)

	run := o.Run(context.Background(), resources)

	if len(run.Results) != 3 {
		t.Fatalf("result log length = %d, want 3 (panic must not abort the sequence)", len(run.Results))
	}
	if run.Results[1].Deployed {
		t.Errorf("panicked step marked deployed")
	}
	if !run.Results[0].Deployed || !run.Results[2].Deployed {
		t.Errorf("resources around the panicked step must still deploy")
	}
	if run.Applies[1].ErrorCode != ErrCodePanic {
		t.Errorf("panicked apply code = %q, want %q", run.Applies[1].ErrorCode, ErrCodePanic)
	}
}

type panickyControlPlane struct {
	inner   *fakeControlPlane
	panicOn string
}

func (p *panickyControlPlane) Apply(ctx context.Context, d *Descriptor) error {
	if d.Name == p.panicOn {
		panic("nil map write in descriptor codec")
	}
	return p.inner.Apply(ctx, d)
}

func (p *panickyControlPlane) GetStatus(ctx context.Context, kind, name, ns string) (*ResourceState, error) {
	return p.inner.GetStatus(ctx, kind, name, ns)
}

func TestTimeoutPolicyResolution(t *testing.T) {
	policy := DefaultTimeoutPolicy()

	cases := []struct {
		kind string
		want time.Duration
	}{
		{"ManagedCluster", 1800 * time.Second},
		{"managedcluster", 1800 * time.Second},
		{"Extension", 600 * time.Second},
		{"UserAssignedIdentity", 300 * time.Second},
		{"", 300 * time.Second},
	}
	for _, tc := range cases {
		if got := policy.Resolve(tc.kind); got != tc.want {
			t.Errorf("Resolve(%q) = %s, want %s", tc.kind, got, tc.want)
		}
	}

	// A zero-value policy still never errors.
	var zero TimeoutPolicy
	if got := zero.Resolve("anything"); got != DefaultTimeout {
		t.Errorf("zero policy Resolve = %s, want default %s", got, DefaultTimeout)
	}
}

func TestClusterBudgetYieldsSixtyQueries(t *testing.T) {
	// 1800s budget with a 30s tick is 60 queries; scaled to milliseconds
	// the same ratio must hold.
	cp := &fakeControlPlane{statusFn: func(int) (*ResourceState, error) {
		return notReadyState("provisioning"), nil
	}}
	p := NewPoller(cp, WithPollInterval(30*time.Millisecond))

	res := p.Poll(context.Background(), testDescriptor(), 1800*time.Millisecond)
	if res.Queries != 60 {
		t.Errorf("queries = %d, want 60", res.Queries)
	}
}

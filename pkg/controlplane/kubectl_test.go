package controlplane

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openrollout/openrollout/pkg/engine"
)

// fakeRunner replays scripted command results.
type fakeRunner struct {
	calls  [][]string
	stdout []byte
	err    error
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.stdout, f.err
}

func newTestClient(r *fakeRunner) *KubectlClient {
	return NewKubectlClient(Options{Runner: r})
}

func TestApplyUsesDescriptorSourceFile(t *testing.T) {
	runner := &fakeRunner{stdout: []byte("managedcluster.containerservice.azure.com/prod created")}
	client := newTestClient(runner)

	d := &engine.Descriptor{Kind: "ManagedCluster", Name: "prod", SourceFile: "stack/cluster.yaml"}
	if err := client.Apply(context.Background(), d); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("commands run = %d, want 1", len(runner.calls))
	}
	got := strings.Join(runner.calls[0], " ")
	if got != "kubectl apply -f stack/cluster.yaml" {
		t.Errorf("command = %q", got)
	}
}

func TestApplyRejectsDescriptorWithoutSourceFile(t *testing.T) {
	client := newTestClient(&fakeRunner{})

	err := client.Apply(context.Background(), &engine.Descriptor{Kind: "ResourceGroup", Name: "rg"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var de *engine.DeployError
	if !errors.As(err, &de) || de.Code != engine.ErrCodeValidation {
		t.Errorf("error = %v, want code %s", err, engine.ErrCodeValidation)
	}
}

func TestApplyClassifiesRejectionAsPermanent(t *testing.T) {
	runner := &fakeRunner{err: errors.New(`kubectl: error validating "stack/cluster.yaml": unknown field "spec.wrong"`)}
	client := newTestClient(runner)

	err := client.Apply(context.Background(), &engine.Descriptor{
		Kind: "ManagedCluster", Name: "prod", SourceFile: "stack/cluster.yaml",
	})
	if !engine.IsPermanent(err) {
		t.Errorf("apply rejection must be permanent, got %v", err)
	}
}

func TestGetStatusParsesConditions(t *testing.T) {
	runner := &fakeRunner{stdout: []byte(`{
		"apiVersion": "containerservice.azure.com/v1api20231001",
		"kind": "ManagedCluster",
		"status": {
			"conditions": [
				{"type": "Synced", "status": "True"},
				{"type": "Ready", "status": "False", "reason": "Provisioning", "message": "scaling node pool"}
			]
		}
	}`)}
	client := newTestClient(runner)

	state, err := client.GetStatus(context.Background(), "ManagedCluster", "prod", "azure-system")
	if err != nil {
		t.Fatalf("get status failed: %v", err)
	}

	cond, found := state.Ready()
	if !found {
		t.Fatalf("Ready condition not parsed from payload")
	}
	if cond.Status != engine.ConditionFalse || cond.Message != "scaling node pool" {
		t.Errorf("condition = %+v", cond)
	}

	got := strings.Join(runner.calls[0], " ")
	if got != "kubectl get ManagedCluster prod -o json -n azure-system" {
		t.Errorf("command = %q", got)
	}
}

func TestGetStatusClassifiesNotFoundAsTransient(t *testing.T) {
	runner := &fakeRunner{err: errors.New(`kubectl: Error from server (NotFound): managedclusters.containerservice.azure.com "prod" not found`)}
	client := newTestClient(runner)

	_, err := client.GetStatus(context.Background(), "ManagedCluster", "prod", "azure-system")
	if !engine.IsNotFound(err) {
		t.Errorf("missing resource must classify as not-found, got %v", err)
	}
	if !engine.IsTransient(err) {
		t.Errorf("not-found must be transient (not-yet-ready), got %v", err)
	}
}

func TestGetStatusClassifiesUnknownKindAsIntrospectionFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New(`kubectl: error: the server doesn't have a resource type "federatedidentitycredentials"`)}
	client := newTestClient(runner)

	_, err := client.GetStatus(context.Background(), "FederatedIdentityCredential", "fic", "azure-system")
	if !engine.IsIntrospection(err) {
		t.Errorf("unknown kind must classify as introspection failure, got %v", err)
	}
}

func TestGetStatusToleratesMalformedPayload(t *testing.T) {
	runner := &fakeRunner{stdout: []byte(`{"status": `)}
	client := newTestClient(runner)

	_, err := client.GetStatus(context.Background(), "ManagedCluster", "prod", "")
	if !engine.IsTransient(err) {
		t.Errorf("malformed payload must be transient, got %v", err)
	}
}

func TestKubeContextIsPrepended(t *testing.T) {
	runner := &fakeRunner{stdout: []byte(`{}`)}
	client := NewKubectlClient(Options{Runner: runner, Context: "prod-admin"})

	_, _ = client.GetStatus(context.Background(), "Extension", "flux", "azure-system")

	got := strings.Join(runner.calls[0], " ")
	if !strings.HasPrefix(got, "kubectl --context prod-admin get") {
		t.Errorf("command = %q, want --context first", got)
	}
}

func TestRawGetPassesArgsThrough(t *testing.T) {
	runner := &fakeRunner{stdout: []byte(`{"items": []}`)}
	client := newTestClient(runner)

	out, err := client.Get(context.Background(), "pods", "-n", "istio-system", "-o", "json")
	if err != nil {
		t.Fatalf("raw get failed: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected stdout passthrough")
	}
	got := strings.Join(runner.calls[0], " ")
	if got != "kubectl get pods -n istio-system -o json" {
		t.Errorf("command = %q", got)
	}
}

package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openrollout/openrollout/pkg/engine"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}
	return e
}

func cleanStack() []engine.Descriptor {
	return []engine.Descriptor{
		{Kind: "ResourceGroup", Name: "rg-prod", SequencePosition: 0},
		{Kind: "UserAssignedIdentity", Name: "cluster-identity", Namespace: "azure-system", SequencePosition: 1},
		{Kind: "ManagedCluster", Name: "prod", Namespace: "azure-system", SequencePosition: 2, Monitorable: true},
	}
}

func TestBuiltinPoliciesCompile(t *testing.T) {
	e := newTestEngine(t)

	policies := e.ListPolicies()
	if len(policies) != len(GetBuiltinPolicies()) {
		t.Fatalf("policies = %d, want %d", len(policies), len(GetBuiltinPolicies()))
	}
}

func TestEvaluateAllowsCleanStack(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.Evaluate(context.Background(), cleanStack())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("clean stack rejected: %+v", result.Violations)
	}
}

func TestEvaluateRejectsUppercaseName(t *testing.T) {
	e := newTestEngine(t)
	stack := cleanStack()
	stack[0].Name = "RG-Prod"

	result, err := e.Evaluate(context.Background(), stack)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Fatalf("uppercase name must block the stack")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "resource-naming" && v.Severity == SeverityError {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a resource-naming violation, got %+v", result.Violations)
	}
}

func TestEvaluateRequiresNamespaceOnMonitorableResources(t *testing.T) {
	e := newTestEngine(t)
	stack := cleanStack()
	stack[2].Namespace = ""

	result, err := e.Evaluate(context.Background(), stack)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Errorf("monitorable resource without namespace must block the stack")
	}
}

func TestSequenceWarningDoesNotBlock(t *testing.T) {
	e := newTestEngine(t)
	stack := []engine.Descriptor{
		{Kind: "ManagedCluster", Name: "prod", Namespace: "azure-system", SequencePosition: 0, Monitorable: true},
		{Kind: "UserAssignedIdentity", Name: "cluster-identity", Namespace: "azure-system", SequencePosition: 1},
	}

	result, err := e.Evaluate(context.Background(), stack)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("warning-level violations must not block: %+v", result.Violations)
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "sequence-order" && v.Severity == SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a sequence-order warning, got %+v", result.Violations)
	}
}

func TestEvaluateReportsViolationsInStableOrder(t *testing.T) {
	e := newTestEngine(t)
	stack := cleanStack()
	stack[2].Name = "Prod-Cluster"
	stack[2].Namespace = ""

	first, err := e.Evaluate(context.Background(), stack)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(first.Violations) < 2 {
		t.Fatalf("violations = %d, want at least 2 (naming and namespace)", len(first.Violations))
	}
	for i := 1; i < len(first.Violations); i++ {
		if first.Violations[i-1].Policy > first.Violations[i].Policy {
			t.Fatalf("violations not ordered by policy name: %s after %s",
				first.Violations[i].Policy, first.Violations[i-1].Policy)
		}
	}

	second, err := e.Evaluate(context.Background(), stack)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(second.Violations) != len(first.Violations) {
		t.Fatalf("violation count changed between runs: %d vs %d", len(first.Violations), len(second.Violations))
	}
	for i := range first.Violations {
		if first.Violations[i].Policy != second.Violations[i].Policy {
			t.Errorf("violation %d: %s vs %s (order must be stable across runs)",
				i, first.Violations[i].Policy, second.Violations[i].Policy)
		}
	}
}

func TestLoadPoliciesFromDirectory(t *testing.T) {
	dir := t.TempDir()
	rego := `package openrollout.policies.custom

import rego.v1

# Deny any kind named forbidden.
deny contains violation if {
	input.resource.kind == "Forbidden"
	violation := {
		"message": "forbidden kind",
		"severity": "error",
	}
}`
	if err := os.WriteFile(filepath.Join(dir, "custom.rego"), []byte(rego), 0o644); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine(t)
	if err := e.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("failed to load policies: %v", err)
	}

	if _, err := e.GetPolicy("custom"); err != nil {
		t.Fatalf("custom policy not registered: %v", err)
	}

	stack := []engine.Descriptor{{Kind: "Forbidden", Name: "bad", SequencePosition: 0}}
	result, err := e.Evaluate(context.Background(), stack)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Errorf("custom policy must reject the stack")
	}
}

func TestDisablePolicySkipsEvaluation(t *testing.T) {
	e := newTestEngine(t)
	if err := e.DisablePolicy("resource-naming"); err != nil {
		t.Fatalf("failed to disable: %v", err)
	}

	stack := cleanStack()
	stack[0].Name = "RG-Prod"

	result, err := e.Evaluate(context.Background(), stack)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("disabled policy must not produce violations: %+v", result.Violations)
	}
}

package checks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// itemList is the generic shape of a kubectl list response. Only the fields
// the checks read are declared.
type itemList struct {
	Items []item `json:"items"`
}

type item struct {
	Metadata struct {
		Name      string            `json:"name"`
		Namespace string            `json:"namespace"`
		Labels    map[string]string `json:"labels"`
	} `json:"metadata"`
	Spec struct {
		Containers []struct {
			Name string `json:"name"`
		} `json:"containers"`
		MTLS struct {
			Mode string `json:"mode"`
		} `json:"mtls"`
	} `json:"spec"`
	Status struct {
		Phase      string `json:"phase"`
		Conditions []struct {
			Type   string `json:"type"`
			Status string `json:"status"`
		} `json:"conditions"`
		ContainerStatuses []struct {
			Name  string `json:"name"`
			Ready bool   `json:"ready"`
		} `json:"containerStatuses"`
	} `json:"status"`
}

// requiredCRDs are the custom resource definitions the stack depends on.
var requiredCRDs = []string{
	"virtualservices.networking.istio.io",
	"destinationrules.networking.istio.io",
	"gateways.networking.istio.io",
	"peerauthentications.security.istio.io",
	"authorizationpolicies.security.istio.io",
	"clusterissuers.cert-manager.io",
	"certificates.cert-manager.io",
}

func (s *Suite) list(ctx context.Context, args ...string) (*itemList, error) {
	out, err := s.querier.Get(ctx, append(args, "-o", "json")...)
	if err != nil {
		return nil, err
	}
	var list itemList
	if err := json.Unmarshal(out, &list); err != nil {
		return nil, fmt.Errorf("malformed list payload: %w", err)
	}
	return &list, nil
}

// controlPlaneHealth verifies every mesh control-plane pod is running with
// all containers ready.
func (s *Suite) controlPlaneHealth(ctx context.Context) Outcome {
	const name = "control-plane-health"

	pods, err := s.list(ctx, "pods", "-n", s.config.MeshNamespace)
	if err != nil {
		return fail(name, err.Error(), Finding{
			Severity:    SeverityCritical,
			Type:        "control-plane-unreachable",
			Description: fmt.Sprintf("cannot list pods in %s: %v", s.config.MeshNamespace, err),
			Remediation: "verify cluster connectivity and mesh installation",
		})
	}
	if len(pods.Items) == 0 {
		return fail(name, "no control-plane pods found", Finding{
			Severity:    SeverityCritical,
			Type:        "control-plane-missing",
			Description: fmt.Sprintf("no pods in namespace %s", s.config.MeshNamespace),
			Remediation: "install the mesh control plane",
		})
	}

	var unhealthy []string
	for _, pod := range pods.Items {
		if pod.Status.Phase != "Running" {
			unhealthy = append(unhealthy, fmt.Sprintf("%s (%s)", pod.Metadata.Name, pod.Status.Phase))
			continue
		}
		for _, cs := range pod.Status.ContainerStatuses {
			if !cs.Ready {
				unhealthy = append(unhealthy, fmt.Sprintf("%s (%s not ready)", pod.Metadata.Name, cs.Name))
				break
			}
		}
	}
	if len(unhealthy) > 0 {
		return fail(name, strings.Join(unhealthy, ", "), Finding{
			Severity:    SeverityCritical,
			Type:        "control-plane-degraded",
			Description: fmt.Sprintf("%d unhealthy control-plane pods: %s", len(unhealthy), strings.Join(unhealthy, ", ")),
			Remediation: "inspect pod logs and events in the mesh namespace",
		})
	}
	return pass(name, fmt.Sprintf("%d control-plane pods healthy", len(pods.Items)))
}

// sidecarInjection verifies that at least the configured fraction of
// workload pods carry an injected proxy container.
func (s *Suite) sidecarInjection(ctx context.Context) Outcome {
	const name = "sidecar-injection"

	pods, err := s.list(ctx, "pods", "-n", s.config.AppNamespace)
	if err != nil {
		return fail(name, err.Error(), Finding{
			Severity:    SeverityHigh,
			Type:        "injection-unknown",
			Description: fmt.Sprintf("cannot list pods in %s: %v", s.config.AppNamespace, err),
		})
	}
	if len(pods.Items) == 0 {
		return pass(name, "no workload pods to verify")
	}

	injected := 0
	for _, pod := range pods.Items {
		for _, c := range pod.Spec.Containers {
			if c.Name == "istio-proxy" {
				injected++
				break
			}
		}
	}

	rate := float64(injected) / float64(len(pods.Items))
	details := fmt.Sprintf("%d/%d pods injected (%.0f%%)", injected, len(pods.Items), rate*100)
	if rate < s.config.InjectionThreshold {
		return fail(name, details, Finding{
			Severity:    SeverityHigh,
			Type:        "injection-below-threshold",
			Description: details,
			Remediation: "label the namespace for injection and restart uninjected workloads",
		})
	}
	return pass(name, details)
}

// crdPresence verifies every required CRD is registered.
func (s *Suite) crdPresence(ctx context.Context) Outcome {
	const name = "crd-presence"

	crds, err := s.list(ctx, "crd")
	if err != nil {
		return fail(name, err.Error(), Finding{
			Severity:    SeverityCritical,
			Type:        "crd-unknown",
			Description: fmt.Sprintf("cannot list CRDs: %v", err),
		})
	}

	present := make(map[string]bool, len(crds.Items))
	for _, crd := range crds.Items {
		present[crd.Metadata.Name] = true
	}

	var missing []string
	for _, want := range requiredCRDs {
		if !present[want] {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return fail(name, "missing: "+strings.Join(missing, ", "), Finding{
			Severity:    SeverityCritical,
			Type:        "crd-missing",
			Description: fmt.Sprintf("%d required CRDs missing: %s", len(missing), strings.Join(missing, ", ")),
			Remediation: "install the mesh and cert-manager CRDs",
		})
	}
	return pass(name, fmt.Sprintf("all %d required CRDs present", len(requiredCRDs)))
}

// clusterIssuers verifies every ClusterIssuer reports Ready.
func (s *Suite) clusterIssuers(ctx context.Context) Outcome {
	const name = "cluster-issuers"

	issuers, err := s.list(ctx, "clusterissuers")
	if err != nil {
		return fail(name, err.Error(), Finding{
			Severity:    SeverityHigh,
			Type:        "issuers-unknown",
			Description: fmt.Sprintf("cannot list cluster issuers: %v", err),
		})
	}
	if len(issuers.Items) == 0 {
		return fail(name, "no cluster issuers configured", Finding{
			Severity:    SeverityHigh,
			Type:        "issuers-missing",
			Description: "no ClusterIssuer resources found",
			Remediation: "create issuers for certificate provisioning",
		})
	}

	var notReady []string
	for _, issuer := range issuers.Items {
		ready := false
		for _, cond := range issuer.Status.Conditions {
			if cond.Type == "Ready" && cond.Status == "True" {
				ready = true
				break
			}
		}
		if !ready {
			notReady = append(notReady, issuer.Metadata.Name)
		}
	}
	if len(notReady) > 0 {
		return fail(name, "not ready: "+strings.Join(notReady, ", "), Finding{
			Severity:    SeverityHigh,
			Type:        "issuers-not-ready",
			Description: fmt.Sprintf("cluster issuers not ready: %s", strings.Join(notReady, ", ")),
			Remediation: "check ACME account registration and solver configuration",
		})
	}
	return pass(name, fmt.Sprintf("%d cluster issuers ready", len(issuers.Items)))
}

// mtlsStrict verifies the mesh-wide peer authentication enforces STRICT
// mutual TLS.
func (s *Suite) mtlsStrict(ctx context.Context) Outcome {
	const name = "mtls-strict"

	peers, err := s.list(ctx, "peerauthentication", "-n", s.config.MeshNamespace)
	if err != nil {
		return fail(name, err.Error(), Finding{
			Severity:    SeverityMedium,
			Type:        "mtls-unknown",
			Description: fmt.Sprintf("cannot list peer authentications: %v", err),
		})
	}

	for _, peer := range peers.Items {
		if peer.Spec.MTLS.Mode == "STRICT" {
			return pass(name, fmt.Sprintf("strict mTLS enforced by %s", peer.Metadata.Name))
		}
	}
	return fail(name, "no STRICT peer authentication in mesh namespace", Finding{
		Severity:    SeverityMedium,
		Type:        "mtls-permissive",
		Description: "mesh-wide mutual TLS is not enforced in STRICT mode",
		Remediation: "apply a mesh-wide PeerAuthentication with mode STRICT",
	})
}

// authorizationPolicies verifies that at least one authorization policy
// restricts traffic.
func (s *Suite) authorizationPolicies(ctx context.Context) Outcome {
	const name = "authorization-policies"

	policies, err := s.list(ctx, "authorizationpolicies", "-A")
	if err != nil {
		return fail(name, err.Error(), Finding{
			Severity:    SeverityHigh,
			Type:        "authz-unknown",
			Description: fmt.Sprintf("cannot list authorization policies: %v", err),
		})
	}
	if len(policies.Items) == 0 {
		return fail(name, "no authorization policies found", Finding{
			Severity:    SeverityHigh,
			Type:        "authz-missing",
			Description: "mesh traffic is not restricted by any AuthorizationPolicy",
			Remediation: "define default-deny policies per namespace",
		})
	}
	return pass(name, fmt.Sprintf("%d authorization policies found", len(policies.Items)))
}

// serviceEntries reports on external service registrations.
func (s *Suite) serviceEntries(ctx context.Context) Outcome {
	const name = "service-entries"

	entries, err := s.list(ctx, "serviceentries", "-A")
	if err != nil {
		return fail(name, err.Error(), Finding{
			Severity:    SeverityLow,
			Type:        "serviceentries-unknown",
			Description: fmt.Sprintf("cannot list service entries: %v", err),
		})
	}
	if len(entries.Items) == 0 {
		return Outcome{
			Name:    name,
			Passed:  true,
			Details: "no service entries declared",
			Findings: []Finding{{
				Severity:    SeverityLow,
				Type:        "serviceentries-none",
				Description: "no external services registered; outbound traffic may be unmanaged",
			}},
		}
	}
	return pass(name, fmt.Sprintf("%d service entries declared", len(entries.Items)))
}

// destinationRules verifies traffic policy objects exist for the workloads.
func (s *Suite) destinationRules(ctx context.Context) Outcome {
	const name = "destination-rules"

	rules, err := s.list(ctx, "destinationrules", "-n", s.config.AppNamespace)
	if err != nil {
		return fail(name, err.Error(), Finding{
			Severity:    SeverityLow,
			Type:        "destinationrules-unknown",
			Description: fmt.Sprintf("cannot list destination rules: %v", err),
		})
	}
	if len(rules.Items) == 0 {
		return fail(name, "no destination rules in workload namespace", Finding{
			Severity:    SeverityLow,
			Type:        "destinationrules-missing",
			Description: fmt.Sprintf("no DestinationRule resources in %s", s.config.AppNamespace),
			Remediation: "define subsets and traffic policy for workload services",
		})
	}
	return pass(name, fmt.Sprintf("%d destination rules found", len(rules.Items)))
}

// certificateReadiness verifies every Certificate has been issued.
func (s *Suite) certificateReadiness(ctx context.Context) Outcome {
	const name = "certificate-readiness"

	certs, err := s.list(ctx, "certificates", "-A")
	if err != nil {
		return fail(name, err.Error(), Finding{
			Severity:    SeverityHigh,
			Type:        "certificates-unknown",
			Description: fmt.Sprintf("cannot list certificates: %v", err),
		})
	}
	if len(certs.Items) == 0 {
		return pass(name, "no certificates requested")
	}

	var notReady []string
	for _, cert := range certs.Items {
		ready := false
		for _, cond := range cert.Status.Conditions {
			if cond.Type == "Ready" && cond.Status == "True" {
				ready = true
				break
			}
		}
		if !ready {
			notReady = append(notReady, cert.Metadata.Namespace+"/"+cert.Metadata.Name)
		}
	}
	if len(notReady) > 0 {
		return fail(name, "not issued: "+strings.Join(notReady, ", "), Finding{
			Severity:    SeverityHigh,
			Type:        "certificates-not-ready",
			Description: fmt.Sprintf("certificates not issued: %s", strings.Join(notReady, ", ")),
			Remediation: "check challenges and DNS records for the pending certificates",
		})
	}
	return pass(name, fmt.Sprintf("%d certificates issued", len(certs.Items)))
}

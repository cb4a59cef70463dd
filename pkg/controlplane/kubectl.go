package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openrollout/openrollout/pkg/engine"
)

// KubectlClient talks to the control plane by shelling out to kubectl.
// It implements engine.ControlPlane and the checks.Querier used by the
// verification suite.
type KubectlClient struct {
	kubectl string
	kubeCtx string
	runner  CommandRunner
	logger  zerolog.Logger
}

// NewKubectlClient creates a kubectl-backed client.
func NewKubectlClient(opts Options) *KubectlClient {
	opts.defaults()
	return &KubectlClient{
		kubectl: opts.Kubectl,
		kubeCtx: opts.Context,
		runner:  opts.Runner,
		logger:  opts.Logger,
	}
}

// Apply submits the descriptor's source file via kubectl apply. Acceptance
// does not imply readiness.
func (c *KubectlClient) Apply(ctx context.Context, d *engine.Descriptor) error {
	if d.SourceFile == "" {
		return engine.NewPermanentError("descriptor has no source file", nil).
			WithCode(engine.ErrCodeValidation).
			WithResource(d.ID())
	}

	c.logger.Debug().Str("file", d.SourceFile).Str("resource", d.ID()).Msg("kubectl apply")

	out, err := c.run(ctx, "apply", "-f", d.SourceFile)
	if err != nil {
		return engine.NewPermanentError("apply rejected by control plane", err).
			WithCode(engine.ErrCodeApplyFailed).
			WithResource(d.ID())
	}

	c.logger.Debug().Str("output", strings.TrimSpace(string(out))).Msg("Applied")
	return nil
}

// statusPayload is the slice of the kubectl get -o json output the poller
// needs. Everything else in the object is ignored.
type statusPayload struct {
	Status struct {
		Conditions []engine.Condition `json:"conditions"`
	} `json:"status"`
}

// GetStatus queries the live status conditions for a resource. Missing
// resources classify as transient not-found; kinds the apiserver does not
// know classify as introspection failures.
func (c *KubectlClient) GetStatus(ctx context.Context, kind, name, namespace string) (*engine.ResourceState, error) {
	args := []string{"get", kind, name, "-o", "json"}
	if namespace != "" {
		args = append(args, "-n", namespace)
	}

	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, classifyQueryError(err, kind+"/"+name)
	}

	var payload statusPayload
	if err := json.Unmarshal(out, &payload); err != nil {
		return nil, engine.NewTransientError("malformed status payload", err).
			WithCode(engine.ErrCodeQueryFailed).
			WithResource(kind + "/" + name)
	}

	return &engine.ResourceState{Conditions: payload.Status.Conditions}, nil
}

// Get runs an arbitrary kubectl get and returns the raw stdout. The
// verification suite uses it for queries the typed status path does not
// cover.
func (c *KubectlClient) Get(ctx context.Context, args ...string) ([]byte, error) {
	out, err := c.run(ctx, append([]string{"get"}, args...)...)
	if err != nil {
		return nil, classifyQueryError(err, strings.Join(args, " "))
	}
	return out, nil
}

func (c *KubectlClient) run(ctx context.Context, args ...string) ([]byte, error) {
	if c.kubeCtx != "" {
		args = append([]string{"--context", c.kubeCtx}, args...)
	}
	return c.runner.Output(ctx, c.kubectl, args...)
}

// classifyQueryError maps kubectl stderr text onto the engine's error
// classes. The distinction matters: a momentarily missing resource is
// not-yet-ready, an unknown kind can never be polled.
func classifyQueryError(err error, resource string) error {
	text := err.Error()
	switch {
	case strings.Contains(text, "doesn't have a resource type"),
		strings.Contains(text, "the server could not find the requested resource"):
		return engine.NewDegradedError("kind is not served by the control plane", err).
			WithCode(engine.ErrCodeIntrospection).
			WithResource(resource)
	case strings.Contains(text, "NotFound"), strings.Contains(text, "not found"):
		return engine.NewTransientError("resource not found", err).
			WithCode(engine.ErrCodeNotFound).
			WithResource(resource)
	default:
		return engine.NewTransientError(fmt.Sprintf("status query failed for %s", resource), err).
			WithCode(engine.ErrCodeQueryFailed)
	}
}

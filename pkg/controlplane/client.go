// Package controlplane provides the kubectl-backed implementation of the
// engine's ControlPlane interface, plus raw query access for the
// verification check suite.
package controlplane

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// CommandRunner executes an external command and returns its stdout.
// Implementations must fold stderr into the returned error on failure.
type CommandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

// Output implements CommandRunner.
func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return stdout.Bytes(), fmt.Errorf("%s: %s", name, msg)
	}
	return stdout.Bytes(), nil
}

// Options configures a Client.
type Options struct {
	// Kubectl is the kubectl binary path. Defaults to "kubectl".
	Kubectl string

	// Context is the kubeconfig context to target, if any.
	Context string

	// Runner executes commands. Defaults to ExecRunner.
	Runner CommandRunner

	// Logger is the client logger.
	Logger zerolog.Logger
}

func (o *Options) defaults() {
	if o.Kubectl == "" {
		o.Kubectl = "kubectl"
	}
	if o.Runner == nil {
		o.Runner = ExecRunner{}
	}
}

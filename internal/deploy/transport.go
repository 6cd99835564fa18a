package deploy

import (
	"bytes"
	"context"
	"os/exec"
)

// ClusterTransport applies an assembled manifest document to the cluster.
// Stdout and stderr are returned separately: the reconciler surfaces stdout
// lines as events and treats any stderr output as a hard failure.
type ClusterTransport interface {
	Apply(ctx context.Context, manifestPath string) (stdout, stderr string, err error)
}

// KubectlTransport shells out to kubectl apply. The binary owns its own
// timeouts; the reconciler never interrupts an in-flight apply.
type KubectlTransport struct {
	Binary string   // defaults to "kubectl"
	Args   []string // extra args, e.g. --context or --kubeconfig
}

func (k KubectlTransport) Apply(ctx context.Context, manifestPath string) (string, string, error) {
	binary := k.Binary
	if binary == "" {
		binary = "kubectl"
	}
	args := append([]string{"apply", "-f", manifestPath}, k.Args...)

	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

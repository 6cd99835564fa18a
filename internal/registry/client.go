package registry

import (
	"context"
	"io"

	buildtypes "github.com/docker/docker/api/types/build"
	imagetypes "github.com/docker/docker/api/types/image"
	registrytypes "github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
)

// Client is the slice of the container engine API the publisher needs:
// an existence probe, a tar-stream image build, and a push.
type Client interface {
	DistributionInspect(ctx context.Context, image, encodedRegistryAuth string) (registrytypes.DistributionInspect, error)
	ImageBuild(ctx context.Context, buildContext io.Reader, options buildtypes.ImageBuildOptions) (buildtypes.ImageBuildResponse, error)
	ImagePush(ctx context.Context, image string, options imagetypes.PushOptions) (io.ReadCloser, error)
}

// NewDockerClient connects to the local container engine using the standard
// environment variables, negotiating the API version with the daemon.
func NewDockerClient() (*client.Client, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

package registry

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cerrdefs "github.com/containerd/errdefs"
	buildtypes "github.com/docker/docker/api/types/build"
	imagetypes "github.com/docker/docker/api/types/image"
	registrytypes "github.com/docker/docker/api/types/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/shipwright/internal/artifact"
	"git.home.luguber.info/inful/shipwright/internal/build"
	"git.home.luguber.info/inful/shipwright/internal/config"
	"git.home.luguber.info/inful/shipwright/internal/errors"
	"git.home.luguber.info/inful/shipwright/internal/pipeline"
)

type fakeClient struct {
	existing   map[string]bool // image ref -> present at registry
	probeErr   error
	buildErr   error
	pushStream string
	pushErr    error

	probed []string
	built  []string
	pushed []string
}

func (f *fakeClient) DistributionInspect(_ context.Context, image, _ string) (registrytypes.DistributionInspect, error) {
	f.probed = append(f.probed, image)
	if f.probeErr != nil {
		return registrytypes.DistributionInspect{}, f.probeErr
	}
	if f.existing[image] {
		return registrytypes.DistributionInspect{}, nil
	}
	return registrytypes.DistributionInspect{}, cerrdefs.ErrNotFound
}

func (f *fakeClient) ImageBuild(_ context.Context, buildContext io.Reader, options buildtypes.ImageBuildOptions) (buildtypes.ImageBuildResponse, error) {
	if f.buildErr != nil {
		return buildtypes.ImageBuildResponse{}, f.buildErr
	}
	f.built = append(f.built, options.Tags...)
	_, _ = io.Copy(io.Discard, buildContext)
	return buildtypes.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(`{"stream":"ok"}`))}, nil
}

func (f *fakeClient) ImagePush(_ context.Context, image string, _ imagetypes.PushOptions) (io.ReadCloser, error) {
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	f.pushed = append(f.pushed, image)
	stream := f.pushStream
	if stream == "" {
		stream = `{"id":"aa11","status":"Pushing","progressDetail":{"current":50,"total":100}}
{"id":"aa11","status":"Pushed"}
{"id":"bb22","status":"Layer already exists"}`
	}
	return io.NopCloser(strings.NewReader(stream)), nil
}

func testConfig() *config.Config {
	return &config.Config{
		Registry: config.RegistryConfig{
			Host:       "registry.example.com",
			Repository: "platform",
			BaseImage:  "node:22-slim",
			Auth:       []string{"registry.example.com:robot:hunter2"},
		},
	}
}

func writeArtifact(t *testing.T, name, version string) artifact.Located {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, build.OutputFileName), []byte("console.log(1)"), 0o644))
	return artifact.Located{
		Descriptor: artifact.Descriptor{Name: name, Version: version},
		Dir:        dir,
	}
}

func newPublisher(t *testing.T, cfg *config.Config, client Client) (*Publisher, *[]pipeline.Event) {
	t.Helper()
	bus := pipeline.NewBus()
	events := &[]pipeline.Event{}
	bus.SubscribeAll(func(e pipeline.Event) error {
		*events = append(*events, e)
		return nil
	})
	p, err := NewPublisher(cfg, bus, client, "test-run")
	require.NoError(t, err)
	return p, events
}

func eventNames(events []pipeline.Event) []string {
	var names []string
	for _, e := range events {
		names = append(names, e.Name())
	}
	return names
}

func TestPublishSkipsExistingImage(t *testing.T) {
	client := &fakeClient{existing: map[string]bool{
		"registry.example.com/platform/svc-a:abc123def456": true,
	}}
	p, events := newPublisher(t, testConfig(), client)

	outcomes, err := p.Publish(t.Context(), []artifact.Located{writeArtifact(t, "svc-a", "abc123def456")})
	require.NoError(t, err)

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Pushed)
	assert.False(t, outcomes[0].Failed)
	assert.Empty(t, client.built)
	assert.Empty(t, client.pushed)
	assert.Contains(t, eventNames(*events), pipeline.EventImageExists)
	assert.NotContains(t, eventNames(*events), pipeline.EventImagePushStart)
}

func TestPublishBuildsAndPushesAbsentImage(t *testing.T) {
	client := &fakeClient{}
	p, events := newPublisher(t, testConfig(), client)

	outcomes, err := p.Publish(t.Context(), []artifact.Located{writeArtifact(t, "svc-a", "abc123def456")})
	require.NoError(t, err)

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Pushed)
	assert.Equal(t, "registry.example.com/platform/svc-a:abc123def456", outcomes[0].Image)
	assert.Equal(t, []string{"registry.example.com/platform/svc-a:abc123def456"}, client.built)
	assert.Equal(t, []string{"registry.example.com/platform/svc-a:abc123def456"}, client.pushed)

	names := eventNames(*events)
	assert.Equal(t, []string{
		pipeline.EventImagePushStart,
		pipeline.EventPushProgress,
		pipeline.EventPushProgress,
		pipeline.EventPushProgress,
		pipeline.EventImagePushed,
	}, names)
}

func TestPushProgressNormalization(t *testing.T) {
	client := &fakeClient{}
	p, events := newPublisher(t, testConfig(), client)

	_, err := p.Publish(t.Context(), []artifact.Located{writeArtifact(t, "svc-a", "v1abc2def3a4")})
	require.NoError(t, err)

	var progress []pipeline.PushProgress
	for _, e := range *events {
		if pp, ok := e.(pipeline.PushProgress); ok {
			progress = append(progress, pp)
		}
	}
	require.Len(t, progress, 3)
	assert.Equal(t, pipeline.PushStatusPushing, progress[0].Status)
	assert.Equal(t, 50, progress[0].Percent)
	assert.Equal(t, "aa11", progress[0].Layer)
	assert.Equal(t, pipeline.PushStatusPushed, progress[1].Status)
	assert.Equal(t, 100, progress[1].Percent)
	assert.Equal(t, pipeline.PushStatusLayerExists, progress[2].Status)
}

func TestProbeErrorIsNotTreatedAsAbsence(t *testing.T) {
	client := &fakeClient{probeErr: fmt.Errorf("registry rate limit exceeded")}
	p, events := newPublisher(t, testConfig(), client)

	outcomes, err := p.Publish(t.Context(), []artifact.Located{writeArtifact(t, "svc-a", "abc123def456")})
	require.NoError(t, err)

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Failed)
	assert.False(t, outcomes[0].Pushed)
	assert.Empty(t, client.built)
	assert.Contains(t, eventNames(*events), pipeline.EventUnitFailed)
}

func TestPushStreamErrorFailsArtifact(t *testing.T) {
	client := &fakeClient{pushStream: `{"errorDetail":{"message":"blob upload invalid"},"error":"blob upload invalid"}`}
	p, events := newPublisher(t, testConfig(), client)

	outcomes, err := p.Publish(t.Context(), []artifact.Located{writeArtifact(t, "svc-a", "abc123def456")})
	require.NoError(t, err)

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Failed)
	assert.Contains(t, eventNames(*events), pipeline.EventUnitFailed)

	var failed pipeline.UnitFailed
	for _, e := range *events {
		if uf, ok := e.(pipeline.UnitFailed); ok {
			failed = uf
		}
	}
	assert.Contains(t, failed.Err, "blob upload invalid")
}

func TestMissingCredentialsAbortBeforeAnyProbe(t *testing.T) {
	cfg := testConfig()
	cfg.Registry.Auth = []string{"other-registry.example.com:robot:hunter2"}
	client := &fakeClient{}
	p, _ := newPublisher(t, cfg, client)

	_, err := p.Publish(t.Context(), []artifact.Located{writeArtifact(t, "svc-a", "abc123def456")})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAuth))
	assert.Empty(t, client.probed)
}

func TestFailFastStopsAtArtifactBoundary(t *testing.T) {
	cfg := testConfig()
	cfg.FailFast = true
	client := &fakeClient{probeErr: fmt.Errorf("connection refused")}
	p, _ := newPublisher(t, cfg, client)

	outcomes, err := p.Publish(t.Context(), []artifact.Located{
		writeArtifact(t, "svc-a", "abc123def456"),
		writeArtifact(t, "svc-b", "fed321cba654"),
	})
	require.NoError(t, err)
	assert.Len(t, outcomes, 1)
}

func TestParseAuthEntries(t *testing.T) {
	creds, err := ParseAuthEntries([]string{
		"ghcr.io:bot:token",
		"user:pass",
	})
	require.NoError(t, err)

	assert.Equal(t, "bot", creds["ghcr.io"].Username)
	assert.Equal(t, "token", creds["ghcr.io"].Password)
	assert.Equal(t, "user", creds[config.DefaultHost].Username)
	assert.Equal(t, "pass", creds[config.DefaultHost].Password)

	_, err = ParseAuthEntries([]string{"justauser"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAuth))
}

func TestReferenceIsDeterministic(t *testing.T) {
	cfg := testConfig().Registry

	a, err := Reference(cfg, "svc-a", "abc123def456")
	require.NoError(t, err)
	b, err := Reference(cfg, "svc-a", "abc123def456")
	require.NoError(t, err)
	assert.Equal(t, a.String(), b.String())

	c, err := Reference(cfg, "svc-a", "fed321cba654")
	require.NoError(t, err)
	assert.NotEqual(t, a.String(), c.String())
}

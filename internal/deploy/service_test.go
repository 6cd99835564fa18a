package deploy

import (
	"context"
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
	"git.home.luguber.info/inful/shipwright/internal/pipeline"
	"git.home.luguber.info/inful/shipwright/internal/registry"
)

// stubEngine satisfies the registry client with canned existence answers.
type stubEngine struct {
	existing map[string]bool
}

func (s *stubEngine) DistributionInspect(_ context.Context, image, _ string) (registrytypes.DistributionInspect, error) {
	if s.existing[image] {
		return registrytypes.DistributionInspect{}, nil
	}
	return registrytypes.DistributionInspect{}, cerrdefs.ErrNotFound
}

func (s *stubEngine) ImageBuild(_ context.Context, buildContext io.Reader, _ buildtypes.ImageBuildOptions) (buildtypes.ImageBuildResponse, error) {
	_, _ = io.Copy(io.Discard, buildContext)
	return buildtypes.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(""))}, nil
}

func (s *stubEngine) ImagePush(context.Context, string, imagetypes.PushOptions) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(`{"id":"aa11","status":"Pushed"}`)), nil
}

func deployConfig(ws string) *config.Config {
	return &config.Config{
		Workspace: ws,
		Build:     config.BuildConfig{OutputDir: "dist"},
		Registry: config.RegistryConfig{
			Host:       "registry.example.com",
			Repository: "platform",
			BaseImage:  "node:22-slim",
			Auth:       []string{"registry.example.com:robot:hunter2"},
		},
		Deploy: config.DeployConfig{ManifestsDir: "manifests"},
	}
}

func writeBuiltArtifact(t *testing.T, cfg *config.Config, name, version string) {
	t.Helper()
	dir := filepath.Join(cfg.OutputPath(), name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, build.OutputFileName), []byte("console.log(1)"), 0o644))
	require.NoError(t, artifact.Write(dir, artifact.Descriptor{Name: name, Version: version, Fingerprint: "aa"}))
}

func newDeployService(t *testing.T, cfg *config.Config, engine *stubEngine, transport ClusterTransport) *Service {
	t.Helper()
	bus := pipeline.NewBus()
	publisher, err := registry.NewPublisher(cfg, bus, engine, "test-run")
	require.NoError(t, err)
	reconciler := NewReconciler(cfg, bus, mapDiffer{}, transport, "test-run")
	return NewService(cfg, bus, publisher, reconciler, "test-run")
}

func TestDeployPushesAbsentAndSkipsExisting(t *testing.T) {
	cfg := deployConfig(t.TempDir())
	require.NoError(t, os.MkdirAll(cfg.ManifestsPath(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ManifestsPath(), "all.yaml"),
		[]byte("images:\n  - dist/svc-a\n  - dist/svc-b\n"), 0o644))
	writeBuiltArtifact(t, cfg, "svc-a", "abc123def456")
	writeBuiltArtifact(t, cfg, "svc-b", "fed321cba654")

	engine := &stubEngine{existing: map[string]bool{
		"registry.example.com/platform/svc-b:fed321cba654": true,
	}}
	transport := &fakeTransport{}

	res, err := newDeployService(t, cfg, engine, transport).Run(t.Context())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, []string{"svc-a"}, res.Pushed)
	assert.Equal(t, []string{"svc-b"}, res.Skipped)
	assert.Empty(t, res.Failed)

	// svc-a's push dirties the shared fragment; the applied document carries
	// both concrete references.
	require.Len(t, transport.applied, 1)
	assert.Contains(t, transport.applied[0], "registry.example.com/platform/svc-a:abc123def456")
	assert.Contains(t, transport.applied[0], "registry.example.com/platform/svc-b:fed321cba654")
}

func TestDeployWithNothingBuiltIsANoOp(t *testing.T) {
	cfg := deployConfig(t.TempDir())
	transport := &fakeTransport{}

	res, err := newDeployService(t, cfg, &stubEngine{}, transport).Run(t.Context())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Empty(t, res.Pushed)
	assert.Empty(t, transport.applied)
}

func TestDeployIsIdempotent(t *testing.T) {
	cfg := deployConfig(t.TempDir())
	require.NoError(t, os.MkdirAll(cfg.ManifestsPath(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ManifestsPath(), "svc-a.yaml"),
		[]byte("image: dist/svc-a\n"), 0o644))
	writeBuiltArtifact(t, cfg, "svc-a", "abc123def456")

	engine := &stubEngine{existing: map[string]bool{}}
	transport := &fakeTransport{}

	res1, err := newDeployService(t, cfg, engine, transport).Run(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"svc-a"}, res1.Pushed)
	require.Len(t, transport.applied, 1)

	// Second run: the image now exists, history is clean, nothing applies.
	engine.existing = map[string]bool{"registry.example.com/platform/svc-a:abc123def456": true}
	res2, err := newDeployService(t, cfg, engine, transport).Run(t.Context())
	require.NoError(t, err)

	assert.True(t, res2.Success)
	assert.Empty(t, res2.Pushed)
	assert.Equal(t, []string{"svc-a"}, res2.Skipped)
	assert.Len(t, transport.applied, 1)
}

package registry

import (
	"archive/tar"
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/shipwright/internal/artifact"
	"git.home.luguber.info/inful/shipwright/internal/build"
	"git.home.luguber.info/inful/shipwright/internal/errors"
)

// dockerfileTemplate is the minimal service image: the configured runtime
// base layer, the bundled artifact, and environment metadata identifying the
// packaged service.
const dockerfileTemplate = `FROM %s
WORKDIR /app
COPY %s /app/%s
ENV SERVICE_NAME=%s
ENV SERVICE_VERSION=%s
CMD ["node", "/app/%s"]
`

// buildContext assembles the in-memory tar stream fed to the image build:
// a generated Dockerfile plus the artifact's bundle.
func buildContext(baseImage string, located artifact.Located) (*bytes.Buffer, error) {
	bundlePath := filepath.Join(located.Dir, build.OutputFileName)
	bundleBytes, err := os.ReadFile(bundlePath)
	if err != nil {
		return nil, errors.ImageBuildFailed(located.Name, fmt.Errorf("read bundle %s: %w", bundlePath, err))
	}

	dockerfile := fmt.Sprintf(dockerfileTemplate,
		baseImage,
		build.OutputFileName, build.OutputFileName,
		located.Name,
		located.Version,
		build.OutputFileName)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	files := []struct {
		name    string
		content []byte
	}{
		{"Dockerfile", []byte(dockerfile)},
		{build.OutputFileName, bundleBytes},
	}
	for _, f := range files {
		hdr := &tar.Header{
			Name: f.name,
			Mode: 0o600,
			Size: int64(len(f.content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, errors.ImageBuildFailed(located.Name, fmt.Errorf("write tar header: %w", err))
		}
		if _, err := tw.Write(f.content); err != nil {
			return nil, errors.ImageBuildFailed(located.Name, fmt.Errorf("write %s: %w", f.name, err))
		}
	}
	if err := tw.Close(); err != nil {
		return nil, errors.ImageBuildFailed(located.Name, fmt.Errorf("close tar: %w", err))
	}
	return &buf, nil
}

package fingerprint

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the sidecar fingerprint file co-located with each unit's output.
const FileName = ".fingerprint"

// SidecarPath returns the fingerprint path for a unit output directory.
func SidecarPath(outputDir string) string {
	return filepath.Join(outputDir, FileName)
}

// Write persists a digest atomically: the temp file lives in the target
// directory so the rename cannot cross filesystems. A crash mid-build can
// therefore never leave a fingerprint inconsistent with its artifact.
func Write(path, digest string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp fingerprint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(digest); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write fingerprint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close fingerprint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace fingerprint: %w", err)
	}
	return nil
}

// Read returns the persisted digest. Callers distinguish a missing
// fingerprint (fs.ErrNotExist, a normal first-build condition) from other
// read failures, which must be surfaced.
func Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Package artifact owns the package descriptor persisted next to each built
// bundle. The descriptor and the fingerprint sidecar are the only durable
// state the system reads back to make skip/rebuild and publish decisions.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DescriptorName is the per-unit package descriptor filename.
const DescriptorName = "artifact.json"

// VersionWidth is the hex prefix of the artifact content hash used as the
// published version.
const VersionWidth = 12

// Descriptor records what was built: the unit's logical name, its
// content-hash-derived version, and the fingerprint used to build it.
// Immutable once written.
type Descriptor struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Fingerprint string `json:"fingerprint"`
}

// Write persists a descriptor atomically into outputDir.
func Write(outputDir string, d Descriptor) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(outputDir, DescriptorName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp descriptor: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write descriptor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close descriptor: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(outputDir, DescriptorName)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace descriptor: %w", err)
	}
	return nil
}

// Read loads the descriptor from a unit output directory.
func Read(outputDir string) (Descriptor, error) {
	data, err := os.ReadFile(filepath.Join(outputDir, DescriptorName))
	if err != nil {
		return Descriptor{}, err
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("unmarshal descriptor: %w", err)
	}
	return d, nil
}

// Located pairs a descriptor with the output directory it was found in.
type Located struct {
	Descriptor
	Dir string
}

// DiscoverAll walks the output root and returns every unit directory holding
// a descriptor, sorted by name. Directories without one (never built, or a
// crash before the descriptor was persisted) are skipped.
func DiscoverAll(outputRoot string) ([]Located, error) {
	entries, err := os.ReadDir(outputRoot)
	if err != nil {
		return nil, fmt.Errorf("enumerate artifacts in %s: %w", outputRoot, err)
	}

	var found []Located
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(outputRoot, entry.Name())
		d, err := Read(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read descriptor in %s: %w", dir, err)
		}
		found = append(found, Located{Descriptor: d, Dir: dir})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, nil
}

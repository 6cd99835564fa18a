package deploy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Fragment is one manifest file: a read-only unit of cluster-configuration
// text. Fragments are never mutated on disk; only the in-memory rewritten
// copy is applied.
type Fragment struct {
	Path    string // absolute path
	Rel     string // slash-separated path relative to the workspace root
	Content string
}

// LoadFragments enumerates every .yaml file directly under the manifests
// directory, sorted by name.
func LoadFragments(manifestsDir, workspace string) ([]Fragment, error) {
	entries, err := os.ReadDir(manifestsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("enumerate manifests in %s: %w", manifestsDir, err)
	}

	var fragments []Fragment
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		abs := filepath.Join(manifestsDir, entry.Name())
		content, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("read manifest %s: %w", abs, err)
		}
		rel, err := filepath.Rel(workspace, abs)
		if err != nil {
			rel = entry.Name()
		}
		fragments = append(fragments, Fragment{
			Path:    abs,
			Rel:     filepath.ToSlash(rel),
			Content: string(content),
		})
	}
	sort.Slice(fragments, func(i, j int) bool { return fragments[i].Path < fragments[j].Path })
	return fragments, nil
}

// References reports whether the fragment textually contains the given
// artifact output path. Containment is the relevance relation between
// fragments and artifacts.
func (f Fragment) References(outputPath string) bool {
	return strings.Contains(f.Content, outputPath)
}

// Package units discovers buildable entry points in the monorepo. Units are
// re-enumerated fresh on every run and immutable for its duration.
package units

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"git.home.luguber.info/inful/shipwright/internal/config"
)

// Unit is one independently bundlable entry point.
type Unit struct {
	Name      string   // logical name, derived from the unit directory
	EntryFile string   // absolute path to the entry file
	OutputDir string   // absolute path the bundler writes into
	Inputs    []string // resolved input set; populated by the build pipeline
}

// Discover enumerates subdirectories of the services directory that contain
// the configured entry file. Order is deterministic (sorted by name).
func Discover(cfg *config.Config) ([]Unit, error) {
	servicesDir := cfg.ServicesPath()
	entries, err := os.ReadDir(servicesDir)
	if err != nil {
		return nil, fmt.Errorf("enumerate services in %s: %w", servicesDir, err)
	}

	var found []Unit
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		entryFile := filepath.Join(servicesDir, entry.Name(), cfg.Build.EntryFile)
		if _, err := os.Stat(entryFile); err != nil {
			continue
		}
		found = append(found, Unit{
			Name:      entry.Name(),
			EntryFile: entryFile,
			OutputDir: filepath.Join(cfg.OutputPath(), entry.Name()),
		})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, nil
}

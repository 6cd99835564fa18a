package build

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// MadgeExtractor resolves a unit's dependency graph by shelling out to
// madge, which prints the transitive file graph as JSON keyed by file path.
type MadgeExtractor struct {
	Command []string // defaults to {"npx", "madge"}
}

func (m MadgeExtractor) Resolve(ctx context.Context, entryFile, configPath string) (map[string][]string, error) {
	args := m.Command
	if len(args) == 0 {
		args = []string{"npx", "madge"}
	}
	args = append(append([]string{}, args...), "--json")
	if configPath != "" {
		args = append(args, "--ts-config", configPath)
	}
	args = append(args, entryFile)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	out, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return nil, fmt.Errorf("dependency extraction failed: %w: %s", err, string(ee.Stderr))
		}
		return nil, fmt.Errorf("dependency extraction failed: %w", err)
	}

	var graph map[string][]string
	if err := json.Unmarshal(out, &graph); err != nil {
		return nil, fmt.Errorf("parse dependency graph: %w", err)
	}

	// madge reports paths relative to the entry file's directory; the
	// pipeline expects paths resolvable from the workspace.
	base := filepath.Dir(entryFile)
	resolved := make(map[string][]string, len(graph))
	for file, deps := range graph {
		absDeps := make([]string, 0, len(deps))
		for _, d := range deps {
			absDeps = append(absDeps, absFrom(base, d))
		}
		resolved[absFrom(base, file)] = absDeps
	}
	return resolved, nil
}

// EsbuildBundler invokes esbuild to produce the unit's single-file bundle.
type EsbuildBundler struct {
	Command []string // defaults to {"npx", "esbuild"}
}

func (b EsbuildBundler) Bundle(ctx context.Context, spec BundleSpec) (BundleReport, error) {
	args := b.Command
	if len(args) == 0 {
		args = []string{"npx", "esbuild"}
	}
	args = append(append([]string{}, args...),
		spec.EntryFile,
		"--bundle",
		"--platform=node",
		"--outfile="+filepath.Join(spec.OutputDir, spec.OutputFile),
	)

	started := time.Now()
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	report := BundleReport{Duration: time.Since(started)}
	if err != nil {
		report.Errors = nonEmptyLines(stderr.String())
		if len(report.Errors) == 0 {
			return report, fmt.Errorf("bundler failed: %w", err)
		}
	}
	return report, nil
}

func absFrom(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

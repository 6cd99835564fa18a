package build

import (
	"context"
	"time"
)

// OutputFileName is the bundle filename the bundler emits into each unit's
// output directory; its bytes are hashed to derive the artifact version.
const OutputFileName = "bundle.js"

// DependencyExtractor is the external tool that enumerates a unit's
// transitive file dependency graph. The returned mapping is file -> direct
// dependencies; the pipeline flattens it and filters to ecosystem members.
type DependencyExtractor interface {
	Resolve(ctx context.Context, entryFile, bundlerConfig string) (map[string][]string, error)
}

// BundleSpec is the merged configuration handed to the external bundler.
type BundleSpec struct {
	EntryFile  string
	OutputDir  string
	OutputFile string
}

// BundleReport is the bundler's completion report. A non-empty error list is
// a failure regardless of what else the report says.
type BundleReport struct {
	Errors   []string
	Duration time.Duration
}

// Bundler is the external compilation step that turns a unit's sources into
// a single artifact.
type Bundler interface {
	Bundle(ctx context.Context, spec BundleSpec) (BundleReport, error)
}

// Package build runs the build half of the pipeline: enumerate units,
// resolve inputs, lint, consult the change oracle, bundle what changed, and
// persist the fingerprint and descriptor that future runs decide against.
package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/shipwright/internal/artifact"
	"git.home.luguber.info/inful/shipwright/internal/config"
	"git.home.luguber.info/inful/shipwright/internal/errors"
	"git.home.luguber.info/inful/shipwright/internal/fingerprint"
	"git.home.luguber.info/inful/shipwright/internal/lint"
	"git.home.luguber.info/inful/shipwright/internal/logfields"
	"git.home.luguber.info/inful/shipwright/internal/metrics"
	"git.home.luguber.info/inful/shipwright/internal/oracle"
	"git.home.luguber.info/inful/shipwright/internal/pipeline"
	"git.home.luguber.info/inful/shipwright/internal/units"
	"git.home.luguber.info/inful/shipwright/internal/util/sets"
)

// Result is the run-level outcome of the build phase. Success is the sole
// success signal; all diagnostic detail travels on the event bus.
type Result struct {
	Success bool
	Units   []string
	Built   []string
	Skipped []string
	Failed  []string
}

// Service executes the build phase. Units are processed strictly
// sequentially in discovery order; no unit starts before the previous one
// finished.
type Service struct {
	cfg       *config.Config
	bus       *pipeline.Bus
	extractor DependencyExtractor
	linter    lint.Engine
	bundler   Bundler
	oracle    *oracle.Oracle
	recorder  metrics.Recorder
	runID     string
}

// NewService wires the build phase for one run.
func NewService(cfg *config.Config, bus *pipeline.Bus, extractor DependencyExtractor, linter lint.Engine, bundler Bundler, o *oracle.Oracle, runID string) *Service {
	return &Service{
		cfg:       cfg,
		bus:       bus,
		extractor: extractor,
		linter:    linter,
		bundler:   bundler,
		oracle:    o,
		recorder:  metrics.NoopRecorder{},
		runID:     runID,
	}
}

// WithRecorder injects a metrics recorder.
func (s *Service) WithRecorder(r metrics.Recorder) *Service {
	if r != nil {
		s.recorder = r
	}
	return s
}

// Run executes the phase over every discovered unit.
func (s *Service) Run(ctx context.Context) (Result, error) {
	started := time.Now()

	discovered, err := units.Discover(s.cfg)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, u := range discovered {
		res.Units = append(res.Units, u.Name)
	}

	for _, u := range discovered {
		s.publish(pipeline.UnitDiscovered{RunScoped: s.scope(), Unit: u.Name, Entry: u.EntryFile})

		outcome, err := s.processUnit(ctx, u)
		switch outcome {
		case unitBuilt:
			res.Built = append(res.Built, u.Name)
			s.recorder.IncUnitOutcome(metrics.OutcomeBuilt)
		case unitSkipped:
			res.Skipped = append(res.Skipped, u.Name)
			s.recorder.IncUnitOutcome(metrics.OutcomeSkipped)
		case unitFailed:
			res.Failed = append(res.Failed, u.Name)
			s.recorder.IncUnitOutcome(metrics.OutcomeFailed)
			slog.Error("Unit failed", logfields.RunID(s.runID), logfields.Unit(u.Name), logfields.Error(err))
			if s.cfg.FailFast {
				return s.finish(res, started), nil
			}
		}
	}

	return s.finish(res, started), nil
}

func (s *Service) finish(res Result, started time.Time) Result {
	res.Success = len(res.Failed) == 0
	s.recorder.ObserveRunDuration("build", time.Since(started))
	s.recorder.IncRunOutcome("build", res.Success)
	s.publish(pipeline.BuildCompleted{
		RunScoped: s.scope(),
		Success:   res.Success,
		Built:     res.Built,
		Skipped:   res.Skipped,
		Failed:    res.Failed,
	})
	return res
}

type unitOutcome int

const (
	unitBuilt unitOutcome = iota
	unitSkipped
	unitFailed
)

// processUnit runs one unit through resolve → lint → decide → bundle →
// persist. A fail-fast abort takes effect only at unit boundaries; an
// in-flight external call is never interrupted.
func (s *Service) processUnit(ctx context.Context, u units.Unit) (unitOutcome, error) {
	inputs, err := s.resolveInputs(ctx, u)
	if err != nil {
		s.failUnit(u.Name, "resolve", err)
		return unitFailed, err
	}
	u.Inputs = inputs

	if err := s.lintInputs(ctx, u); err != nil {
		s.failUnit(u.Name, "lint", err)
		return unitFailed, err
	}

	decision, err := s.oracle.NeedsProcessing(u.Inputs, fingerprint.SidecarPath(u.OutputDir))
	for _, diffErr := range decision.DiffErrs {
		s.publish(pipeline.DiffError{RunScoped: s.scope(), Unit: u.Name, Err: diffErr.Error()})
	}
	if err != nil {
		s.failUnit(u.Name, "decide", err)
		return unitFailed, err
	}

	if !decision.Rebuild {
		slog.Debug("Unit unchanged, skipping", logfields.RunID(s.runID), logfields.Unit(u.Name))
		s.publish(pipeline.UnitSkipped{RunScoped: s.scope(), Unit: u.Name, Reason: string(decision.Reason)})
		return unitSkipped, nil
	}

	report, err := s.bundle(ctx, u)
	if err != nil {
		s.failUnit(u.Name, "bundle", err)
		return unitFailed, err
	}

	version, err := s.persist(u, decision)
	if err != nil {
		s.failUnit(u.Name, "persist", err)
		return unitFailed, err
	}

	slog.Info("Unit built",
		logfields.RunID(s.runID),
		logfields.Unit(u.Name),
		logfields.Version(version),
		logfields.Reason(string(decision.Reason)),
		logfields.DurationMS(float64(report.Duration.Milliseconds())))
	s.publish(pipeline.UnitBuilt{
		RunScoped:  s.scope(),
		Unit:       u.Name,
		Version:    version,
		Reason:     string(decision.Reason),
		DurationMS: float64(report.Duration.Milliseconds()),
	})
	return unitBuilt, nil
}

// resolveInputs flattens the extractor's dependency mapping to the unit's
// ecosystem-native input set: entry file plus every reachable source file,
// deduplicated and sorted.
func (s *Service) resolveInputs(ctx context.Context, u units.Unit) ([]string, error) {
	graph, err := s.extractor.Resolve(ctx, u.EntryFile, s.cfg.Build.BundlerConfig)
	if err != nil {
		return nil, fmt.Errorf("resolve dependencies of %s: %w", u.Name, err)
	}

	seen := sets.New(u.EntryFile)
	for file, deps := range graph {
		for _, p := range append(deps, file) {
			if !s.ecosystemMember(p) {
				continue
			}
			if !filepath.IsAbs(p) {
				p = filepath.Join(s.cfg.Workspace, p)
			}
			seen.Add(p)
		}
	}

	inputs := seen.Values()
	sort.Strings(inputs)
	return inputs, nil
}

func (s *Service) ecosystemMember(path string) bool {
	ext := filepath.Ext(path)
	for _, allowed := range s.cfg.Build.Extensions {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}

// lintInputs runs the external lint pass over every input. Level-2 findings
// block the unit; per-file detail is emitted before the unit is failed.
func (s *Service) lintInputs(ctx context.Context, u units.Unit) error {
	blocking := 0
	for _, input := range u.Inputs {
		content, err := os.ReadFile(input)
		if err != nil {
			return errors.InputRead(input, err)
		}
		result, err := s.linter.Lint(ctx, s.cfg.Build.LintConfig, input, content)
		if err != nil {
			return fmt.Errorf("lint %s: %w", input, err)
		}
		for _, issue := range result.Issues {
			if issue.Severity != lint.SeverityError {
				continue
			}
			s.publish(pipeline.LintFinding{
				RunScoped: s.scope(),
				Unit:      u.Name,
				File:      input,
				Severity:  int(issue.Severity),
				Rule:      issue.Rule,
				Message:   issue.Message,
				Line:      issue.Line,
			})
		}
		blocking += result.ErrorCount()
	}
	if blocking > 0 {
		return errors.LintBlocked(u.Name, blocking)
	}
	return nil
}

func (s *Service) bundle(ctx context.Context, u units.Unit) (BundleReport, error) {
	report, err := s.bundler.Bundle(ctx, BundleSpec{
		EntryFile:  u.EntryFile,
		OutputDir:  u.OutputDir,
		OutputFile: OutputFileName,
	})
	if err != nil {
		return BundleReport{}, errors.BundleFailed(u.Name, err)
	}
	if len(report.Errors) > 0 {
		return BundleReport{}, errors.BundleFailed(u.Name, fmt.Errorf("%s", strings.Join(report.Errors, "; ")))
	}
	return report, nil
}

// persist writes the fingerprint sidecar and the artifact descriptor. The
// fingerprint may already be known from the oracle's comparison; when the
// decision short-circuited on history it is computed here, after the bundle
// succeeded, over the same input set.
func (s *Service) persist(u units.Unit, decision oracle.Decision) (string, error) {
	digest := decision.Fingerprint
	if digest == "" {
		var err error
		digest, err = fingerprint.Compute(u.Inputs)
		if err != nil {
			return "", err
		}
	}

	if err := fingerprint.Write(fingerprint.SidecarPath(u.OutputDir), digest); err != nil {
		return "", err
	}

	bundleBytes, err := os.ReadFile(filepath.Join(u.OutputDir, OutputFileName))
	if err != nil {
		return "", fmt.Errorf("read emitted artifact: %w", err)
	}
	version := fingerprint.HashBytes(bundleBytes, artifact.VersionWidth)

	if err := artifact.Write(u.OutputDir, artifact.Descriptor{
		Name:        u.Name,
		Version:     version,
		Fingerprint: digest,
	}); err != nil {
		return "", err
	}
	return version, nil
}

func (s *Service) failUnit(name, stage string, err error) {
	s.publish(pipeline.UnitFailed{RunScoped: s.scope(), Unit: name, Stage: stage, Err: err.Error()})
}

func (s *Service) scope() pipeline.RunScoped {
	return pipeline.RunScoped{RunID: s.runID}
}

func (s *Service) publish(e pipeline.Event) {
	if err := s.bus.Publish(e); err != nil {
		slog.Warn("Event handler failed", "event", e.Name(), logfields.Error(err))
	}
}

package deploy

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/shipwright/internal/artifact"
	"git.home.luguber.info/inful/shipwright/internal/config"
	"git.home.luguber.info/inful/shipwright/internal/logfields"
	"git.home.luguber.info/inful/shipwright/internal/metrics"
	"git.home.luguber.info/inful/shipwright/internal/pipeline"
	"git.home.luguber.info/inful/shipwright/internal/registry"
)

// Result is the run-level outcome of the deploy phase.
type Result struct {
	Success bool
	Pushed  []string // artifacts whose image was freshly pushed
	Skipped []string // artifacts whose image already existed
	Failed  []string // artifacts whose probe, build, or push failed
	Applied []string // manifest fragments that triggered an apply
}

// Service drives the deploy phase: discover built artifacts, make their
// images exist at the registry, then reconcile the cluster manifests.
type Service struct {
	cfg        *config.Config
	bus        *pipeline.Bus
	publisher  *registry.Publisher
	reconciler *Reconciler
	recorder   metrics.Recorder
	runID      string
}

// NewService wires the deploy phase for one run.
func NewService(cfg *config.Config, bus *pipeline.Bus, publisher *registry.Publisher, reconciler *Reconciler, runID string) *Service {
	return &Service{
		cfg:        cfg,
		bus:        bus,
		publisher:  publisher,
		reconciler: reconciler,
		recorder:   metrics.NoopRecorder{},
		runID:      runID,
	}
}

// WithRecorder injects a metrics recorder.
func (s *Service) WithRecorder(r metrics.Recorder) *Service {
	if r != nil {
		s.recorder = r
	}
	return s
}

func (s *Service) scope() pipeline.RunScoped { return pipeline.RunScoped{RunID: s.runID} }

func (s *Service) publish(e pipeline.Event) {
	if err := s.bus.Publish(e); err != nil {
		slog.Warn("Event handler error", logfields.RunID(s.runID), logfields.Error(err))
	}
}

// Run executes the deploy phase. The publish step completes for every
// artifact before reconciliation starts; under fail-fast a publish failure
// skips reconciliation entirely.
func (s *Service) Run(ctx context.Context) (Result, error) {
	started := time.Now()

	artifacts, err := artifact.DiscoverAll(s.cfg.OutputPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Nothing was ever built; an empty deploy is a successful no-op.
			return s.finish(Result{Success: true}, started), nil
		}
		return Result{}, err
	}

	outcomes, err := s.publisher.Publish(ctx, artifacts)
	if err != nil {
		res := s.finish(Result{}, started)
		return res, err
	}

	var res Result
	for _, o := range outcomes {
		switch {
		case o.Failed:
			res.Failed = append(res.Failed, o.Name)
		case o.Pushed:
			res.Pushed = append(res.Pushed, o.Name)
		default:
			res.Skipped = append(res.Skipped, o.Name)
		}
	}

	if len(res.Failed) > 0 && s.cfg.FailFast {
		return s.finish(res, started), nil
	}

	reconciled, err := s.reconciler.Reconcile(ctx, artifacts, outcomes)
	res.Applied = reconciled.Applied
	if err != nil {
		slog.Error("Manifest apply failed", logfields.RunID(s.runID), logfields.Error(err))
		return s.finish(res, started), err
	}

	if len(res.Failed) == 0 {
		res.Success = true
	}
	return s.finish(res, started), nil
}

func (s *Service) finish(res Result, started time.Time) Result {
	res.Success = res.Success && len(res.Failed) == 0
	s.recorder.ObserveRunDuration("deploy", time.Since(started))
	s.recorder.IncRunOutcome("deploy", res.Success)
	s.publish(pipeline.DeployCompleted{
		RunScoped: s.scope(),
		Success:   res.Success,
		Pushed:    res.Pushed,
		Skipped:   res.Skipped,
	})
	return res
}

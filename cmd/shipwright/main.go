package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/inful/shipwright/internal/build"
	"git.home.luguber.info/inful/shipwright/internal/config"
	"git.home.luguber.info/inful/shipwright/internal/deploy"
	"git.home.luguber.info/inful/shipwright/internal/eventstore"
	"git.home.luguber.info/inful/shipwright/internal/gitx"
	"git.home.luguber.info/inful/shipwright/internal/lint"
	"git.home.luguber.info/inful/shipwright/internal/logfields"
	"git.home.luguber.info/inful/shipwright/internal/metrics"
	"git.home.luguber.info/inful/shipwright/internal/oracle"
	"git.home.luguber.info/inful/shipwright/internal/pipeline"
	"git.home.luguber.info/inful/shipwright/internal/registry"
	"git.home.luguber.info/inful/shipwright/internal/version"
	"git.home.luguber.info/inful/shipwright/internal/watch"
)

var CLI struct {
	Config   string           `short:"c" help:"Configuration file path" default:"shipwright.yaml"`
	Verbose  bool             `short:"v" help:"Enable verbose logging"`
	Force    bool             `help:"Bypass change detection and rebuild everything"`
	FailFast bool             `help:"Abort the run at the first failed unit"`
	Version  kong.VersionFlag `help:"Print version and exit"`

	Build struct{} `cmd:"" help:"Bundle every service whose inputs changed"`

	Deploy struct{} `cmd:"" help:"Publish built artifacts and reconcile cluster manifests"`

	Watch struct {
		Debounce      time.Duration `help:"Quiet period before a rebuild" default:"500ms"`
		MetricsListen string        `help:"Address to serve Prometheus metrics on (empty disables)"`
	} `cmd:"" help:"Rebuild continuously as service sources change"`
}

func main() {
	ctx := kong.Parse(&CLI, kong.Vars{"version": version.String()})

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", logfields.Error(err))
		os.Exit(1)
	}
	cfg.Force = cfg.Force || CLI.Force
	cfg.FailFast = cfg.FailFast || CLI.FailFast

	switch ctx.Command() {
	case "build":
		if err := runBuild(cfg); err != nil {
			slog.Error("Build failed", logfields.Error(err))
			os.Exit(1)
		}
	case "deploy":
		if err := runDeploy(cfg); err != nil {
			slog.Error("Deploy failed", logfields.Error(err))
			os.Exit(1)
		}
	case "watch":
		if err := runWatch(cfg); err != nil {
			slog.Error("Watch failed", logfields.Error(err))
			os.Exit(1)
		}
	}
}

// newBus builds the event bus, optionally backed by the sqlite journal, and
// attaches the console renderer for events no service logs itself.
func newBus(cfg *config.Config) (*pipeline.Bus, func(), error) {
	cleanup := func() {}
	var bus *pipeline.Bus
	if cfg.Journal != "" {
		store, err := eventstore.NewSQLiteStore(cfg.Journal)
		if err != nil {
			return nil, cleanup, fmt.Errorf("open event journal: %w", err)
		}
		cleanup = func() {
			if err := store.Close(); err != nil {
				slog.Warn("Failed to close event journal", logfields.Error(err))
			}
		}
		bus = pipeline.NewBusWithEventStore(store)
	} else {
		bus = pipeline.NewBus()
	}
	renderEvents(bus)
	return bus, cleanup, nil
}

// renderEvents surfaces the detail-level events on the console.
func renderEvents(bus *pipeline.Bus) {
	bus.Subscribe(pipeline.EventLintFinding, func(e pipeline.Event) error {
		f := e.(pipeline.LintFinding)
		slog.Warn("Lint finding",
			logfields.Unit(f.Unit),
			logfields.Path(f.File),
			slog.String("rule", f.Rule),
			slog.Int("line", f.Line),
			slog.String("message", f.Message))
		return nil
	})
	bus.Subscribe(pipeline.EventPushProgress, func(e pipeline.Event) error {
		p := e.(pipeline.PushProgress)
		slog.Debug("Push progress",
			logfields.Unit(p.Unit),
			slog.String("layer", p.Layer),
			slog.String("status", string(p.Status)),
			slog.Int("percent", p.Percent))
		return nil
	})
	bus.Subscribe(pipeline.EventApplyOutput, func(e pipeline.Event) error {
		slog.Info("Apply", slog.String("line", e.(pipeline.ApplyOutput).Line))
		return nil
	})
}

// openDiffer captures the run's revision pair. A workspace without usable
// history yields a nil differ, which the oracle treats as "assume changed".
func openDiffer(workspace string) (oracle.Differ, error) {
	client, err := gitx.Open(workspace)
	if err != nil {
		if errors.Is(err, gitx.ErrNoHistory) {
			slog.Info("No commit history, change detection falls back to fingerprints only")
			return nil, nil
		}
		return nil, err
	}
	differ, err := client.NewDiffer()
	if err != nil {
		if errors.Is(err, gitx.ErrNoHistory) {
			slog.Info("No comparable commits yet, change detection falls back to fingerprints only")
			return nil, nil
		}
		return nil, err
	}
	return differ, nil
}

func newBuildService(cfg *config.Config, bus *pipeline.Bus, runID string) (*build.Service, error) {
	differ, err := openDiffer(cfg.Workspace)
	if err != nil {
		return nil, err
	}
	o := oracle.New(differ, cfg.Workspace, cfg.Force)
	return build.NewService(cfg, bus,
		build.MadgeExtractor{},
		lint.ESLintEngine{},
		build.EsbuildBundler{},
		o, runID), nil
}

func runBuild(cfg *config.Config) error {
	runID := uuid.NewString()
	bus, cleanup, err := newBus(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	svc, err := newBuildService(cfg, bus, runID)
	if err != nil {
		return err
	}

	res, err := svc.Run(context.Background())
	if err != nil {
		return err
	}
	slog.Info("Build finished",
		logfields.RunID(runID),
		slog.Bool("success", res.Success),
		slog.Int("built", len(res.Built)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("failed", len(res.Failed)))
	if !res.Success {
		return fmt.Errorf("%d of %d units failed", len(res.Failed), len(res.Units))
	}
	return nil
}

func runDeploy(cfg *config.Config) error {
	runID := uuid.NewString()
	bus, cleanup, err := newBus(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	engine, err := registry.NewDockerClient()
	if err != nil {
		return fmt.Errorf("connect to container engine: %w", err)
	}
	defer func() { _ = engine.Close() }()

	publisher, err := registry.NewPublisher(cfg, bus, engine, runID)
	if err != nil {
		return err
	}
	differ, err := openDiffer(cfg.Workspace)
	if err != nil {
		return err
	}
	reconciler := deploy.NewReconciler(cfg, bus, differ, deploy.KubectlTransport{}, runID)

	res, err := deploy.NewService(cfg, bus, publisher, reconciler, runID).Run(context.Background())
	if err != nil {
		return err
	}
	slog.Info("Deploy finished",
		logfields.RunID(runID),
		slog.Bool("success", res.Success),
		slog.Int("pushed", len(res.Pushed)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("applied", len(res.Applied)))
	if !res.Success {
		return fmt.Errorf("%d artifacts failed to publish", len(res.Failed))
	}
	return nil
}

func runWatch(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus, cleanup, err := newBus(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if addr := CLI.Watch.MetricsListen; addr != "" {
		reg := prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
		go serveMetrics(addr, reg)
	}

	rebuild := func(ctx context.Context) error {
		svc, err := newBuildService(cfg, bus, uuid.NewString())
		if err != nil {
			return err
		}
		res, err := svc.WithRecorder(recorder).Run(ctx)
		if err != nil {
			return err
		}
		if !res.Success {
			slog.Warn("Rebuild finished with failures", slog.Int("failed", len(res.Failed)))
		}
		return nil
	}

	watcher, err := watch.New(cfg, rebuild)
	if err != nil {
		return err
	}
	watcher.WithDebounce(CLI.Watch.Debounce)

	// Run one initial build so the tree starts from a consistent state.
	if err := rebuild(ctx); err != nil {
		slog.Error("Initial build failed", logfields.Error(err))
	}
	return watcher.Start(ctx)
}

func serveMetrics(addr string, reg *prom.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	slog.Info("Serving metrics", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("Metrics server stopped", logfields.Error(err))
	}
}

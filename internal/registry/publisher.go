package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/distribution/reference"
	buildtypes "github.com/docker/docker/api/types/build"
	imagetypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/jsonmessage"

	"git.home.luguber.info/inful/shipwright/internal/artifact"
	"git.home.luguber.info/inful/shipwright/internal/config"
	swerrors "git.home.luguber.info/inful/shipwright/internal/errors"
	"git.home.luguber.info/inful/shipwright/internal/logfields"
	"git.home.luguber.info/inful/shipwright/internal/metrics"
	"git.home.luguber.info/inful/shipwright/internal/pipeline"
)

// Outcome records what the publisher did for one artifact. Pushed is the
// signal the manifest reconciler keys dirtiness on: a freshly pushed image
// means the fragments referencing this artifact must be re-applied.
type Outcome struct {
	Name   string
	Image  string
	Pushed bool
	Failed bool
}

// Publisher makes each built artifact's image exist at the remote registry,
// probing before building so byte-identical rebuilds never push twice.
type Publisher struct {
	cfg      *config.Config
	bus      *pipeline.Bus
	client   Client
	creds    Credentials
	recorder metrics.Recorder
	runID    string
}

// NewPublisher wires the publish step for one run. Credential entries are
// parsed eagerly; a malformed entry fails here, before any network call.
func NewPublisher(cfg *config.Config, bus *pipeline.Bus, client Client, runID string) (*Publisher, error) {
	creds, err := ParseAuthEntries(cfg.Registry.Auth)
	if err != nil {
		return nil, err
	}
	return &Publisher{
		cfg:      cfg,
		bus:      bus,
		client:   client,
		creds:    creds,
		recorder: metrics.NoopRecorder{},
		runID:    runID,
	}, nil
}

// WithRecorder injects a metrics recorder.
func (p *Publisher) WithRecorder(r metrics.Recorder) *Publisher {
	if r != nil {
		p.recorder = r
	}
	return p
}

func (p *Publisher) scope() pipeline.RunScoped { return pipeline.RunScoped{RunID: p.runID} }

func (p *Publisher) publish(e pipeline.Event) {
	if err := p.bus.Publish(e); err != nil {
		slog.Warn("Event handler error", logfields.RunID(p.runID), logfields.Error(err))
	}
}

// Publish processes every artifact strictly sequentially. Missing
// credentials for the configured registry host abort the whole run before
// the first probe; per-artifact probe, build, and push failures fail that
// artifact and, under fail-fast, stop the run at the artifact boundary.
func (p *Publisher) Publish(ctx context.Context, artifacts []artifact.Located) ([]Outcome, error) {
	if len(artifacts) == 0 {
		return nil, nil
	}

	ref, err := Reference(p.cfg.Registry, artifacts[0].Name, artifacts[0].Version)
	if err != nil {
		return nil, err
	}
	encodedAuth, err := p.creds.Encoded(reference.Domain(ref))
	if err != nil {
		return nil, err
	}

	var outcomes []Outcome
	for _, art := range artifacts {
		outcome, err := p.publishOne(ctx, art, encodedAuth)
		outcomes = append(outcomes, outcome)
		if err != nil {
			slog.Error("Publish failed",
				logfields.RunID(p.runID),
				logfields.Unit(art.Name),
				logfields.Image(outcome.Image),
				logfields.Error(err))
			p.publish(pipeline.UnitFailed{RunScoped: p.scope(), Unit: art.Name, Stage: "publish", Err: err.Error()})
			if p.cfg.FailFast {
				break
			}
		}
	}
	return outcomes, nil
}

func (p *Publisher) publishOne(ctx context.Context, art artifact.Located, encodedAuth string) (Outcome, error) {
	ref, err := Reference(p.cfg.Registry, art.Name, art.Version)
	if err != nil {
		return Outcome{Name: art.Name, Failed: true}, err
	}
	image := ref.String()
	outcome := Outcome{Name: art.Name, Image: image}

	_, err = p.client.DistributionInspect(ctx, image, encodedAuth)
	switch {
	case err == nil:
		slog.Info("Image already present, skipping push",
			logfields.RunID(p.runID), logfields.Unit(art.Name), logfields.Image(image))
		p.publish(pipeline.ImageExists{RunScoped: p.scope(), Unit: art.Name, Image: image})
		p.recorder.IncImagePush(false)
		return outcome, nil
	case !cerrdefs.IsNotFound(err):
		// Only a definite not-found means absent. Anything else (auth,
		// network, rate limit) is a hard failure for this artifact.
		outcome.Failed = true
		return outcome, swerrors.ImagePushFailed(image, err)
	}

	p.publish(pipeline.ImagePushStart{RunScoped: p.scope(), Unit: art.Name, Image: image})

	started := time.Now()
	if err := p.buildImage(ctx, art, image); err != nil {
		outcome.Failed = true
		return outcome, err
	}
	if err := p.pushImage(ctx, art.Name, image, encodedAuth); err != nil {
		outcome.Failed = true
		return outcome, err
	}

	slog.Info("Image pushed",
		logfields.RunID(p.runID),
		logfields.Unit(art.Name),
		logfields.Image(image),
		logfields.DurationMS(float64(time.Since(started).Milliseconds())))
	p.publish(pipeline.ImagePushed{RunScoped: p.scope(), Unit: art.Name, Image: image})
	p.recorder.IncImagePush(true)
	outcome.Pushed = true
	return outcome, nil
}

func (p *Publisher) buildImage(ctx context.Context, art artifact.Located, image string) error {
	tarStream, err := buildContext(p.cfg.Registry.BaseImage, art)
	if err != nil {
		return err
	}

	resp, err := p.client.ImageBuild(ctx, tarStream, buildtypes.ImageBuildOptions{
		Tags:       []string{image},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return swerrors.ImageBuildFailed(image, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := drainBuildStream(resp.Body); err != nil {
		return swerrors.ImageBuildFailed(image, err)
	}
	return nil
}

func (p *Publisher) pushImage(ctx context.Context, unit, image, encodedAuth string) error {
	body, err := p.client.ImagePush(ctx, image, imagetypes.PushOptions{RegistryAuth: encodedAuth})
	if err != nil {
		return swerrors.ImagePushFailed(image, err)
	}
	defer func() { _ = body.Close() }()

	dec := json.NewDecoder(body)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return swerrors.ImagePushFailed(image, err)
		}
		if msg.Error != nil {
			return swerrors.ImagePushFailed(image, msg.Error)
		}
		if status, percent, ok := normalizePushStatus(msg); ok {
			p.publish(pipeline.PushProgress{
				RunScoped: p.scope(),
				Unit:      unit,
				Layer:     msg.ID,
				Status:    status,
				Percent:   percent,
			})
		}
	}
}

// drainBuildStream consumes the {stream, aux} build events, surfacing the
// embedded error message if the daemon reports one mid-stream.
func drainBuildStream(body io.Reader) error {
	dec := json.NewDecoder(body)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if msg.Error != nil {
			return msg.Error
		}
	}
}

// normalizePushStatus maps the transport's per-layer status strings onto the
// event enum. Preparation and waiting states carry no information the
// consumer acts on and are dropped.
func normalizePushStatus(msg jsonmessage.JSONMessage) (pipeline.PushStatus, int, bool) {
	switch msg.Status {
	case "Pushing":
		percent := 0
		if msg.Progress != nil && msg.Progress.Total > 0 {
			percent = int(msg.Progress.Current * 100 / msg.Progress.Total)
			if percent > 100 {
				percent = 100
			}
		}
		return pipeline.PushStatusPushing, percent, true
	case "Pushed":
		return pipeline.PushStatusPushed, 100, true
	case "Layer already exists":
		return pipeline.PushStatusLayerExists, 100, true
	default:
		return "", 0, false
	}
}

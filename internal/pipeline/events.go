package pipeline

// Event is a domain event published by the build and deploy phases and
// consumed by handlers. The core never interrogates a renderer; everything
// observable about a run flows through these events.
type Event interface{ Name() string }

// RunScoped carries the run identity shared by every event.
type RunScoped struct {
	RunID string
}

// GetRunID returns the run this event belongs to.
func (r RunScoped) GetRunID() string { return r.RunID }

// Event names used across both phases.
const (
	EventUnitDiscovered = "UnitDiscovered"
	EventLintFinding    = "LintFinding"
	EventUnitSkipped    = "UnitSkipped"
	EventUnitBuilt      = "UnitBuilt"
	EventUnitFailed     = "UnitFailed"
	EventDiffError      = "DiffError"
	EventBuildCompleted = "BuildCompleted"

	EventImageExists     = "ImageExists"
	EventImagePushStart  = "ImagePushStart"
	EventPushProgress    = "PushProgress"
	EventImagePushed     = "ImagePushed"
	EventManifestDirty   = "ManifestDirty"
	EventApplyOutput     = "ApplyOutput"
	EventDeployCompleted = "DeployCompleted"
)

// UnitDiscovered announces a build unit found during enumeration.
type UnitDiscovered struct {
	RunScoped
	Unit  string
	Entry string
}

func (UnitDiscovered) Name() string { return EventUnitDiscovered }

// LintFinding carries one lint message for one file.
type LintFinding struct {
	RunScoped
	Unit     string
	File     string
	Severity int
	Rule     string
	Message  string
	Line     int
}

func (LintFinding) Name() string { return EventLintFinding }

// UnitSkipped reports a unit whose cached output is still valid.
type UnitSkipped struct {
	RunScoped
	Unit   string
	Reason string
}

func (UnitSkipped) Name() string { return EventUnitSkipped }

// UnitBuilt reports a successful bundle with its new version.
type UnitBuilt struct {
	RunScoped
	Unit       string
	Version    string
	Reason     string
	DurationMS float64
}

func (UnitBuilt) Name() string { return EventUnitBuilt }

// UnitFailed reports a unit aborted by lint, bundle, or publish failure.
type UnitFailed struct {
	RunScoped
	Unit  string
	Stage string
	Err   string
}

func (UnitFailed) Name() string { return EventUnitFailed }

// DiffError reports a recoverable history lookup failure. It biases the
// change decision toward rebuilding and is never fatal to the run.
type DiffError struct {
	RunScoped
	Unit string
	File string
	Err  string
}

func (DiffError) Name() string { return EventDiffError }

// BuildCompleted closes the build phase with its final outcome.
type BuildCompleted struct {
	RunScoped
	Success bool
	Built   []string
	Skipped []string
	Failed  []string
}

func (BuildCompleted) Name() string { return EventBuildCompleted }

// ImageExists reports a registry probe that found the image already present.
type ImageExists struct {
	RunScoped
	Unit  string
	Image string
}

func (ImageExists) Name() string { return EventImageExists }

// ImagePushStart announces that an absent image is being packaged and pushed.
type ImagePushStart struct {
	RunScoped
	Unit  string
	Image string
}

func (ImagePushStart) Name() string { return EventImagePushStart }

// PushStatus normalizes the registry transport's per-layer progress states.
type PushStatus string

const (
	PushStatusPushing     PushStatus = "pushing"
	PushStatusPushed      PushStatus = "pushed"
	PushStatusLayerExists PushStatus = "layer exists"
)

// PushProgress is a per-layer progress event decoded from the push stream.
type PushProgress struct {
	RunScoped
	Unit    string
	Layer   string
	Status  PushStatus
	Percent int
}

func (PushProgress) Name() string { return EventPushProgress }

// ImagePushed reports push completion confirmed by the registry transport.
type ImagePushed struct {
	RunScoped
	Unit  string
	Image string
}

func (ImagePushed) Name() string { return EventImagePushed }

// ManifestDirty lists the manifest fragments that will be re-applied.
type ManifestDirty struct {
	RunScoped
	Fragments []string
}

func (ManifestDirty) Name() string { return EventManifestDirty }

// ApplyOutput carries one stdout line from the cluster apply transport.
type ApplyOutput struct {
	RunScoped
	Line string
}

func (ApplyOutput) Name() string { return EventApplyOutput }

// DeployCompleted closes the deploy phase with its final outcome.
type DeployCompleted struct {
	RunScoped
	Success bool
	Pushed  []string
	Skipped []string
}

func (DeployCompleted) Name() string { return EventDeployCompleted }

// Package metrics defines observability hooks for the build and deploy phases.
package metrics

import "time"

// UnitOutcome enumerates per-unit result categories for counters.
type UnitOutcome string

const (
	OutcomeBuilt   UnitOutcome = "built"
	OutcomeSkipped UnitOutcome = "skipped"
	OutcomeFailed  UnitOutcome = "failed"
)

// Recorder defines observability hooks for run and unit metrics. Implementations
// may forward to Prometheus, OpenTelemetry, etc. All methods must be safe for nil
// receivers when using the NoopRecorder (allowing optional injection).
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveRunDuration(phase string, d time.Duration)
	IncUnitOutcome(outcome UnitOutcome)
	IncRunOutcome(phase string, success bool)
	IncImagePush(pushed bool) // pushed=false means "already existed"
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveRunDuration(string, time.Duration)   {}
func (NoopRecorder) IncUnitOutcome(UnitOutcome)                 {}
func (NoopRecorder) IncRunOutcome(string, bool)                 {}
func (NoopRecorder) IncImagePush(bool)                          {}

package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	stageDuration *prom.HistogramVec
	runDuration   *prom.HistogramVec
	unitOutcomes  *prom.CounterVec
	runOutcomes   *prom.CounterVec
	imagePushes   *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "shipwright",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual per-unit stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.runDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "shipwright",
			Name:      "run_duration_seconds",
			Help:      "Total phase duration",
			Buckets:   prom.DefBuckets,
		}, []string{"phase"})
		pr.unitOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "shipwright",
			Name:      "unit_outcomes_total",
			Help:      "Unit results by outcome",
		}, []string{"outcome"})
		pr.runOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "shipwright",
			Name:      "run_outcomes_total",
			Help:      "Phase outcomes by final status",
		}, []string{"phase", "result"})
		pr.imagePushes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "shipwright",
			Name:      "image_pushes_total",
			Help:      "Image publish results (pushed vs already present)",
		}, []string{"result"})
		reg.MustRegister(pr.stageDuration, pr.runDuration, pr.unitOutcomes, pr.runOutcomes, pr.imagePushes)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(phase string, d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncUnitOutcome(outcome UnitOutcome) {
	if p == nil || p.unitOutcomes == nil {
		return
	}
	p.unitOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncRunOutcome(phase string, success bool) {
	if p == nil || p.runOutcomes == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.runOutcomes.WithLabelValues(phase, res).Inc()
}

func (p *PrometheusRecorder) IncImagePush(pushed bool) {
	if p == nil || p.imagePushes == nil {
		return
	}
	res := "exists"
	if pushed {
		res = "pushed"
	}
	p.imagePushes.WithLabelValues(res).Inc()
}

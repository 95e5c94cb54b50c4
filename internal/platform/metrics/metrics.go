// Package metrics records per-run Prometheus metrics and writes them to a
// node_exporter textfile collector file.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes used as the "result" label.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Run describes one finished invocation.
type Run struct {
	Result   string // ResultSuccess or ResultError
	Kind     string // error kind, empty on success
	Services int
	Changed  int
	Puts     int
	Deletes  int
	Duration time.Duration
	Finished time.Time
}

// Recorder owns a private registry so only vong metrics reach the textfile.
type Recorder struct {
	reg *prometheus.Registry

	runs        *prometheus.CounterVec
	duration    prometheus.Histogram
	services    prometheus.Gauge
	changes     prometheus.Counter
	storeWrites *prometheus.CounterVec
	lastSuccess prometheus.Gauge
}

// New creates a Recorder with all metrics registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		reg: reg,
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vong_runs_total",
				Help: "Total number of vong invocations",
			},
			[]string{"result", "kind"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vong_run_duration_seconds",
				Help:    "Duration of a vong invocation in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		services: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vong_registry_services",
				Help: "Number of services in the registry after the last run",
			},
		),
		changes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vong_registry_changes_total",
				Help: "Mutations that changed the registry",
			},
		),
		storeWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vong_store_writes_total",
				Help: "Keys written to the state store",
			},
			[]string{"op"}, // put or delete
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vong_last_success_timestamp_seconds",
				Help: "Unix time of the last successful run",
			},
		),
	}
	reg.MustRegister(r.runs, r.duration, r.services, r.changes, r.storeWrites, r.lastSuccess)
	return r
}

// Registry exposes the underlying registry for tests and custom gatherers.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// Observe records a finished run.
func (r *Recorder) Observe(run Run) {
	r.runs.WithLabelValues(run.Result, run.Kind).Inc()
	r.duration.Observe(run.Duration.Seconds())
	r.changes.Add(float64(run.Changed))
	r.storeWrites.WithLabelValues("put").Add(float64(run.Puts))
	r.storeWrites.WithLabelValues("delete").Add(float64(run.Deletes))
	if run.Result == ResultSuccess {
		r.services.Set(float64(run.Services))
		r.lastSuccess.Set(float64(run.Finished.Unix()))
	}
}

// WriteTextfile writes all metrics to path in the text exposition format.
// The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

// Package metrics exports scheduler activity as Prometheus metrics.
//
// A batch run is short-lived, so the CLI writes the registry to a textfile
// for node_exporter's textfile collector once the batch is done rather than
// serving it.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/me/bioclick/internal/scheduler"
	"github.com/me/bioclick/pkg/model"
)

// Label value used for jobs that never reached an engine.
const unrouted = "unrouted"

// Collector is a scheduler.Observer that records batch metrics on its own
// registry.
type Collector struct {
	registry *prometheus.Registry

	dispatched *prometheus.CounterVec
	completed  *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inFlight   prometheus.Gauge
	batches    prometheus.Counter
	lastBatch  *prometheus.GaugeVec
}

var _ scheduler.Observer = (*Collector)(nil)

// NewCollector creates a Collector. engines pre-initializes label values so
// that every engine appears in the output from the start.
func NewCollector(engines ...string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		dispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bioclick_jobs_dispatched_total",
				Help: "Total number of jobs handed to an engine.",
			},
			[]string{"engine", "rule"},
		),
		completed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bioclick_jobs_completed_total",
				Help: "Total number of jobs resolved, by engine and status.",
			},
			[]string{"engine", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bioclick_job_duration_seconds",
				Help:    "Engine execution time per job, in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"engine"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bioclick_jobs_in_flight",
				Help: "Number of dispatched jobs that have not resolved yet.",
			},
		),
		batches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bioclick_batches_total",
				Help: "Total number of batches run to completion.",
			},
		),
		lastBatch: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bioclick_last_batch_jobs",
				Help: "Job counts of the most recently completed batch, by status.",
			},
			[]string{"status"},
		),
	}

	c.registry.MustRegister(c.dispatched, c.completed, c.duration, c.inFlight, c.batches, c.lastBatch)

	for _, e := range engines {
		c.completed.WithLabelValues(e, model.ResultStatusSuccess.String())
		c.completed.WithLabelValues(e, model.ResultStatusFailed.String())
	}
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}

func (c *Collector) BatchStarted(context.Context, scheduler.BatchInfo) {}

func (c *Collector) JobDispatched(_ context.Context, d scheduler.Dispatch) {
	c.dispatched.WithLabelValues(d.Engine, d.Rule).Inc()
	c.inFlight.Inc()
}

func (c *Collector) DispatchFinished(context.Context, string, int) {}

func (c *Collector) JobCompleted(_ context.Context, o scheduler.Outcome) {
	engine := o.Engine
	if engine == "" {
		engine = unrouted
	} else {
		// Only jobs that reached an engine were counted in flight.
		c.inFlight.Dec()
		c.duration.WithLabelValues(engine).Observe(o.Duration.Seconds())
	}
	c.completed.WithLabelValues(engine, o.Status().String()).Inc()
}

func (c *Collector) BatchCompleted(_ context.Context, r *scheduler.Report) {
	c.batches.Inc()
	c.lastBatch.WithLabelValues(model.ResultStatusSuccess.String()).Set(float64(r.Succeeded))
	c.lastBatch.WithLabelValues(model.ResultStatusFailed.String()).Set(float64(r.Failed))
}

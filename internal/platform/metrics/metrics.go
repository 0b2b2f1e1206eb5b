package metrics

import (
	"net/http"

	"fangov/contexts/governance/proposal-engine/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "governance"

// Registry owns the process collectors and implements the scheduler and
// relay metrics ports.
type Registry struct {
	registry *prometheus.Registry

	sweeps          prometheus.Counter
	transitions     *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
	published       *prometheus.CounterVec
	publishFailures *prometheus.CounterVec
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		registry: reg,
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "sweeps_total",
			Help:      "Lifecycle scheduler sweeps run.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "proposals_total",
			Help:      "Proposals handled by the lifecycle scheduler, by outcome.",
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one lifecycle scheduler sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox events published, by topic.",
		}, []string{"topic"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "publish_failures_total",
			Help:      "Outbox publish attempts that failed, by topic.",
		}, []string{"topic"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.sweeps,
		r.transitions,
		r.sweepDuration,
		r.published,
		r.publishFailures,
	)
	return r
}

func (r *Registry) ObserveSweep(stats ports.SweepStats) {
	r.sweeps.Inc()
	r.transitions.WithLabelValues("closed").Add(float64(stats.Closed))
	r.transitions.WithLabelValues("finalized").Add(float64(stats.Finalized))
	r.transitions.WithLabelValues("skipped").Add(float64(stats.Skipped))
	r.transitions.WithLabelValues("failed").Add(float64(stats.Failed))
	r.sweepDuration.Observe(stats.Duration.Seconds())
}

func (r *Registry) ObservePublished(topic string, count int) {
	r.published.WithLabelValues(topic).Add(float64(count))
}

func (r *Registry) ObservePublishFailure(topic string) {
	r.publishFailures.WithLabelValues(topic).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

var (
	_ ports.SchedulerMetrics = (*Registry)(nil)
	_ ports.RelayMetrics     = (*Registry)(nil)
)

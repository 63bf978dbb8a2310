package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every exported metric.
const DefaultNamespace = "icstasks"

// Observer captures telemetry for per-user syncs.
type Observer interface {
	// RecordSync records one user's sync. status is "success", "partial",
	// "failed" or "skipped".
	RecordSync(status string, inserted, skipped, failed int, duration time.Duration)
	// RecordRun records one multi-user pass.
	RecordRun(duration time.Duration)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordSync(string, int, int, int, time.Duration) {}
func (Nop) RecordRun(time.Duration)                         {}

// PrometheusObserver exports sync metrics to Prometheus.
type PrometheusObserver struct {
	userSyncs    *prometheus.CounterVec
	tasks        *prometheus.CounterVec
	syncDuration prometheus.Histogram
	runDuration  prometheus.Histogram
	lastRun      prometheus.Gauge
}

// NewPrometheusObserver registers the sync collectors with reg, reusing any
// that are already registered.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	observer := &PrometheusObserver{
		userSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_syncs_total",
			Help:      "Per-user sync outcomes by status.",
		}, []string{"status"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Calendar events processed by outcome.",
		}, []string{"outcome"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "user_sync_duration_seconds",
			Help:      "Duration of one user's sync.",
			Buckets:   prometheus.DefBuckets,
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a pass over all users.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last pass over all users finished.",
		}),
	}

	var err error
	if observer.userSyncs, err = register(reg, observer.userSyncs); err != nil {
		return nil, err
	}
	if observer.tasks, err = register(reg, observer.tasks); err != nil {
		return nil, err
	}
	if observer.syncDuration, err = register(reg, observer.syncDuration); err != nil {
		return nil, err
	}
	if observer.runDuration, err = register(reg, observer.runDuration); err != nil {
		return nil, err
	}
	if observer.lastRun, err = register(reg, observer.lastRun); err != nil {
		return nil, err
	}
	return observer, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return collector, fmt.Errorf("register sync metric: %w", err)
	}
	return collector, nil
}

// RecordSync tracks a user's outcome, task counts and duration.
func (o *PrometheusObserver) RecordSync(status string, inserted, skipped, failed int, duration time.Duration) {
	if o == nil {
		return
	}
	o.userSyncs.WithLabelValues(status).Inc()
	o.tasks.WithLabelValues("inserted").Add(float64(inserted))
	o.tasks.WithLabelValues("skipped").Add(float64(skipped))
	o.tasks.WithLabelValues("failed").Add(float64(failed))
	if status != "skipped" {
		o.syncDuration.Observe(duration.Seconds())
	}
}

// RecordRun tracks the duration and completion time of a pass.
func (o *PrometheusObserver) RecordRun(duration time.Duration) {
	if o == nil {
		return
	}
	o.runDuration.Observe(duration.Seconds())
	o.lastRun.SetToCurrentTime()
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

var _ Observer = (*PrometheusObserver)(nil)
var _ Observer = Nop{}

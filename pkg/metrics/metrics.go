package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Swarm metrics — one gauge per job-protocol state, sampled by
	// Collector from SwarmManager.PeerStates().
	WorkersByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dra_workers_by_state",
			Help: "Connected workers by current job-protocol state",
		},
		[]string{"state"},
	)

	WorkersConnectedTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dra_workers_connected_total",
			Help: "Total number of currently connected workers",
		},
	)

	WorkerFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dra_worker_failures_total",
			Help: "Total number of worker failures observed by the master",
		},
	)

	// Coordinator metrics — driven by coordinator.Observer.
	DatasetsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dra_datasets_started_total",
			Help: "Total number of datasets whose processing has begun",
		},
	)

	DatasetsCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dra_datasets_completed_total",
			Help: "Total number of datasets that finished merging",
		},
	)

	EventsProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dra_events_processed_total",
			Help: "Total number of events processed across all workers",
		},
	)

	BytesReadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dra_bytes_read_total",
			Help: "Total number of input bytes read across all workers",
		},
	)

	DatasetDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dra_dataset_duration_seconds",
			Help:    "Time from a dataset's first Process dispatch to its merge completing",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 900, 1800, 3600},
		},
	)

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dra_runs_total",
			Help: "Total number of master runs by terminal outcome",
		},
		[]string{"outcome"}, // "success" or "failed"
	)

	// Reactor metrics.
	ActiveTimers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dra_reactor_active_timers",
			Help: "Number of timers currently scheduled on the master's reactor",
		},
	)
)

func init() {
	prometheus.MustRegister(WorkersByState)
	prometheus.MustRegister(WorkersConnectedTotal)
	prometheus.MustRegister(WorkerFailuresTotal)
	prometheus.MustRegister(DatasetsStartedTotal)
	prometheus.MustRegister(DatasetsCompletedTotal)
	prometheus.MustRegister(EventsProcessedTotal)
	prometheus.MustRegister(BytesReadTotal)
	prometheus.MustRegister(DatasetDuration)
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(ActiveTimers)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

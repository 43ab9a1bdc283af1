package metrics

import (
	"sync"
	"time"
)

// CoordinatorObserver adapts coordinator.Observer, incrementing the
// counters that are cheapest recorded at the moment they happen rather
// than reconstructed from a periodic poll. Per-state peer counts and the
// reactor's timer count are instead sampled by Collector — recording them
// here too on every transition would double-count between ticks.
type CoordinatorObserver struct {
	mu      sync.Mutex
	started map[int]time.Time
}

// NewCoordinatorObserver returns a ready-to-use CoordinatorObserver.
func NewCoordinatorObserver() *CoordinatorObserver {
	return &CoordinatorObserver{started: make(map[int]time.Time)}
}

func (o *CoordinatorObserver) OnDatasetStarted(index int, name string) {
	o.mu.Lock()
	o.started[index] = time.Now()
	o.mu.Unlock()
	DatasetsStartedTotal.Inc()
}

func (o *CoordinatorObserver) OnDatasetComplete(index int, name string) {
	o.mu.Lock()
	start, ok := o.started[index]
	delete(o.started, index)
	o.mu.Unlock()
	if ok {
		DatasetDuration.Observe(time.Since(start).Seconds())
	}
	DatasetsCompletedTotal.Inc()
}

func (o *CoordinatorObserver) OnStopComplete() {
	RunsTotal.WithLabelValues("success").Inc()
}

func (o *CoordinatorObserver) OnFailed(error) {
	RunsTotal.WithLabelValues("failed").Inc()
}

func (o *CoordinatorObserver) OnProgress(worker int32, eventsInRange uint64, bytesInRange uint64) {
	_ = worker // not a metrics label: unbounded cardinality across long runs
	EventsProcessedTotal.Add(float64(eventsInRange))
	BytesReadTotal.Add(float64(bytesInRange))
}

func (o *CoordinatorObserver) OnWorkerFailed(int32) {
	WorkerFailuresTotal.Inc()
}

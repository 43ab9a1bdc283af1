/*
Package metrics provides Prometheus metrics collection and exposition for
the master process.

Two mechanisms feed the registry, matching how cheaply each value can be
observed:

  - CoordinatorObserver implements coordinator.Observer and increments
    counters the instant an event happens: datasets started/completed,
    events processed, bytes read, worker failures, and the run's terminal
    outcome.
  - Collector runs a 15-second ticker, posting onto the owning Reactor to
    sample SwarmManager.PeerStates() and Reactor.ActiveTimers() — gauges
    that are cheaper read as a snapshot than pushed on every transition.

# Metrics Catalog

dra_workers_by_state{state}:
  - Type: Gauge
  - Connected workers grouped by their current job-protocol state
    (start, configure, process, close, merge, stop).

dra_workers_connected_total:
  - Type: Gauge
  - Total number of currently connected workers.

dra_worker_failures_total:
  - Type: Counter
  - Total number of worker channel failures observed by the master,
    recoverable or fatal.

dra_datasets_started_total / dra_datasets_completed_total:
  - Type: Counter
  - Dataset lifecycle boundaries, in dataset order.

dra_events_processed_total / dra_bytes_read_total:
  - Type: Counter
  - Cumulative totals across every worker's completed Process ranges.

dra_dataset_duration_seconds:
  - Type: Histogram
  - Wall-clock time from a dataset's first dispatch to its merge
    completing.

dra_runs_total{outcome}:
  - Type: Counter
  - Terminal outcome of a master run: outcome="success" or "failed".

dra_reactor_active_timers:
  - Type: Gauge
  - Number of timers currently scheduled on the master's reactor.

# Usage

	obs := metrics.NewCoordinatorObserver()
	cc := coordinator.New(cfgPath, cfg, mergeCtrl, onDone)
	cc.SetObserver(obs)

	collector := metrics.NewCollector(graph, cc.SwarmManager(), reactorInstance)
	collector.Start()
	defer collector.Stop()

	http.Handle("/metrics", metrics.Handler())

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics

package metrics

import (
	"time"

	"github.com/riftlab/dra/pkg/reactor"
	"github.com/riftlab/dra/pkg/stategraph"
	"github.com/riftlab/dra/pkg/swarm"
)

// Collector periodically samples gauge-shaped state from a running master —
// per-state peer counts, connected-worker count, and the reactor's active
// timer count — the values that are cheapest read as a snapshot rather than
// pushed on every transition. Counters (events processed, bytes read,
// dataset/worker lifecycle totals) are instead incremented directly as they
// happen, by the Observer in observer.go.
type Collector struct {
	graph *stategraph.Graph
	sm    *swarm.SwarmManager
	r     *reactor.Reactor

	stopCh chan struct{}
}

// NewCollector builds a Collector over a running MasterCoordinator's swarm
// and the Reactor driving it.
func NewCollector(graph *stategraph.Graph, sm *swarm.SwarmManager, r *reactor.Reactor) *Collector {
	return &Collector{graph: graph, sm: sm, r: r, stopCh: make(chan struct{})}
}

// Start begins the periodic collection loop in its own goroutine. Every
// tick posts the actual sampling onto the Reactor instead of reading
// SwarmManager directly — SwarmManager's contract is single-goroutine
// access, and the Reactor's is the only goroutine allowed to touch it.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.r.Post(c.collect)
		for {
			select {
			case <-ticker.C:
				c.r.Post(c.collect)
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends the collection loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectWorkerStates()
	ActiveTimers.Set(float64(c.r.ActiveTimers()))
}

func (c *Collector) collectWorkerStates() {
	states := c.sm.PeerStates()

	counts := make(map[string]int, len(states))
	for _, state := range states {
		counts[c.graph.Name(state)]++
	}

	WorkersByState.Reset()
	for name, n := range counts {
		WorkersByState.WithLabelValues(name).Set(float64(n))
	}
	WorkersConnectedTotal.Set(float64(len(states)))
}

// Package swarm implements the master side of a state-graph-driven RPC: a
// SwarmManager owns a fleet of peers, each tracked by a PeerSession, and
// repeatedly asks a generator to produce the next legal request that
// makes progress toward a target state, honouring any active restriction
// sets.
//
// Grounded on original_source/dra/include/master.hpp (generator/
// result-callback wiring) and dra/src/master.cpp (the dispatch loop).
package swarm

import (
	"sort"

	"github.com/riftlab/dra/pkg/stategraph"
	"github.com/riftlab/dra/pkg/wire"
)

// WorkerID is a peer's stable, monotonically assigned identity.
type WorkerID int32

// Generator fabricates the next message to send to worker when it is in
// the state the generator was registered for. The second return is false
// when there is no work to dispatch right now, in which case the peer
// idles instead.
type Generator func(worker WorkerID) (wire.Message, bool)

// ResultCallback is invoked with a peer's response once a request that
// transitioned the peer into the callback's registered state completes.
type ResultCallback func(worker WorkerID, response wire.Message)

// OnWorkerFailed is invoked once, synchronously, when a peer's channel
// fails. After it returns, the peer is forgotten by the SwarmManager.
type OnWorkerFailed func(worker WorkerID, lastState stategraph.StateID)

type generatorKey struct {
	from stategraph.StateID
	kind string
}

// PeerSession tracks one connected peer's position in the state graph.
type PeerSession struct {
	ID           WorkerID
	State        stategraph.StateID
	InFlightKind string // "" means idle

	channel *wire.Channel
	idle    bool
}

// SwarmManager owns a pool of peer sessions and drives each one toward a
// shared target state. All methods must be called from the same goroutine
// (the owning Reactor's) — there is exactly one consumer by design, so no
// internal locking is used.
type SwarmManager struct {
	graph      *stategraph.Graph
	startState stategraph.StateID

	peers      map[WorkerID]*PeerSession
	nextWorker WorkerID

	generators      map[generatorKey]Generator
	resultCallbacks map[stategraph.StateID]ResultCallback

	target             stategraph.StateID
	activeRestrictions map[stategraph.RestrictionSetID]bool

	onWorkerFailed OnWorkerFailed
	observer       Observer
}

// New returns a SwarmManager over graph, with every new peer starting in
// startState. onFailed is required: it is the hook that lets the caller
// recover outstanding work when a peer's channel dies.
func New(graph *stategraph.Graph, startState stategraph.StateID, onFailed OnWorkerFailed) *SwarmManager {
	return &SwarmManager{
		graph:              graph,
		startState:         startState,
		peers:              make(map[WorkerID]*PeerSession),
		generators:         make(map[generatorKey]Generator),
		resultCallbacks:    make(map[stategraph.StateID]ResultCallback),
		target:             startState,
		activeRestrictions: make(map[stategraph.RestrictionSetID]bool),
		onWorkerFailed:     onFailed,
		observer:           NopObserver{},
	}
}

// SetObserver installs the progress-reporting observer. Optional; defaults
// to a no-op.
func (m *SwarmManager) SetObserver(o Observer) {
	if o == nil {
		o = NopObserver{}
	}
	m.observer = o
}

// Connect registers the generator invoked to produce a message of kind
// when a peer in fromState is dispatched along that transition.
func (m *SwarmManager) Connect(fromState stategraph.StateID, kind string, gen Generator) {
	m.generators[generatorKey{fromState, kind}] = gen
}

// SetResultCallback registers cb to run whenever a request completes and
// transitions a peer into state.
func (m *SwarmManager) SetResultCallback(state stategraph.StateID, cb ResultCallback) {
	m.resultCallbacks[state] = cb
}

// SetTargetState changes the state every peer is driven toward, then
// re-evaluates every currently idle peer against the new target.
func (m *SwarmManager) SetTargetState(s stategraph.StateID) {
	if m.target == s {
		return
	}
	m.target = s
	m.observer.OnTargetChanged(s)
	m.redispatchIdle()
}

// ActivateRestrictionSet disables every transition in set and
// re-evaluates idle peers.
func (m *SwarmManager) ActivateRestrictionSet(set stategraph.RestrictionSetID) {
	m.setRestriction(set, true)
}

// DeactivateRestrictionSet re-enables every transition in set and
// re-evaluates idle peers.
func (m *SwarmManager) DeactivateRestrictionSet(set stategraph.RestrictionSetID) {
	m.setRestriction(set, false)
}

func (m *SwarmManager) setRestriction(set stategraph.RestrictionSetID, active bool) {
	if m.activeRestrictions[set] == active {
		return
	}
	m.activeRestrictions[set] = active
	m.observer.OnRestrictionsChanged(set, active)
	m.redispatchIdle()
}

func (m *SwarmManager) redispatchIdle() {
	for _, p := range m.peers {
		if p.idle {
			m.tryAdvance(p)
		}
	}
}

// AddPeer wraps a newly accepted/connected channel as a peer session
// starting at the graph's start state, and kicks off its dispatch loop.
func (m *SwarmManager) AddPeer(ch *wire.Channel) WorkerID {
	m.nextWorker++
	id := m.nextWorker
	p := &PeerSession{ID: id, State: m.startState, channel: ch}
	m.peers[id] = p

	ch.SetErrorHandler(func(err error) { m.failPeer(p) })
	m.tryAdvance(p)
	return id
}

// Peers returns the set of currently connected worker IDs.
func (m *SwarmManager) Peers() []WorkerID {
	ids := make([]WorkerID, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PeerStates returns each connected peer's current state, keyed by worker
// ID. Intended for periodic metrics collection; safe to call at any point
// since it only reads.
func (m *SwarmManager) PeerStates() map[WorkerID]stategraph.StateID {
	out := make(map[WorkerID]stategraph.StateID, len(m.peers))
	for id, p := range m.peers {
		out[id] = p.State
	}
	return out
}

// AllIdle reports whether every currently connected peer is idle, that is,
// has no request in flight. A peer whose response is being handled by a
// result callback counts as idle.
func (m *SwarmManager) AllIdle() bool {
	for _, p := range m.peers {
		if p.InFlightKind != "" {
			return false
		}
	}
	return true
}

func (m *SwarmManager) failPeer(p *PeerSession) {
	if _, ok := m.peers[p.ID]; !ok {
		return // already failed/removed
	}
	delete(m.peers, p.ID)
	lastState := p.State
	m.onWorkerFailed(p.ID, lastState)
}

// tryAdvance implements the per-peer dispatch loop.
func (m *SwarmManager) tryAdvance(p *PeerSession) {
	if p.State == m.target {
		if !p.idle {
			p.idle = true
			m.observer.OnIdle(p.ID, p.State)
		}
		return
	}

	kind, ok := m.nextHop(p.State)
	if !ok {
		if !p.idle {
			p.idle = true
			m.observer.OnIdle(p.ID, p.State)
		}
		return
	}

	gen, ok := m.generators[generatorKey{p.State, kind}]
	if !ok {
		if !p.idle {
			p.idle = true
			m.observer.OnIdle(p.ID, p.State)
		}
		return
	}
	msg, ok := gen(p.ID)
	if !ok {
		if !p.idle {
			p.idle = true
			m.observer.OnIdle(p.ID, p.State)
		}
		return
	}

	p.idle = false
	p.InFlightKind = kind
	p.channel.WriteAsync(msg, func(err error) {
		if err != nil {
			m.failPeer(p)
			return
		}
		p.channel.SetReadHandler(func(resp wire.Message) {
			m.onResponse(p, kind, resp)
		})
	})
}

func (m *SwarmManager) onResponse(p *PeerSession, kind string, resp wire.Message) {
	to, ok := m.graph.Next(p.State, kind)
	if !ok {
		m.failPeer(p)
		return
	}
	from := p.State
	p.State = to
	p.InFlightKind = ""
	m.observer.OnStateTransition(p.ID, from, to)

	if cb := m.resultCallbacks[to]; cb != nil {
		cb(p.ID, resp)
	}
	m.tryAdvance(p)
}

// nextHop picks the single legal transition out of from that makes
// shortest-path progress toward the target state. Ties (more than one
// legal transition with equal progress) are broken by lexicographically
// smallest kind, for determinism; the job-coordination graph in practice
// never produces a tie.
func (m *SwarmManager) nextHop(from stategraph.StateID) (string, bool) {
	dist := m.distanceToTarget()
	curDist, ok := dist[from]
	if !ok || curDist == 0 {
		return "", false
	}

	legal := m.graph.TransitionsFrom(from, m.activeRestrictions)
	var best string
	haveBest := false
	for kind, to := range legal {
		d, ok := dist[to]
		if !ok || d != curDist-1 {
			continue
		}
		if !haveBest || kind < best {
			best = kind
			haveBest = true
		}
	}
	return best, haveBest
}

// distanceToTarget returns, for every state with a legal path to the
// current target, the number of hops required to reach it.
func (m *SwarmManager) distanceToTarget() map[stategraph.StateID]int {
	reverse := make(map[stategraph.StateID][]stategraph.StateID)
	for _, s := range m.graph.States() {
		for _, to := range m.graph.TransitionsFrom(s, m.activeRestrictions) {
			reverse[to] = append(reverse[to], s)
		}
	}

	dist := map[stategraph.StateID]int{m.target: 0}
	queue := []stategraph.StateID{m.target}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, prev := range reverse[cur] {
			if _, seen := dist[prev]; !seen {
				dist[prev] = dist[cur] + 1
				queue = append(queue, prev)
			}
		}
	}
	return dist
}

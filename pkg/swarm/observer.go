package swarm

import "github.com/riftlab/dra/pkg/stategraph"

// Observer receives progress notifications from a SwarmManager. Every
// method is called on the owning reactor goroutine. Grounded stylistically
// on the typed-event-listener shape in zoobzio-capitan, but scoped to the
// exact four notifications original_source/dra/include/master.hpp's
// SwarmObserver defines rather than a general pub/sub bus — a
// SwarmManager holds a single Observer, not a fan-out audience.
type Observer interface {
	OnStateTransition(worker WorkerID, from, to stategraph.StateID)
	OnIdle(worker WorkerID, state stategraph.StateID)
	OnTargetChanged(target stategraph.StateID)
	OnRestrictionsChanged(set stategraph.RestrictionSetID, active bool)
}

// NopObserver implements Observer with no-ops, so callers that only care
// about a subset of notifications can embed it and override the rest.
type NopObserver struct{}

func (NopObserver) OnStateTransition(WorkerID, stategraph.StateID, stategraph.StateID) {}
func (NopObserver) OnIdle(WorkerID, stategraph.StateID)                                {}
func (NopObserver) OnTargetChanged(stategraph.StateID)                                 {}
func (NopObserver) OnRestrictionsChanged(stategraph.RestrictionSetID, bool)            {}

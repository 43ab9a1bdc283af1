// Package stategraph implements a small declarative state machine: named
// states, transitions labelled by a message kind, and named restriction
// sets that can disable groups of transitions at runtime.
package stategraph

import "fmt"

// StateID identifies a state within a Graph.
type StateID int

// RestrictionSetID identifies a named group of transitions within a Graph.
type RestrictionSetID int

type transitionKey struct {
	from StateID
	kind string
}

// Graph is an immutable-after-Freeze collection of states, transitions
// keyed by (fromState, messageKind), and restriction sets grouping
// transitions that may be disabled together at runtime.
type Graph struct {
	stateNames []string
	stateIDs   map[string]StateID

	restrictionNames []string
	restrictionIDs   map[string]RestrictionSetID

	transitions map[transitionKey]StateID
	// restrictedBy[transitionKey] is the set of restriction sets that
	// cover this transition.
	restrictedBy map[transitionKey]map[RestrictionSetID]bool

	frozen bool
}

// New returns an empty, mutable Graph.
func New() *Graph {
	return &Graph{
		stateIDs:       make(map[string]StateID),
		restrictionIDs: make(map[string]RestrictionSetID),
		transitions:    make(map[transitionKey]StateID),
		restrictedBy:   make(map[transitionKey]map[RestrictionSetID]bool),
	}
}

func (g *Graph) mustNotBeFrozen(op string) {
	if g.frozen {
		panic(fmt.Sprintf("stategraph: %s called after Freeze", op))
	}
}

// AddState registers a new state and returns its ID. Adding a state with a
// name that already exists is a contract violation.
func (g *Graph) AddState(name string) StateID {
	g.mustNotBeFrozen("AddState")
	if _, exists := g.stateIDs[name]; exists {
		panic(fmt.Sprintf("stategraph: state %q already exists", name))
	}
	id := StateID(len(g.stateNames))
	g.stateNames = append(g.stateNames, name)
	g.stateIDs[name] = id
	return id
}

// State looks up a state by name. The second return is false if no such
// state exists.
func (g *Graph) State(name string) (StateID, bool) {
	id, ok := g.stateIDs[name]
	return id, ok
}

// MustState looks up a state by name, panicking if it does not exist.
func (g *Graph) MustState(name string) StateID {
	id, ok := g.State(name)
	if !ok {
		panic(fmt.Sprintf("stategraph: no such state %q", name))
	}
	return id
}

// Name returns the registered name of a state.
func (g *Graph) Name(s StateID) string {
	return g.stateNames[s]
}

// AddTransition declares that sending a message of the given kind while a
// peer is in state from moves it to state to. It panics if a transition
// for the same (from, kind) pair was already added.
func (g *Graph) AddTransition(kind string, from, to StateID) {
	g.mustNotBeFrozen("AddTransition")
	key := transitionKey{from, kind}
	if _, exists := g.transitions[key]; exists {
		panic(fmt.Sprintf("stategraph: duplicate transition for state %q, kind %q", g.stateNames[from], kind))
	}
	g.transitions[key] = to
}

// AddRestrictionSet registers a named group of transitions that can later
// be activated/deactivated as a unit.
func (g *Graph) AddRestrictionSet(name string) RestrictionSetID {
	g.mustNotBeFrozen("AddRestrictionSet")
	if _, exists := g.restrictionIDs[name]; exists {
		panic(fmt.Sprintf("stategraph: restriction set %q already exists", name))
	}
	id := RestrictionSetID(len(g.restrictionNames))
	g.restrictionNames = append(g.restrictionNames, name)
	g.restrictionIDs[name] = id
	return id
}

// RestrictionSet looks up a restriction set by name.
func (g *Graph) RestrictionSet(name string) (RestrictionSetID, bool) {
	id, ok := g.restrictionIDs[name]
	return id, ok
}

// MustRestrictionSet looks up a restriction set by name, panicking if it
// does not exist.
func (g *Graph) MustRestrictionSet(name string) RestrictionSetID {
	id, ok := g.RestrictionSet(name)
	if !ok {
		panic(fmt.Sprintf("stategraph: no such restriction set %q", name))
	}
	return id
}

// AddRestriction adds the (from, kind)-keyed transition that would take a
// peer from "from" on a message of kind — found by scanning transitions
// already added for that state — into the named restriction set. Since
// transitions are keyed by (from, kind) and the kind alone does not
// disambiguate, callers pass from and to explicitly and the transition
// must already have been declared with AddTransition.
func (g *Graph) AddRestriction(set RestrictionSetID, kind string, from, to StateID) {
	g.mustNotBeFrozen("AddRestriction")
	key := transitionKey{from, kind}
	dest, ok := g.transitions[key]
	if !ok || dest != to {
		panic(fmt.Sprintf("stategraph: AddRestriction refers to an undeclared transition (from=%q kind=%q to=%q)",
			g.stateNames[from], kind, g.stateNames[to]))
	}
	if g.restrictedBy[key] == nil {
		g.restrictedBy[key] = make(map[RestrictionSetID]bool)
	}
	g.restrictedBy[key][set] = true
}

// Freeze marks the Graph read-only and safe to share across goroutines;
// it performs no validation of its own (duplicate (from, kind)
// transitions are already rejected by AddTransition).
func (g *Graph) Freeze() *Graph {
	g.frozen = true
	return g
}

// Next returns the state a peer in state "from" would transition to upon
// sending/receiving a message of the given kind, and whether such a
// transition exists at all (irrespective of restrictions).
func (g *Graph) Next(from StateID, kind string) (StateID, bool) {
	to, ok := g.transitions[transitionKey{from, kind}]
	return to, ok
}

// Legal reports whether the transition (from, kind) exists and is not
// currently disabled by any restriction set named in active.
func (g *Graph) Legal(from StateID, kind string, active map[RestrictionSetID]bool) bool {
	key := transitionKey{from, kind}
	if _, ok := g.transitions[key]; !ok {
		return false
	}
	for set := range g.restrictedBy[key] {
		if active[set] {
			return false
		}
	}
	return true
}

// TransitionsFrom returns the message kinds that have a legal transition
// out of "from" given the currently active restriction sets, along with
// the destination state for each.
func (g *Graph) TransitionsFrom(from StateID, active map[RestrictionSetID]bool) map[string]StateID {
	out := make(map[string]StateID)
	for key, to := range g.transitions {
		if key.from != from {
			continue
		}
		if g.Legal(from, key.kind, active) {
			out[key.kind] = to
		}
	}
	return out
}

package stategraph

// States returns every state registered in the graph, in declaration
// order. Used by pkg/swarm to compute shortest paths toward a target
// state without needing to know the graph's shape in advance.
func (g *Graph) States() []StateID {
	out := make([]StateID, len(g.stateNames))
	for i := range g.stateNames {
		out[i] = StateID(i)
	}
	return out
}

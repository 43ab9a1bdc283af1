package stategraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuplicateTransitionPanics(t *testing.T) {
	g := New()
	a := g.AddState("a")
	b := g.AddState("b")
	c := g.AddState("c")
	g.AddTransition("X", a, b)
	assert.Panics(t, func() { g.AddTransition("X", a, c) })
}

func TestNextIsDeterministic(t *testing.T) {
	g := New()
	a := g.AddState("a")
	b := g.AddState("b")
	g.AddTransition("X", a, b)
	g.Freeze()

	to, ok := g.Next(a, "X")
	require.True(t, ok)
	assert.Equal(t, b, to)

	_, ok = g.Next(a, "Y")
	assert.False(t, ok)

	_, ok = g.Next(b, "X")
	assert.False(t, ok)
}

func TestRestrictionDisablesTransition(t *testing.T) {
	g := New()
	a := g.AddState("a")
	b := g.AddState("b")
	g.AddTransition("X", a, b)
	rs := g.AddRestrictionSet("pause")
	g.AddRestriction(rs, "X", a, b)
	g.Freeze()

	active := map[RestrictionSetID]bool{}
	assert.True(t, g.Legal(a, "X", active))

	active[rs] = true
	assert.False(t, g.Legal(a, "X", active))

	active[rs] = false
	assert.True(t, g.Legal(a, "X", active))
}

func TestAddRestrictionRequiresDeclaredTransition(t *testing.T) {
	g := New()
	a := g.AddState("a")
	b := g.AddState("b")
	rs := g.AddRestrictionSet("pause")
	assert.Panics(t, func() { g.AddRestriction(rs, "X", a, b) })
}

func TestMutationAfterFreezePanics(t *testing.T) {
	g := New()
	a := g.AddState("a")
	g.Freeze()
	assert.Panics(t, func() { g.AddState("b") })
	assert.Panics(t, func() { g.AddTransition("X", a, a) })
}

func TestJobGraphShape(t *testing.T) {
	g, s, r := JobGraph()

	cases := []struct {
		from StateID
		kind string
		to   StateID
	}{
		{s.Start, KindConfigure, s.Configure},
		{s.Configure, KindProcess, s.Process},
		{s.Process, KindProcess, s.Process},
		{s.Merge, KindProcess, s.Process},
		{s.Close, KindProcess, s.Process},
		{s.Process, KindClose, s.Close},
		{s.Close, KindMerge, s.Merge},
		{s.Merge, KindMerge, s.Merge},
		{s.Close, KindStop, s.Stop},
		{s.Merge, KindStop, s.Stop},
		{s.Configure, KindStop, s.Stop},
		{s.Start, KindStop, s.Stop},
	}
	for _, c := range cases {
		to, ok := g.Next(c.from, c.kind)
		require.True(t, ok, "expected transition from %s on %q", g.Name(c.from), c.kind)
		assert.Equal(t, c.to, to)
	}

	active := map[RestrictionSetID]bool{r.NoProcess: true}
	assert.False(t, g.Legal(s.Process, KindProcess, active))
	active = map[RestrictionSetID]bool{r.NoMerge: true}
	assert.False(t, g.Legal(s.Close, KindMerge, active))
}

package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsed/biem/pkg/graph"
)

func TestAddLinkIdempotent(t *testing.T) {
	g := graph.New()

	added, err := g.AddLink(graph.Link{Source: "a", Target: "b", Type: graph.LinkTemporal, Weight: 1.0, Scope: "s"})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = g.AddLink(graph.Link{Source: "a", Target: "b", Type: graph.LinkTemporal, Weight: 1.0, Scope: "s"})
	require.NoError(t, err)
	assert.False(t, added, "duplicate (source,target,type) must not be added twice")

	assert.Len(t, g.Neighbors("s", "a"), 1)
}

func TestAddLinkRejectsOutOfRangeWeight(t *testing.T) {
	g := graph.New()
	_, err := g.AddLink(graph.Link{Source: "a", Target: "b", Type: graph.LinkSemantic, Weight: 0, Scope: "s"})
	assert.ErrorIs(t, err, graph.ErrInvalidWeight)

	_, err = g.AddLink(graph.Link{Source: "a", Target: "b", Type: graph.LinkSemantic, Weight: 1.5, Scope: "s"})
	assert.ErrorIs(t, err, graph.ErrInvalidWeight)
}

func TestSpreadZeroHopsIsEmpty(t *testing.T) {
	g := graph.New()
	_, _ = g.AddLink(graph.Link{Source: "a", Target: "b", Type: graph.LinkSemantic, Weight: 0.9, Scope: "s"})

	result := g.Spread("s", []string{"a"}, 0, 0.5)
	assert.Empty(t, result)
}

func TestSpreadExcludesSeedsAndAccumulatesWithinHop(t *testing.T) {
	g := graph.New()
	_, _ = g.AddLink(graph.Link{Source: "a", Target: "b", Type: graph.LinkSemantic, Weight: 1.0, Scope: "s"})
	_, _ = g.AddLink(graph.Link{Source: "c", Target: "b", Type: graph.LinkSemantic, Weight: 0.5, Scope: "s"})
	_, _ = g.AddLink(graph.Link{Source: "b", Target: "a", Type: graph.LinkSemantic, Weight: 1.0, Scope: "s"})

	result := g.Spread("s", []string{"a", "c"}, 1, 0.5)

	assert.NotContains(t, result, "a", "seeds must be excluded from the result")
	assert.NotContains(t, result, "c")
	// b receives from a: 1.0*0.5*1.0=0.5, from c: 1.0*0.5*0.5=0.25 -> same-hop
	// contributions accumulate, so b's total is 0.75.
	assert.InDelta(t, 0.75, result["b"], 1e-9)
}

func TestSpreadTakesMaxAcrossHops(t *testing.T) {
	g := graph.New()
	_, _ = g.AddLink(graph.Link{Source: "a", Target: "b", Type: graph.LinkSemantic, Weight: 1.0, Scope: "s"})
	_, _ = g.AddLink(graph.Link{Source: "b", Target: "c", Type: graph.LinkSemantic, Weight: 1.0, Scope: "s"})
	_, _ = g.AddLink(graph.Link{Source: "c", Target: "b", Type: graph.LinkSemantic, Weight: 1.0, Scope: "s"})

	result := g.Spread("s", []string{"a"}, 3, 0.5)

	// Hop 1: b = 1.0*0.5*1.0 = 0.5.
	// Hop 2: c = 0.5*0.5*1.0 = 0.25.
	// Hop 3: b is reached again via c = 0.25*0.5*1.0 = 0.125, strictly less
	// than hop 1's 0.5 — the larger, earlier value must win.
	assert.InDelta(t, 0.5, result["b"], 1e-9)
	assert.InDelta(t, 0.25, result["c"], 1e-9)
}

func TestSpreadScopeIsolation(t *testing.T) {
	g := graph.New()
	_, _ = g.AddLink(graph.Link{Source: "a", Target: "b", Type: graph.LinkSemantic, Weight: 1.0, Scope: "s1"})

	result := g.Spread("s2", []string{"a"}, 2, 0.5)
	assert.Empty(t, result)
}

func TestMarkPersistedClearsPendingFlag(t *testing.T) {
	g := graph.New()
	_, _ = g.AddLink(graph.Link{Source: "a", Target: "b", Type: graph.LinkCausal, Weight: 0.5, Scope: "s", Pending: true})

	require.Len(t, g.PendingLinks("s"), 1)
	g.MarkPersisted("s", "a", "b", graph.LinkCausal)
	assert.Empty(t, g.PendingLinks("s"))
}

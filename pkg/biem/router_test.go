package biem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsed/biem/pkg/graph"
	"github.com/synapsed/biem/pkg/relstore"
)

func newTestRouter(t *testing.T) (*AssociationRouter, *NodeStore, *graph.Graph) {
	t.Helper()
	nodes := newTestNodeStore()
	g := graph.New()
	rel, err := relstore.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { rel.Close() })
	return NewAssociationRouter(DefaultConfig(), nodes, g, rel, nil), nodes, g
}

func TestRouteCreatesSymmetricTemporalLinks(t *testing.T) {
	ctx := context.Background()
	router, nodes, g := newTestRouter(t)

	a := MemoryNode{ID: "a", Scope: "s", Vector: []float32{1, 0}, Metadata: Metadata{CreatedAt: time.Now(), LastAccessed: time.Now()}}
	require.NoError(t, nodes.Put(ctx, a))
	router.Route(ctx, a)

	b := MemoryNode{ID: "b", Scope: "s", Vector: []float32{0, 1}, Metadata: Metadata{CreatedAt: time.Now().Add(time.Second), LastAccessed: time.Now()}}
	require.NoError(t, nodes.Put(ctx, b))
	router.Route(ctx, b)

	aNeighbors := g.Neighbors("s", "a")
	bNeighbors := g.Neighbors("s", "b")
	require.Len(t, aNeighbors, 1)
	require.Len(t, bNeighbors, 1)
	assert.Equal(t, "b", aNeighbors[0].ID)
	assert.Equal(t, "a", bNeighbors[0].ID)
	assert.Equal(t, graph.LinkTemporal, aNeighbors[0].Type)
}

func TestRouteDoesNotDuplicateLinksOnThirdCall(t *testing.T) {
	ctx := context.Background()
	router, nodes, g := newTestRouter(t)

	a := MemoryNode{ID: "a", Scope: "s", Vector: []float32{1, 0}, Metadata: Metadata{CreatedAt: time.Now(), LastAccessed: time.Now()}}
	b := MemoryNode{ID: "b", Scope: "s", Vector: []float32{0, 1}, Metadata: Metadata{CreatedAt: time.Now().Add(time.Second), LastAccessed: time.Now()}}
	require.NoError(t, nodes.Put(ctx, a))
	router.Route(ctx, a)
	require.NoError(t, nodes.Put(ctx, b))
	router.Route(ctx, b)

	c := MemoryNode{ID: "c", Scope: "s", Vector: []float32{0, -1}, Metadata: Metadata{CreatedAt: time.Now().Add(2 * time.Second), LastAccessed: time.Now()}}
	require.NoError(t, nodes.Put(ctx, c))
	router.Route(ctx, c)

	// a's temporal neighbors should now include b and c but not duplicate b.
	aNeighbors := g.Neighbors("s", "a")
	assert.Len(t, aNeighbors, 2)
}

func TestRouteSemanticLinkAboveThreshold(t *testing.T) {
	ctx := context.Background()
	router, nodes, g := newTestRouter(t)

	a := MemoryNode{ID: "a", Scope: "s", Vector: []float32{1, 0}, Metadata: Metadata{CreatedAt: time.Now().Add(-time.Hour), LastAccessed: time.Now()}}
	require.NoError(t, nodes.Put(ctx, a))
	router.Route(ctx, a)

	// b is identical direction to a -> cosine similarity 1.0, well above 0.7.
	b := MemoryNode{ID: "b", Scope: "s", Vector: []float32{1, 0}, Metadata: Metadata{CreatedAt: time.Now(), LastAccessed: time.Now()}}
	require.NoError(t, nodes.Put(ctx, b))
	router.Route(ctx, b)

	found := false
	for _, n := range g.Neighbors("s", "b") {
		if n.ID == "a" && n.Type == graph.LinkSemantic {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRouteSkipsDegradedNodeForSemanticLinking(t *testing.T) {
	ctx := context.Background()
	router, nodes, _ := newTestRouter(t)

	degraded := MemoryNode{ID: "d", Scope: "s", Vector: []float32{0, 0}, Metadata: Metadata{Degraded: true, CreatedAt: time.Now(), LastAccessed: time.Now()}}
	require.NoError(t, nodes.Put(ctx, degraded))
	// Must not panic or attempt a vector search against an empty/degraded entry.
	router.Route(ctx, degraded)
}

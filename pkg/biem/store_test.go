package biem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsed/biem/pkg/kv"
	"github.com/synapsed/biem/pkg/vecstore"
)

func newTestNodeStore() *NodeStore {
	return NewNodeStore(kv.NewMemory(nil), kv.Key{"test"}, func() vecstore.Index { return vecstore.NewMemory() })
}

func TestNodeStorePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestNodeStore()

	node := MemoryNode{ID: "n1", Scope: "s1", Content: "hello", Vector: []float32{1, 0}, Energy: 0.8, Tier: TierL2,
		Metadata: Metadata{CreatedAt: time.Now(), LastAccessed: time.Now()}}
	require.NoError(t, s.Put(ctx, node))

	got, err := s.Get(ctx, "s1", "n1")
	require.NoError(t, err)
	assert.Equal(t, node.Content, got.Content)
}

func TestNodeStoreSearchByVectorScopeIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestNodeStore()

	n1 := MemoryNode{ID: "n1", Scope: "s1", Content: "a", Vector: []float32{1, 0}, Energy: 0.9,
		Metadata: Metadata{CreatedAt: time.Now(), LastAccessed: time.Now()}}
	n2 := MemoryNode{ID: "n2", Scope: "s2", Content: "b", Vector: []float32{1, 0}, Energy: 0.9,
		Metadata: Metadata{CreatedAt: time.Now(), LastAccessed: time.Now()}}
	require.NoError(t, s.Put(ctx, n1))
	require.NoError(t, s.Put(ctx, n2))

	results, err := s.SearchByVector(ctx, "s1", []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "s1", results[0].Node.Scope)
}

func TestNodeStoreDegradedNodeExcludedFromVectorIndex(t *testing.T) {
	ctx := context.Background()
	s := newTestNodeStore()

	degraded := MemoryNode{ID: "n1", Scope: "s1", Content: "bad embed", Vector: []float32{0, 0},
		Metadata: Metadata{Degraded: true, CreatedAt: time.Now(), LastAccessed: time.Now()}}
	require.NoError(t, s.Put(ctx, degraded))

	results, err := s.SearchByVector(ctx, "s1", []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results, "a degraded node must never be returned as a recall seed")
}

func TestNodeStoreFilterByTier(t *testing.T) {
	ctx := context.Background()
	s := newTestNodeStore()

	l1 := MemoryNode{ID: "n1", Scope: "s1", Tier: TierL1, Vector: []float32{1, 0}, Energy: 0.9,
		Metadata: Metadata{CreatedAt: time.Now(), LastAccessed: time.Now()}}
	l2 := MemoryNode{ID: "n2", Scope: "s1", Tier: TierL2, Vector: []float32{1, 0}, Energy: 0.9,
		Metadata: Metadata{CreatedAt: time.Now(), LastAccessed: time.Now()}}
	require.NoError(t, s.Put(ctx, l1))
	require.NoError(t, s.Put(ctx, l2))

	wantTier := TierL1
	results, err := s.SearchByVector(ctx, "s1", []float32{1, 0}, 10, &Filter{Tier: &wantTier})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "n1", results[0].Node.ID)
}

func TestNodeStoreRecentByScopeOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestNodeStore()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"old", "mid", "new"} {
		n := MemoryNode{ID: id, Scope: "s1", Vector: []float32{1, 0},
			Metadata: Metadata{CreatedAt: base.Add(time.Duration(i) * time.Minute), LastAccessed: base}}
		require.NoError(t, s.Put(ctx, n))
	}

	recent, err := s.RecentByScope(ctx, "s1", 2, 0, time.Now())
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "new", recent[0].ID)
	assert.Equal(t, "mid", recent[1].ID)
}

package biem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsed/biem/pkg/llm"
)

func TestConflictCheckerNilProviderNeverConflicts(t *testing.T) {
	nodes := newTestNodeStore()
	checker := NewConflictChecker(DefaultConfig(), nodes, nil, nil)

	n := MemoryNode{ID: "n1", Scope: "s", Vector: []float32{1, 0}, Metadata: Metadata{CreatedAt: time.Now(), LastAccessed: time.Now()}}
	report := checker.Check(context.Background(), n)
	assert.False(t, report.HasConflict())
}

func TestConflictCheckerReportsAdvisoryConflict(t *testing.T) {
	ctx := context.Background()
	nodes := newTestNodeStore()

	existing := MemoryNode{ID: "existing", Scope: "s", Content: "GPT-4 has a 32k context window",
		Vector: []float32{1, 0}, Energy: 0.9, Metadata: Metadata{CreatedAt: time.Now(), LastAccessed: time.Now()}}
	require.NoError(t, nodes.Put(ctx, existing))

	provider := &llm.StaticProvider{JSON: `{"is_conflict":true,"conflict_type":"value_change","description":"context window changed","confidence":0.9}`}
	checker := NewConflictChecker(DefaultConfig(), nodes, provider, nil)

	incoming := MemoryNode{ID: "incoming", Scope: "s", Content: "GPT-4 now has a 128k context window",
		Vector: []float32{1, 0}, Metadata: Metadata{CreatedAt: time.Now(), LastAccessed: time.Now()}}

	report := checker.Check(ctx, incoming)
	require.True(t, report.HasConflict())
	assert.Equal(t, "existing", report.Conflicts[0].NeighborID)
}

func TestConflictCheckerIgnoresLowConfidence(t *testing.T) {
	ctx := context.Background()
	nodes := newTestNodeStore()

	existing := MemoryNode{ID: "existing", Scope: "s", Content: "a", Vector: []float32{1, 0}, Energy: 0.9,
		Metadata: Metadata{CreatedAt: time.Now(), LastAccessed: time.Now()}}
	require.NoError(t, nodes.Put(ctx, existing))

	provider := &llm.StaticProvider{JSON: `{"is_conflict":true,"conflict_type":"value_change","description":"maybe","confidence":0.2}`}
	checker := NewConflictChecker(DefaultConfig(), nodes, provider, nil)

	incoming := MemoryNode{ID: "incoming", Scope: "s", Content: "b", Vector: []float32{1, 0},
		Metadata: Metadata{CreatedAt: time.Now(), LastAccessed: time.Now()}}

	report := checker.Check(ctx, incoming)
	assert.False(t, report.HasConflict())
}

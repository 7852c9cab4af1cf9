package biem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/synapsed/biem/pkg/kv"
	"github.com/synapsed/biem/pkg/vecstore"
)

// Filter restricts a vector search to candidates matching every non-nil
// field (§4.4 "optional filters on tier/energy/time").
type Filter struct {
	Tier      *Tier
	MinEnergy *float64
	Since     *time.Time
}

func (f *Filter) matches(n *MemoryNode) bool {
	if f == nil {
		return true
	}
	if f.Tier != nil && n.Tier != *f.Tier {
		return false
	}
	if f.MinEnergy != nil && n.Energy < *f.MinEnergy {
		return false
	}
	if f.Since != nil && n.Metadata.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// NodeStore is C4: a durable ANN index over MemoryNodes with scalar
// attribute filters, combining a pkg/vecstore.Index (pure nearest-neighbor
// search, no domain semantics) with a pkg/kv.Store (the authoritative
// record: content, metadata, energy, tier). Scope isolation is enforced by
// giving every scope its own vecstore.Index rather than by a shared index
// with a post-hoc scope filter, so a bug in filtering logic can never leak
// a neighbor across scopes.
type NodeStore struct {
	store     kv.Store
	prefix    kv.Key
	newIndex  func() vecstore.Index
	mu        sync.Mutex
	vecByScope map[string]vecstore.Index
}

// NewNodeStore builds a NodeStore. newIndex constructs a fresh, empty
// vecstore.Index for a scope the first time that scope is touched.
func NewNodeStore(store kv.Store, prefix kv.Key, newIndex func() vecstore.Index) *NodeStore {
	return &NodeStore{
		store:      store,
		prefix:     prefix,
		newIndex:   newIndex,
		vecByScope: make(map[string]vecstore.Index),
	}
}

func (s *NodeStore) indexFor(scope string) vecstore.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.vecByScope[scope]
	if !ok {
		idx = s.newIndex()
		s.vecByScope[scope] = idx
	}
	return idx
}

func (s *NodeStore) nodeKey(scope, id string) kv.Key {
	return append(append(kv.Key{}, s.prefix...), "n", scope, id)
}

func (s *NodeStore) scopeNodePrefix(scope string) kv.Key {
	return append(append(kv.Key{}, s.prefix...), "n", scope)
}

func (s *NodeStore) scopeIndexKey(scope string, createdAt time.Time, id string) kv.Key {
	return append(append(kv.Key{}, s.prefix...), "t", scope, fmt.Sprintf("%020d", createdAt.UnixNano()), id)
}

func (s *NodeStore) scopeIndexPrefix(scope string) kv.Key {
	return append(append(kv.Key{}, s.prefix...), "t", scope)
}

// Put upserts node by id, fully replacing its mutable scalars (§4.4
// "put(node)"). A degraded node (zero vector) is still recorded in kv but
// never inserted into the vector index, matching §4.10's requirement that
// it "must not be used as a seed in recall."
func (s *NodeStore) Put(ctx context.Context, node MemoryNode) error {
	data, err := msgpack.Marshal(node)
	if err != nil {
		return newPermanentErr("marshal_node", "marshal node", err)
	}
	if err := s.store.Set(ctx, s.nodeKey(node.Scope, node.ID), data); err != nil {
		return newTransientErr("kv_put_node", "store node", err)
	}
	if err := s.store.Set(ctx, s.scopeIndexKey(node.Scope, node.Metadata.CreatedAt, node.ID), []byte(node.ID)); err != nil {
		return newTransientErr("kv_put_scope_index", "store scope index entry", err)
	}

	if !node.Metadata.Degraded {
		if err := s.indexFor(node.Scope).Insert(node.ID, node.Vector); err != nil {
			return newTransientErr("vec_insert", "insert vector", err)
		}
	}
	return nil
}

// Get fetches a node by exact id within scope.
func (s *NodeStore) Get(ctx context.Context, scope, id string) (MemoryNode, error) {
	data, err := s.store.Get(ctx, s.nodeKey(scope, id))
	if err != nil {
		if err == kv.ErrNotFound {
			return MemoryNode{}, err
		}
		return MemoryNode{}, newTransientErr("kv_get_node", "get node", err)
	}
	var node MemoryNode
	if err := msgpack.Unmarshal(data, &node); err != nil {
		return MemoryNode{}, newPermanentErr("unmarshal_node", "unmarshal node", err)
	}
	return node, nil
}

// Delete removes a node, for administrative reset only (§4.4).
func (s *NodeStore) Delete(ctx context.Context, scope, id string) error {
	if err := s.store.Delete(ctx, s.nodeKey(scope, id)); err != nil {
		return newTransientErr("kv_delete_node", "delete node", err)
	}
	if err := s.indexFor(scope).Delete(id); err != nil {
		return newTransientErr("vec_delete", "delete vector", err)
	}
	return nil
}

// SearchByVector runs cosine-similarity search scoped to scope, applying
// filter to every candidate and returning up to topK matches ordered by
// score descending (§4.4).
func (s *NodeStore) SearchByVector(ctx context.Context, scope string, query []float32, topK int, filter *Filter) ([]Scored, error) {
	idx := s.indexFor(scope)
	n := idx.Len()
	if n == 0 {
		return nil, nil
	}

	// Overfetch to leave room for filtered-out candidates; cap at the
	// index size so we never request more than exists.
	fetch := topK * 4
	if fetch < topK {
		fetch = topK
	}
	if fetch > n {
		fetch = n
	}

	matches, err := idx.Search(query, fetch)
	if err != nil {
		return nil, newTransientErr("vec_search", "vector search", err)
	}

	out := make([]Scored, 0, topK)
	for _, m := range matches {
		node, err := s.Get(ctx, scope, m.ID)
		if err != nil {
			continue // deleted/inconsistent entry; skip rather than fail the whole search
		}
		if !filter.matches(&node) {
			continue
		}
		// vecstore reports distance (lower is better); convert to a
		// similarity score in roughly [0,1] for cosine-normalized vectors,
		// where distance = 1 - cosine_similarity.
		score := 1 - float64(m.Distance)
		out = append(out, Scored{Node: node, Score: score})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// RecentByScope returns the n most-recently-created nodes in scope, used by
// the AssociationRouter's temporal-linking step (§4.7).
func (s *NodeStore) RecentByScope(ctx context.Context, scope string, n int, within time.Duration, now time.Time) ([]MemoryNode, error) {
	var ids []string
	for entry, err := range s.store.List(ctx, s.scopeIndexPrefix(scope)) {
		if err != nil {
			return nil, newTransientErr("kv_list_scope_index", "list scope index", err)
		}
		ids = append(ids, string(entry.Value))
	}

	// List is lexicographic by key, and keys are zero-padded nanosecond
	// timestamps, so ids are already oldest-first; walk from the end.
	var out []MemoryNode
	for i := len(ids) - 1; i >= 0 && len(out) < n; i-- {
		node, err := s.Get(ctx, scope, ids[i])
		if err != nil {
			continue
		}
		if within > 0 && now.Sub(node.Metadata.CreatedAt) > within {
			break
		}
		out = append(out, node)
	}
	return out, nil
}

// StorageSize reports scope's raw node-record footprint in C4 — the count
// of stored nodes and the total bytes of their msgpack-encoded records —
// without decoding any of them (§6 "Observability").
func (s *NodeStore) StorageSize(ctx context.Context, scope string) (count int, bytes int64, err error) {
	count, bytes, err = s.store.Size(ctx, s.scopeNodePrefix(scope))
	if err != nil {
		return 0, 0, newTransientErr("kv_size_scope", "size scope node records", err)
	}
	return count, bytes, nil
}

// AllByScope returns every node in scope, used by MemoryManager.Stats for
// its per-tier counts and by MemoryManager.Reset.
func (s *NodeStore) AllByScope(ctx context.Context, scope string) ([]MemoryNode, error) {
	var out []MemoryNode
	for entry, err := range s.store.List(ctx, s.scopeIndexPrefix(scope)) {
		if err != nil {
			return nil, newTransientErr("kv_list_scope_index", "list scope index", err)
		}
		node, err := s.Get(ctx, scope, string(entry.Value))
		if err != nil {
			continue
		}
		out = append(out, node)
	}
	return out, nil
}

package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/synapsed/biem/pkg/embed"
	"github.com/synapsed/biem/pkg/relstore"
	"github.com/synapsed/biem/pkg/vecstore"
)

// Store is C11 KnowledgeStore: triple persistence over pkg/relstore plus a
// parallel ANN collection keyed by triple id for C13's vector search (§4.11
// "vector search (via a parallel ANN collection keyed by triple id)").
type Store struct {
	rel      *relstore.Store
	vec      vecstore.Index
	embedder embed.Embedder
	log      Logger
}

// NewStore builds a Store. embedder may be nil, in which case triples are
// persisted relationally but never become searchable via SearchByVector.
func NewStore(rel *relstore.Store, vec vecstore.Index, embedder embed.Embedder, log Logger) *Store {
	return &Store{rel: rel, vec: vec, embedder: embedder, log: orDefault(log)}
}

func tripleText(subject, predicate, object string) string {
	return fmt.Sprintf("%s %s %s", subject, predicate, object)
}

// Insert persists a brand-new triple and embeds it into the vector
// collection. Returns relstore.ErrConflict if (subject, predicate) already
// exists.
func (s *Store) Insert(ctx context.Context, t Triple) error {
	if err := s.rel.InsertTriple(ctx, t); err != nil {
		return err
	}
	s.reembed(ctx, t)
	return nil
}

// FindBySubjectPredicate returns the existing triple for (subject,
// predicate), or relstore.ErrNotFound.
func (s *Store) FindBySubjectPredicate(ctx context.Context, subject, predicate string) (Triple, error) {
	return s.rel.FindBySubjectPredicate(ctx, subject, predicate)
}

// FindPotentialConflicts looks up an existing triple for (subject,
// predicate), returning (nil, nil) if none exists (§4.12 ConflictDetector's
// "find_potential_conflicts").
func (s *Store) FindPotentialConflicts(ctx context.Context, subject, predicate string) (*Triple, error) {
	existing, err := s.rel.FindBySubjectPredicate(ctx, subject, predicate)
	if errors.Is(err, relstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

// UpdateObject applies a confirmed object change and re-embeds the updated
// triple (§4.12 "On confirm ... re-embeds/re-upserts the vector").
func (s *Store) UpdateObject(ctx context.Context, id, newObject, reason, contributorID string, confirmed bool) (Triple, error) {
	now := time.Now()
	updated, err := s.rel.UpdateObject(ctx, id, newObject, reason, contributorID, confirmed, now)
	if err != nil {
		return Triple{}, err
	}
	s.reembed(ctx, updated)
	return updated, nil
}

// reembed computes and upserts t's vector. Embedding failures are logged
// and swallowed: a triple that cannot be embedded is still durably stored
// relationally and simply absent from vector search results, the same
// degraded-but-not-failed posture as a degraded MemoryNode (§4.15).
func (s *Store) reembed(ctx context.Context, t Triple) {
	if s.embedder == nil {
		return
	}
	vec, err := s.embedder.Embed(ctx, tripleText(t.Subject, t.Predicate, t.Object))
	if err != nil {
		s.log.Warnf("store: embed triple %s: %v", t.ID, err)
		return
	}
	if err := s.vec.Insert(t.ID, vec); err != nil {
		s.log.Warnf("store: index triple %s: %v", t.ID, err)
	}
}

// SearchByVector runs ANN search over the triple vector collection,
// fetching the full relational row for each match above minScore.
func (s *Store) SearchByVector(ctx context.Context, query []float32, topK int, minScore float64) ([]Scored, error) {
	n := s.vec.Len()
	if n == 0 {
		return nil, nil
	}
	fetch := topK
	if fetch > n {
		fetch = n
	}
	matches, err := s.vec.Search(query, fetch)
	if err != nil {
		return nil, fmt.Errorf("knowledge: search triple vectors: %w", err)
	}

	out := make([]Scored, 0, len(matches))
	for _, m := range matches {
		score := 1 - float64(m.Distance)
		if score < minScore {
			continue
		}
		t, err := s.rel.GetTriple(ctx, m.ID)
		if err != nil {
			continue // stale vector entry for a deleted/reset triple
		}
		out = append(out, Scored{Triple: t, Score: score})
	}
	return out, nil
}

// DeleteAll removes every triple and history row, for administrative reset
// only (§3 "never deleted except by administrative reset"). The vector
// collection is not cleared; SearchByVector skips entries whose triple no
// longer exists.
func (s *Store) DeleteAll(ctx context.Context) error {
	return s.rel.DeleteAllTriples(ctx)
}

package knowledge

import (
	"context"
	"sort"

	"github.com/synapsed/biem/pkg/embed"
)

// Retriever is C13 KnowledgeRetriever: vector-plus-cluster-expansion search
// over the triple store (§4.13).
type Retriever struct {
	store    *Store
	embedder embed.Embedder
	log      Logger
}

// NewRetriever builds a Retriever over store. embedder may be nil, in which
// case Query always returns an empty result.
func NewRetriever(store *Store, embedder embed.Embedder, log Logger) *Retriever {
	return &Retriever{store: store, embedder: embedder, log: orDefault(log)}
}

// Query embeds text, runs the primary top-k search under minScore, then for
// every hit runs a secondary top-expansionK search around that hit's own
// vector under expansionMinScore, weighting expansion results by
// expansionWeight (0.7 default). Results are deduplicated by triple id
// keeping the maximum score, sorted by score descending, and truncated at
// maxContextItems (§4.13).
func (r *Retriever) Query(ctx context.Context, text string, topK, expansionK int, minScore, expansionMinScore, expansionWeight float64, maxContextItems int) ([]Scored, error) {
	if r.embedder == nil {
		return nil, nil
	}

	vector, err := r.embedder.Embed(ctx, text)
	if err != nil {
		r.log.Warnf("query: embed query: %v", err)
		return nil, nil
	}

	primary, err := r.store.SearchByVector(ctx, vector, topK, minScore)
	if err != nil {
		return nil, err
	}

	best := make(map[string]Scored, len(primary))
	for _, hit := range primary {
		r.absorb(best, hit)
	}

	for _, hit := range primary {
		hitVector, err := r.embedder.Embed(ctx, tripleText(hit.Triple.Subject, hit.Triple.Predicate, hit.Triple.Object))
		if err != nil {
			r.log.Warnf("query: re-embed expansion seed %s: %v", hit.Triple.ID, err)
			continue
		}
		expansion, err := r.store.SearchByVector(ctx, hitVector, expansionK, expansionMinScore)
		if err != nil {
			r.log.Warnf("query: expansion search for %s: %v", hit.Triple.ID, err)
			continue
		}
		for _, e := range expansion {
			e.Score *= expansionWeight
			r.absorb(best, e)
		}
	}

	out := make([]Scored, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Triple.ID < out[j].Triple.ID
	})

	if maxContextItems > 0 && len(out) > maxContextItems {
		out = out[:maxContextItems]
	}
	return out, nil
}

// absorb keeps the maximum-scoring occurrence of each triple id (§4.13
// "deduplicate by triple id retaining the maximum score").
func (r *Retriever) absorb(best map[string]Scored, hit Scored) {
	if cur, ok := best[hit.Triple.ID]; !ok || hit.Score > cur.Score {
		best[hit.Triple.ID] = hit
	}
}

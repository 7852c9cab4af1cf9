package biem

import (
	"context"
	"time"

	"github.com/coregx/ahocorasick"

	"github.com/synapsed/biem/pkg/graph"
	"github.com/synapsed/biem/pkg/relstore"
)

// AssociationRouter is C7: on every new node, attaches temporal links to
// recently-ingested neighbors and semantic links to vector-similar
// neighbors, persisting both to the relational backend (§4.7). Causal
// links are reserved for the explicit feedback API and are never created
// here.
type AssociationRouter struct {
	cfg   Config
	nodes *NodeStore
	g     *graph.Graph
	rel   *relstore.Store
	log   Logger
}

// NewAssociationRouter builds a router over the given collaborators.
func NewAssociationRouter(cfg Config, nodes *NodeStore, g *graph.Graph, rel *relstore.Store, log Logger) *AssociationRouter {
	return &AssociationRouter{cfg: cfg, nodes: nodes, g: g, rel: rel, log: orDefault(log)}
}

// Route attaches temporal and semantic links for the newly-ingested node n
// (§4.7). It never returns an error for link-persistence failures: those
// are absorbed per §4.15 (link kept in-memory, marked pending-persist, and
// retried by the reconciler) since link routing is an enrichment step, not
// a structural one.
func (r *AssociationRouter) Route(ctx context.Context, n MemoryNode) {
	r.g.AddNode(n.Scope, n.ID)
	r.routeTemporal(ctx, n)
	if !n.Metadata.Degraded {
		r.routeSemantic(ctx, n)
	}
}

func (r *AssociationRouter) routeTemporal(ctx context.Context, n MemoryNode) {
	window := time.Duration(r.cfg.WindowTemporalSeconds) * time.Second
	recent, err := r.nodes.RecentByScope(ctx, n.Scope, 6, window, n.Metadata.CreatedAt)
	if err != nil {
		r.log.Warnf("router: list recent nodes for temporal linking: %v", err)
		return
	}

	count := 0
	for _, other := range recent {
		if other.ID == n.ID {
			continue
		}
		if count >= 5 {
			break
		}
		count++
		r.addBidirectional(ctx, n.Scope, n.ID, other.ID, graph.LinkTemporal, 1.0)
	}
}

func (r *AssociationRouter) routeSemantic(ctx context.Context, n MemoryNode) {
	candidates, err := r.nodes.SearchByVector(ctx, n.Scope, n.Vector, 11, nil)
	if err != nil {
		r.log.Warnf("router: search neighbors for semantic linking: %v", err)
		return
	}

	keywordMatcher := r.buildKeywordMatcher(n)

	for _, c := range candidates {
		if c.Node.ID == n.ID {
			continue
		}
		if c.Score < r.cfg.ThreshSemantic {
			continue
		}
		// When n carries extracted entities, require at least one of them to
		// reappear verbatim in the candidate's content. Cosine similarity
		// alone links paraphrases of unrelated facts that happen to sit
		// close in embedding space; the keyword gate cuts those false
		// positives without touching nodes that have no entities to check
		// against (keywordMatcher is nil, and the cosine test alone decides).
		if keywordMatcher != nil {
			overlap := keywordMatcher.FindAllOverlapping([]byte(c.Node.Content))
			if len(overlap) == 0 {
				r.log.Debugf("router: semantic candidate %s rejected, no keyword overlap (cosine=%.3f)", c.Node.ID, c.Score)
				continue
			}
		}
		r.addBidirectional(ctx, n.Scope, n.ID, c.Node.ID, graph.LinkSemantic, c.Score)
	}
}

// buildKeywordMatcher builds an Aho-Corasick automaton over n's extracted
// entities, used to gate semantic linking alongside the cosine-similarity
// threshold (§4.7): a candidate must clear ThreshSemantic *and* echo at
// least one of n's entities verbatim.
func (r *AssociationRouter) buildKeywordMatcher(n MemoryNode) *ahocorasick.Automaton {
	if len(n.Metadata.Entities) == 0 {
		return nil
	}
	automaton, err := ahocorasick.NewBuilder().
		AddStrings(n.Metadata.Entities).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		r.log.Debugf("router: build keyword matcher: %v", err)
		return nil
	}
	return automaton
}

func (r *AssociationRouter) addBidirectional(ctx context.Context, scope, a, b string, typ graph.LinkType, weight float64) {
	now := time.Now()
	for _, l := range []graph.Link{
		{Source: a, Target: b, Type: typ, Weight: weight, Scope: scope, CreatedAt: now, Pending: true},
		{Source: b, Target: a, Type: typ, Weight: weight, Scope: scope, CreatedAt: now, Pending: true},
	} {
		added, err := r.g.AddLink(l)
		if err != nil {
			r.log.Warnf("router: add link %s->%s: %v", l.Source, l.Target, err)
			continue
		}
		if !added {
			continue
		}
		r.persistLink(ctx, l)
	}
}

// persistLink mirrors a C5 link to C6 (§3 invariant 3: "Every graph link
// in C5 is mirrored in C6 within the same ingest transaction"). On
// failure the link remains in C5 marked Pending; the reconciler retries it
// (§4.15).
func (r *AssociationRouter) persistLink(ctx context.Context, l graph.Link) {
	_, err := r.rel.InsertCrystalLink(ctx, relstore.CrystalLink{
		ID:        l.Scope + ":" + l.Source + ":" + l.Target + ":" + string(l.Type),
		Scope:     l.Scope,
		SourceID:  l.Source,
		TargetID:  l.Target,
		LinkType:  string(l.Type),
		Weight:    l.Weight,
		CreatedAt: l.CreatedAt,
	})
	if err != nil {
		r.log.Warnf("router: persist link to crystal store: %v", err)
		return
	}
	r.g.MarkPersisted(l.Scope, l.Source, l.Target, l.Type)
}

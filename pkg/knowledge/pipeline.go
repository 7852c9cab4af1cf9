package knowledge

import (
	"context"
	"time"

	"github.com/synapsed/biem/pkg/embed"
	"github.com/synapsed/biem/pkg/llm"
	"github.com/synapsed/biem/pkg/relstore"
	"github.com/synapsed/biem/pkg/vecstore"
)

// SourceUser and SourceAgentInferred are the two contribution sources
// named in §4.12 ("Agent-inferred contribution. When extract_from_agent =
// true, assistant messages go through the same pipeline with source =
// agent_inferred").
const (
	SourceUser          = "user"
	SourceAgentInferred = "agent_inferred"
)

// Engine is the public entry point over C11-C13: wires the Extractor,
// ConflictDetector, ConfirmationManager, and Retriever together.
type Engine struct {
	extractor *Extractor
	manager   *Manager
	store     *Store
	retriever *Retriever
}

// NewEngine builds an Engine. vec backs the parallel triple-vector
// collection (§4.11); embedder and llmProv may both be nil, in which case
// extraction and retrieval degrade to no-ops rather than failing (§4.15).
func NewEngine(rel *relstore.Store, vec vecstore.Index, embedder embed.Embedder, llmProv llm.Provider,
	confMin float64, autoStore bool, pendingTTL time.Duration, log Logger) *Engine {
	store := NewStore(rel, vec, embedder, log)
	detector := NewDetector(store)
	return &Engine{
		extractor: NewExtractor(confMin, llmProv, log),
		manager:   NewManager(store, detector, autoStore, pendingTTL, log),
		store:     store,
		retriever: NewRetriever(store, embedder, log),
	}
}

// Process runs the full C12 pipeline for one conversational message:
// extract → strict-filter → per-triple conflict check → store-or-pend
// (§6 "knowledge.process(message, role) -> {stored, pending}").
func (e *Engine) Process(ctx context.Context, message, source, sessionID, contributorID string) (ProcessResult, error) {
	triples := e.extractor.Extract(ctx, message, source)
	if len(triples) == 0 {
		return ProcessResult{}, nil
	}
	return e.manager.Process(ctx, triples, source, sessionID, contributorID, time.Now())
}

// Confirm resolves a pending update by id (§4.12 "wait for an explicit
// confirm/reject call by id").
func (e *Engine) Confirm(ctx context.Context, pendingID string, accept bool) (*Triple, error) {
	return e.manager.Confirm(ctx, pendingID, accept, time.Now())
}

// PendingList returns every still-live pending update.
func (e *Engine) PendingList() []PendingUpdate {
	return e.manager.List(time.Now())
}

// SweepExpired purges pending updates whose expiry has passed, for a
// periodic background task (§9).
func (e *Engine) SweepExpired() int {
	return e.manager.SweepExpired(time.Now())
}

// Query runs C13 cluster-expansion retrieval (§4.13 "query(text, top_k=5,
// expansion_k=3, min_score=0.5, expansion_min_score=0.4)").
func (e *Engine) Query(ctx context.Context, text string, topK, expansionK int, minScore, expansionMinScore, expansionWeight float64, maxContextItems int) ([]Scored, error) {
	return e.retriever.Query(ctx, text, topK, expansionK, minScore, expansionMinScore, expansionWeight, maxContextItems)
}

// Reset deletes every triple and history row, for administrative use only.
func (e *Engine) Reset(ctx context.Context) error {
	return e.store.DeleteAll(ctx)
}

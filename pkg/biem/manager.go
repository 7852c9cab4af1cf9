package biem

import (
	"context"
	"sort"
	"time"

	"github.com/synapsed/biem/pkg/embed"
	"github.com/synapsed/biem/pkg/graph"
	"github.com/synapsed/biem/pkg/kv"
	"github.com/synapsed/biem/pkg/llm"
	"github.com/synapsed/biem/pkg/relstore"
	"github.com/synapsed/biem/pkg/vecstore"
)

// MemoryManager is C10: the public entry point wiring the encoder, energy
// controller, tier manager, association router, and conflict checker into
// the two operations callers actually use — Ingest and Recall — plus the
// explicit feedback and causal-link APIs (§4.10).
type MemoryManager struct {
	cfg      Config
	encoder  *Encoder
	ec       *EnergyController
	tiers    *TierManager
	router   *AssociationRouter
	conflict *ConflictChecker
	graph    *graph.Graph
	rel      *relstore.Store
	log      Logger
}

// NewEngine wires the full C1-C10 pipeline. store backs C3/C4's durable
// node records; newIndex constructs a fresh per-scope vector index (callers
// typically pass vecstore.NewMemory — swap in another vecstore.Index
// implementation for a different recall/memory tradeoff without touching
// the rest of the pipeline). embedder and llmProv may both be nil — Ingest
// degrades (§4.15) rather than fails when either is unavailable; Recall
// returns a transient error when the query cannot be embedded.
func NewEngine(cfg Config, store kv.Store, newIndex func() vecstore.Index, embedder embed.Embedder, llmProv llm.Provider, rel *relstore.Store, log Logger) *MemoryManager {
	cfg = cfg.WithDefaults()
	log = orDefault(log)

	g := graph.New()
	nodes := NewNodeStore(store, kv.Key{"node"}, newIndex)
	ec := NewEnergyController(cfg)
	ws := NewWorkingSet(cfg)

	return &MemoryManager{
		cfg:      cfg,
		encoder:  NewEncoder(cfg, embedder, llmProv, log),
		ec:       ec,
		tiers:    NewTierManager(cfg, nodes, ws, ec, g, rel, llmProv, log),
		router:   NewAssociationRouter(cfg, nodes, g, rel, log),
		conflict: NewConflictChecker(cfg, nodes, llmProv, log),
		graph:    g,
		rel:      rel,
		log:      log,
	}
}

// sourceBonus maps a source tag to the §4.2 "source bonus" term. Explicit
// user-authored content scores higher than inferred/derived content; any
// unrecognized tag is treated as neutral.
func sourceBonus(sourceTag string) float64 {
	switch sourceTag {
	case "user":
		return 1.0
	case "agent":
		return 0.6
	case "system":
		return 0.3
	default:
		return 0.5
	}
}

// Ingest runs the full C1→C2→C8→C9→C7 pipeline (encode, initial energy,
// conflict check, tier store, link routing) for new content and returns
// the stored node's id plus a non-blocking conflict report (§4.10 "ingest
// (content, source_tag) -> node_id"). Conflict surfacing never prevents the
// write: Ingest succeeds on any successfully-encoded node whatever
// ConflictChecker reports.
func (m *MemoryManager) Ingest(ctx context.Context, content, sourceTag, scope string) (string, *ConflictReport, error) {
	node, err := m.encoder.Encode(ctx, content, sourceTag, scope)
	if err != nil {
		return "", nil, err
	}

	node.InitialEnergy = m.ec.InitialEnergy(sourceBonus(sourceTag), len(node.Metadata.Entities))
	node.Energy = node.InitialEnergy

	report := m.conflict.Check(ctx, node)

	if err := m.tiers.Store(ctx, node); err != nil {
		return "", report, err
	}

	m.router.Route(ctx, node)

	return node.ID, report, nil
}

// Recall runs the C4 seed search → C5 spreading activation → fused scoring
// pipeline and returns up to topK nodes ordered by fused score descending,
// ties broken by (created_at desc, id asc) (§4.10 "recall(query, top_k)").
func (m *MemoryManager) Recall(ctx context.Context, query, scope string, topK int) ([]Scored, error) {
	if topK <= 0 {
		topK = m.cfg.RecallTopK
	}

	vector, degraded := m.encoder.embedVector(ctx, query)
	if degraded {
		return nil, newTransientErr("recall_embed_failed", "embed recall query", nil)
	}

	seeds, err := m.nodesStore().SearchByVector(ctx, scope, vector, m.cfg.SeedTopK, nil)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	seedK := m.cfg.RecallTopK
	if seedK > len(seeds) {
		seedK = len(seeds)
	}
	seedIDs := make([]string, 0, seedK)
	vecScore := make(map[string]float64, len(seeds))
	for _, s := range seeds[:seedK] {
		seedIDs = append(seedIDs, s.Node.ID)
		vecScore[s.Node.ID] = s.Score
	}
	for _, s := range seeds[seedK:] {
		vecScore[s.Node.ID] = s.Score
	}

	activation := m.graph.Spread(scope, seedIDs, m.cfg.SpreadHops, m.cfg.SpreadDecay)

	fused := make(map[string]float64, len(vecScore)+len(activation))
	for id, v := range vecScore {
		fused[id] = m.cfg.ScoreAlpha*v + m.cfg.ScoreBeta*activation[id]
	}
	for id, a := range activation {
		if _, seeded := vecScore[id]; seeded {
			continue
		}
		fused[id] = m.cfg.ScoreBeta * a
	}

	type candidate struct {
		id    string
		score float64
	}
	candidates := make([]candidate, 0, len(fused))
	for id, score := range fused {
		candidates = append(candidates, candidate{id: id, score: score})
	}

	// A plain, non-mutating read here: every candidate in the fused set
	// (the whole spreading-activation frontier, which can be far larger
	// than topK at hops=2) only needs its CreatedAt for the tie-break sort
	// below. Boosting and possible L1 promotion are reserved for the nodes
	// that actually survive the topK cut (§4.2 "boost each result's
	// energy").
	nodesByID := make(map[string]MemoryNode, len(candidates))
	for _, c := range candidates {
		node, err := m.nodesStore().Get(ctx, scope, c.id)
		if err != nil {
			continue
		}
		nodesByID[c.id] = node
	}

	out := candidates[:0]
	for _, c := range candidates {
		if _, ok := nodesByID[c.id]; ok {
			out = append(out, c)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		ti, tj := nodesByID[out[i].id].Metadata.CreatedAt, nodesByID[out[j].id].Metadata.CreatedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].id < out[j].id
	})

	if topK > len(out) {
		topK = len(out)
	}
	result := make([]Scored, 0, topK)
	for _, c := range out[:topK] {
		node, err := m.tiers.Get(ctx, scope, c.id)
		if err != nil {
			continue
		}
		result = append(result, Scored{Node: node, Score: c.score})
	}
	return result, nil
}

// Feedback applies an explicit δ ∈ [-0.5, 0.5] energy adjustment to node id
// (§4.2, §4.10 "feedback(node_id, delta)").
func (m *MemoryManager) Feedback(ctx context.Context, scope, id string, delta float64) error {
	node, err := m.tiers.Get(ctx, scope, id)
	if err != nil {
		return err
	}
	energy, err := m.ec.Feedback(node.Energy, delta)
	if err != nil {
		return err
	}
	node.Energy = energy
	return m.tiers.Store(ctx, node)
}

// RecordEvent creates an explicit causal link between two existing nodes
// (§4.7 "causal links are created only by the explicit feedback API").
func (m *MemoryManager) RecordEvent(ctx context.Context, scope, sourceID, targetID, reason string) error {
	if sourceID == "" || targetID == "" {
		return newValidationErr("missing_event_ids", "source_id and target_id must not be empty")
	}
	now := time.Now()
	link := graph.Link{Source: sourceID, Target: targetID, Type: graph.LinkCausal, Weight: 1.0, Scope: scope, CreatedAt: now, Pending: true}
	added, err := m.graph.AddLink(link)
	if err != nil {
		return newValidationErr("invalid_event_link", err.Error())
	}
	if !added {
		return nil
	}
	if _, err := m.rel.InsertCrystalLink(ctx, relstore.CrystalLink{
		ID: scope + ":" + sourceID + ":" + targetID + ":causal", Scope: scope,
		SourceID: sourceID, TargetID: targetID, LinkType: string(graph.LinkCausal), Weight: 1.0, CreatedAt: now,
	}); err != nil {
		m.log.Warnf("record_event: persist causal link: %v", err)
		return nil
	}
	m.graph.MarkPersisted(scope, sourceID, targetID, graph.LinkCausal)
	return nil
}

// nodesStore exposes the manager's underlying C4 store for Recall's seed
// search; the TierManager itself only surfaces tiered get/store.
func (m *MemoryManager) nodesStore() *NodeStore { return m.tiers.nodes }

// Stats summarizes scope's current memory footprint, for operational
// visibility (§6 "Observability").
type Stats struct {
	L1Count      int
	L2Count      int
	StorageBytes int64
}

// Stats reports the current L1/L2 population of scope and its raw C4
// storage footprint.
func (m *MemoryManager) Stats(ctx context.Context, scope string) (Stats, error) {
	all, err := m.nodesStore().AllByScope(ctx, scope)
	if err != nil {
		return Stats{}, err
	}
	var s Stats
	for _, n := range all {
		if n.Tier == TierL1 {
			s.L1Count++
		} else {
			s.L2Count++
		}
	}
	_, bytes, err := m.nodesStore().StorageSize(ctx, scope)
	if err != nil {
		return Stats{}, err
	}
	s.StorageBytes = bytes
	return s, nil
}

// Reset deletes every node in scope, for administrative use only (§4.10).
func (m *MemoryManager) Reset(ctx context.Context, scope string) error {
	nodes, err := m.nodesStore().AllByScope(ctx, scope)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if err := m.nodesStore().Delete(ctx, scope, n.ID); err != nil {
			return err
		}
	}
	return nil
}

// Run starts the background reconciliation loops: L1 sweep, link-
// persistence retry (§4.15), and periodic consolidation (§4.9). It blocks
// until ctx is canceled.
func (m *MemoryManager) Run(ctx context.Context, scope string) {
	sweepPeriod := time.Duration(m.cfg.TTLL1Seconds/4+1) * time.Second
	sweepTicker := time.NewTicker(sweepPeriod)
	reconcileTicker := time.NewTicker(30 * time.Second)
	consolidateTicker := time.NewTicker(10 * time.Minute)
	defer sweepTicker.Stop()
	defer reconcileTicker.Stop()
	defer consolidateTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-sweepTicker.C:
			m.tiers.Sweep(scope, now)
		case <-reconcileTicker.C:
			m.reconcilePendingLinks(ctx, scope)
		case <-consolidateTicker.C:
			if _, err := m.tiers.Consolidate(ctx, scope); err != nil {
				m.log.Warnf("run: consolidate scope %s: %v", scope, err)
			}
		}
	}
}

// reconcilePendingLinks retries persisting every link the AssociationRouter
// or RecordEvent could not mirror to C6 on first attempt (§4.15).
func (m *MemoryManager) reconcilePendingLinks(ctx context.Context, scope string) {
	for _, l := range m.graph.PendingLinks(scope) {
		_, err := m.rel.InsertCrystalLink(ctx, relstore.CrystalLink{
			ID:        l.Scope + ":" + l.Source + ":" + l.Target + ":" + string(l.Type),
			Scope:     l.Scope,
			SourceID:  l.Source,
			TargetID:  l.Target,
			LinkType:  string(l.Type),
			Weight:    l.Weight,
			CreatedAt: l.CreatedAt,
		})
		if err != nil {
			m.log.Warnf("reconcile: persist link %s->%s: %v", l.Source, l.Target, err)
			continue
		}
		m.graph.MarkPersisted(l.Scope, l.Source, l.Target, l.Type)
	}
}

package biem

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/synapsed/biem/pkg/graph"
	"github.com/synapsed/biem/pkg/llm"
	"github.com/synapsed/biem/pkg/relstore"
)

// consolidationSummary is the LLM's synthesis of one candidate L3 cluster.
type consolidationSummary struct {
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence"`
}

// TierManager is C9: the single read/write entry point across L1/L2/L3,
// responsible for admission, promotion, demotion, and background
// consolidation into L3 crystal facts (§4.9).
type TierManager struct {
	cfg     Config
	nodes   *NodeStore
	ws      *WorkingSet
	ec      *EnergyController
	g       *graph.Graph
	rel     *relstore.Store
	llmProv llm.Provider
	log     Logger
}

// NewTierManager builds a manager over the given collaborators. llmProv may
// be nil, in which case Consolidate is a no-op (§4.15 "skip the optional
// step"). g is the C5 association graph the AssociationRouter populates;
// Consolidate reads it to find candidate clusters rather than re-deriving
// similarity from scratch.
func NewTierManager(cfg Config, nodes *NodeStore, ws *WorkingSet, ec *EnergyController, g *graph.Graph, rel *relstore.Store, llmProv llm.Provider, log Logger) *TierManager {
	return &TierManager{cfg: cfg, nodes: nodes, ws: ws, ec: ec, g: g, rel: rel, llmProv: llmProv, log: orDefault(log)}
}

// Store writes node to C4 unconditionally and additionally admits it into
// C3 (L1) if its energy meets the admission threshold (§4.9 "store(node)":
// "C4 upsert is unconditional; C3 residency is conditional on E ≥ 0.5").
func (m *TierManager) Store(ctx context.Context, node MemoryNode) error {
	if m.ws.Put(node.Scope, &node) {
		node.Tier = TierL1
	}
	return m.nodes.Put(ctx, node)
}

// Get fetches a node by id, preferring the C3 working set and falling back
// to C4 (§4.9 "get(scope, id)"). Energy is always decayed to now and
// boosted for the recall hit before return; the updated energy/tier is
// persisted back to C4 so a later cold read sees the same state.
func (m *TierManager) Get(ctx context.Context, scope, id string) (MemoryNode, error) {
	now := time.Now()

	if cached, ok := m.ws.Get(scope, id); ok {
		m.ec.ApplyDecay(cached, now)
		cached.Energy = m.ec.BoostRecall(cached.Energy)
		cached.Metadata.LastAccessed = now
		m.demoteIfNeeded(scope, id, cached)

		result := *cached
		if err := m.nodes.Put(ctx, result); err != nil {
			return MemoryNode{}, err
		}
		return result, nil
	}

	node, err := m.nodes.Get(ctx, scope, id)
	if err != nil {
		return MemoryNode{}, err
	}
	m.ec.ApplyDecay(&node, now)
	node.Energy = m.ec.BoostRecall(node.Energy)
	node.Metadata.LastAccessed = now
	m.promoteIfNeeded(scope, &node)

	if err := m.nodes.Put(ctx, node); err != nil {
		return MemoryNode{}, err
	}
	return node, nil
}

// promoteIfNeeded moves node into L1 residency once its post-boost energy
// reaches PromoteEnergy (0.7 default, §4.9). This is how a node rehydrated
// from a restart (C3 empty, C4 intact) re-earns its L1 slot.
func (m *TierManager) promoteIfNeeded(scope string, node *MemoryNode) {
	if node.Energy < m.cfg.PromoteEnergy {
		return
	}
	node.Tier = TierL1
	m.ws.Put(scope, node)
}

// demoteIfNeeded evicts node from L1 residency once its energy falls below
// DemoteEnergy (0.3 default, §4.9), observed at read time.
func (m *TierManager) demoteIfNeeded(scope, id string, node *MemoryNode) {
	if node.Energy >= m.cfg.DemoteEnergy {
		return
	}
	node.Tier = TierL2
	m.ws.Delete(scope, id)
}

// Sweep runs the L1 TTL/energy eviction pass (§4.3) across scope.
func (m *TierManager) Sweep(scope string, now time.Time) {
	m.ws.SweepExpired(scope, m.ec, now)
}

// Consolidate finds connected subgraphs of scope's C5 association graph of
// size ConsolidationMinClusterSize or larger and, for each one meeting the
// average-energy threshold, asks the LLM to synthesize a single L3 crystal
// fact citing the cluster's source node ids (§4.9 "find connected subgraphs
// in C5 of size >= 5", §9 Open Question 1). Using link connectivity rather
// than independent vector re-clustering means consolidation reuses the same
// temporal/semantic/causal judgments the router already made, instead of
// re-deriving a possibly-divergent notion of "related" from raw embeddings
// alone. Consolidation is strictly advisory: it never mutates or deletes a
// source node, and a cluster whose LLM call fails is simply skipped rather
// than failing the whole pass (§4.15 "LLM arbitration / extraction failure:
// skip the optional step").
func (m *TierManager) Consolidate(ctx context.Context, scope string) (int, error) {
	if m.llmProv == nil {
		return 0, nil
	}

	components := m.g.Components(scope, m.cfg.ConsolidationMinClusterSize)
	if len(components) == 0 {
		return 0, nil
	}

	now := time.Now()
	stored := 0
	for _, memberIDs := range components {
		var sum float64
		var texts, sourceIDs []string
		for _, id := range memberIDs {
			n, err := m.nodes.Get(ctx, scope, id)
			if err != nil {
				continue
			}
			if n.Metadata.Degraded {
				continue
			}
			m.ec.ApplyDecay(&n, now)
			sum += n.Energy
			texts = append(texts, n.Content)
			sourceIDs = append(sourceIDs, n.ID)
		}
		if len(sourceIDs) < m.cfg.ConsolidationMinClusterSize {
			continue
		}
		avgEnergy := sum / float64(len(sourceIDs))
		if avgEnergy < m.cfg.ConsolidationMinAvgEnergy {
			continue
		}

		summary, err := m.summarizeCluster(ctx, texts)
		if err != nil {
			m.log.Warnf("consolidate: scope %s: llm summary failed, skipping cluster: %v", scope, err)
			continue
		}

		fact := relstore.CrystalFact{
			ID:         uuid.NewSHA1(uuid.NameSpaceOID, []byte(scope+":"+strings.Join(sourceIDs, ","))).String(),
			Scope:      scope,
			Content:    summary.Summary,
			SourceIDs:  sourceIDs,
			Confidence: summary.Confidence,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := m.rel.InsertCrystalFact(ctx, fact); err != nil {
			m.log.Warnf("consolidate: scope %s: persist crystal fact: %v", scope, err)
			continue
		}
		stored++
	}
	return stored, nil
}

func (m *TierManager) summarizeCluster(ctx context.Context, texts []string) (consolidationSummary, error) {
	return llm.Invoke[consolidationSummary](ctx, m.llmProv,
		"memory_consolidation",
		"Synthesize a single consolidated fact from a cluster of related memory fragments.",
		"You distill a cluster of related memory fragments into one consolidated statement. Respond only with the requested JSON.",
		fmt.Sprintf("Fragments:\n- %s", strings.Join(texts, "\n- ")),
	)
}

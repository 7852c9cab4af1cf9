package biem

import (
	"context"

	"github.com/synapsed/biem/pkg/llm"
)

// ConflictDetail is one LLM-arbitrated contradiction found between a new
// node and an existing neighbor (§4.8).
type ConflictDetail struct {
	NeighborID     string
	ConflictType   string
	Description    string
	Confidence     float64
}

// ConflictReport is the advisory result of ConflictChecker.Check. Per §9
// Open Question 2, this is always advisory: it never blocks or mutates a
// write, however many conflicts it reports.
type ConflictReport struct {
	Conflicts []ConflictDetail
}

func (r *ConflictReport) HasConflict() bool { return r != nil && len(r.Conflicts) > 0 }

type conflictJudgement struct {
	IsConflict   bool    `json:"is_conflict"`
	ConflictType string  `json:"conflict_type"`
	Description  string  `json:"description"`
	Confidence   float64 `json:"confidence"`
}

// ConflictChecker is C8: non-blocking detection of contradictions between
// a new node and its top-similar neighbours.
type ConflictChecker struct {
	cfg     Config
	nodes   *NodeStore
	llmProv llm.Provider
	log     Logger
}

// NewConflictChecker builds a checker. llmProv may be nil, in which case
// Check always reports no conflicts (the enrichment step degrades to a
// no-op rather than failing ingest, §4.15).
func NewConflictChecker(cfg Config, nodes *NodeStore, llmProv llm.Provider, log Logger) *ConflictChecker {
	return &ConflictChecker{cfg: cfg, nodes: nodes, llmProv: llmProv, log: orDefault(log)}
}

// Check fetches the top-10 neighbours of n and, for each one at or above
// ThreshConflict cosine similarity, asks the LLM to arbitrate. Arbitration
// failures are logged and skipped, never surfaced as an ingest error
// (§4.15 "LLM arbitration / extraction failure: skip the optional step").
func (c *ConflictChecker) Check(ctx context.Context, n MemoryNode) *ConflictReport {
	report := &ConflictReport{}
	if c.llmProv == nil || n.Metadata.Degraded {
		return report
	}

	neighbors, err := c.nodes.SearchByVector(ctx, n.Scope, n.Vector, 10, nil)
	if err != nil {
		c.log.Warnf("conflict: search neighbors: %v", err)
		return report
	}

	for _, cand := range neighbors {
		if cand.Node.ID == n.ID {
			continue
		}
		if cand.Score < c.cfg.ThreshConflict {
			continue
		}
		judgement, err := c.arbitrate(ctx, cand.Node.Content, n.Content)
		if err != nil {
			c.log.Warnf("conflict: llm arbitration for %s: %v", cand.Node.ID, err)
			continue
		}
		if judgement.IsConflict && judgement.Confidence >= c.cfg.ConflictMinConfidence {
			report.Conflicts = append(report.Conflicts, ConflictDetail{
				NeighborID:   cand.Node.ID,
				ConflictType: judgement.ConflictType,
				Description:  judgement.Description,
				Confidence:   judgement.Confidence,
			})
		}
	}
	return report
}

func (c *ConflictChecker) arbitrate(ctx context.Context, existing, incoming string) (conflictJudgement, error) {
	return llm.Invoke[conflictJudgement](ctx, c.llmProv,
		"memory_conflict",
		"Decide whether two statements about the same subject contradict each other.",
		"You arbitrate factual conflicts between a stored memory and an incoming one. Respond only with the requested JSON.",
		"Existing: "+existing+"\nIncoming: "+incoming,
	)
}

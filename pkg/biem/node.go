package biem

import "time"

// Tier is a MemoryNode's current storage class (§3, §4.14 "Node tier").
type Tier string

const (
	TierL1 Tier = "l1"
	TierL2 Tier = "l2"
)

// Metadata carries the per-node side information produced by the Encoder
// (C1) and maintained by the EnergyController (C2).
type Metadata struct {
	CreatedAt    time.Time `msgpack:"created_at"`
	LastAccessed time.Time `msgpack:"last_accessed"`
	Entities     []string  `msgpack:"entities,omitempty"`
	Sentiment    float64   `msgpack:"sentiment"`
	SourceTag    string    `msgpack:"source_tag"`

	// Degraded marks a node whose embedding could not be produced at
	// ingest time (§4.10, §4.15). Such nodes carry a zero vector and must
	// never be used as a recall seed.
	Degraded bool `msgpack:"degraded,omitempty"`
}

// MemoryNode is the fundamental unit of BIEM memory (§3).
type MemoryNode struct {
	ID           string    `msgpack:"id"`
	Scope        string    `msgpack:"scope"`
	Content      string    `msgpack:"content"`
	Vector       []float32 `msgpack:"vector"`
	Metadata     Metadata  `msgpack:"metadata"`
	Energy       float64   `msgpack:"energy"`
	InitialEnergy float64  `msgpack:"initial_energy"`
	Tier         Tier      `msgpack:"tier"`

	// LinkIDs is the ordered set of outgoing link identifiers (§3); the
	// authoritative adjacency lives in pkg/graph, this is a convenience
	// cache kept in sync by the AssociationRouter.
	LinkIDs []string `msgpack:"link_ids,omitempty"`
}

// Scored pairs a node id with a fused recall score (§4.10).
type Scored struct {
	Node  MemoryNode
	Score float64
}

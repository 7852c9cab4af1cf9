package biem

import (
	"os"

	"github.com/goccy/go-yaml"
)

// Config holds every tunable named in spec §6 "Configuration", plus the
// thresholds the spec's Open Questions (§9) require to be configurable
// rather than hard-coded.
type Config struct {
	// Energy (§4.2).
	LambdaDecay   float64 `yaml:"lambda_decay"`
	BoostOnRecall float64 `yaml:"boost_on_recall"`
	EInitBase     float64 `yaml:"e_init_base"`
	WSource       float64 `yaml:"w_source"`
	WEntities     float64 `yaml:"w_entities"`
	EntityCap     int     `yaml:"entity_cap"` // K in min(1, |entities|/K)

	// L1 (§4.3).
	L1Max        int     `yaml:"l1_max"`
	TTLL1Seconds int     `yaml:"ttl_l1_seconds"`
	MinEnergyL1  float64 `yaml:"min_energy_l1"`

	// Links (§4.7, §4.8).
	WindowTemporalSeconds int     `yaml:"window_temporal_seconds"`
	ThreshSemantic        float64 `yaml:"thresh_semantic"`
	ThreshConflict        float64 `yaml:"thresh_conflict"`
	ConflictMinConfidence float64 `yaml:"conflict_min_confidence"`

	// Tier management (§4.9, §9 Open Question 1).
	PromoteEnergy             float64 `yaml:"promote_energy"`
	DemoteEnergy              float64 `yaml:"demote_energy"`
	ConsolidationMinClusterSize int   `yaml:"consolidation_min_cluster_size"`
	ConsolidationMinAvgEnergy   float64 `yaml:"consolidation_min_avg_energy"`

	// Recall (§4.10).
	RecallTopK  int     `yaml:"recall_top_k"`
	SeedTopK    int     `yaml:"seed_top_k"`
	SpreadHops  int     `yaml:"spread_hops"`
	SpreadDecay float64 `yaml:"spread_decay"`
	ScoreAlpha  float64 `yaml:"score_alpha"` // vector weight
	ScoreBeta   float64 `yaml:"score_beta"`  // activation weight

	// Knowledge (§4.11-4.13, §6).
	AutoStore            bool    `yaml:"auto_store"`
	ExtractFromAgent      bool    `yaml:"extract_from_agent"`
	PendingTTLSeconds     int     `yaml:"pending_ttl_seconds"`
	MaxContextItems       int     `yaml:"max_context_items"`
	EnableClusterExpansion bool   `yaml:"enable_cluster_expansion"`
	ExpansionK            int     `yaml:"expansion_k"`
	ExpansionWeight       float64 `yaml:"expansion_weight"`
	MinScore              float64 `yaml:"min_score"`
	ExpansionMinScore     float64 `yaml:"expansion_min_score"`
	ConfMin               float64 `yaml:"conf_min"`

	// Embedding dimension, fixed at init per §6.
	EmbeddingDim int `yaml:"embedding_dim"`
}

// DefaultConfig returns a Config seeded with every default named in §6.
func DefaultConfig() Config {
	return Config{
		LambdaDecay:   0.1,
		BoostOnRecall: 0.1,
		EInitBase:     0.5,
		WSource:       0.2,
		WEntities:     0.3,
		EntityCap:     5,

		L1Max:        100,
		TTLL1Seconds: 3600,
		MinEnergyL1:  0.1,

		WindowTemporalSeconds: 300,
		ThreshSemantic:        0.7,
		ThreshConflict:        0.8,
		ConflictMinConfidence: 0.7,

		PromoteEnergy:               0.7,
		DemoteEnergy:                0.3,
		ConsolidationMinClusterSize: 5,
		ConsolidationMinAvgEnergy:   0.6,

		RecallTopK:  5,
		SeedTopK:    10,
		SpreadHops:  2,
		SpreadDecay: 0.5,
		ScoreAlpha:  0.7,
		ScoreBeta:   0.3,

		AutoStore:              true,
		ExtractFromAgent:       true,
		PendingTTLSeconds:      300,
		MaxContextItems:        10,
		EnableClusterExpansion: true,
		ExpansionK:             3,
		ExpansionWeight:        0.7,
		MinScore:               0.5,
		ExpansionMinScore:      0.4,
		ConfMin:                0.5,

		EmbeddingDim: 1024,
	}
}

// WithDefaults fills zero-valued fields of c with DefaultConfig's values.
// Booleans are not defaulted this way since their zero value (false) is
// indistinguishable from "unset"; callers who want AutoStore/ExtractFromAgent/
// EnableClusterExpansion off must set them explicitly after calling this.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.LambdaDecay == 0 {
		c.LambdaDecay = d.LambdaDecay
	}
	if c.BoostOnRecall == 0 {
		c.BoostOnRecall = d.BoostOnRecall
	}
	if c.EInitBase == 0 {
		c.EInitBase = d.EInitBase
	}
	if c.WSource == 0 {
		c.WSource = d.WSource
	}
	if c.WEntities == 0 {
		c.WEntities = d.WEntities
	}
	if c.EntityCap == 0 {
		c.EntityCap = d.EntityCap
	}
	if c.L1Max == 0 {
		c.L1Max = d.L1Max
	}
	if c.TTLL1Seconds == 0 {
		c.TTLL1Seconds = d.TTLL1Seconds
	}
	if c.MinEnergyL1 == 0 {
		c.MinEnergyL1 = d.MinEnergyL1
	}
	if c.WindowTemporalSeconds == 0 {
		c.WindowTemporalSeconds = d.WindowTemporalSeconds
	}
	if c.ThreshSemantic == 0 {
		c.ThreshSemantic = d.ThreshSemantic
	}
	if c.ThreshConflict == 0 {
		c.ThreshConflict = d.ThreshConflict
	}
	if c.ConflictMinConfidence == 0 {
		c.ConflictMinConfidence = d.ConflictMinConfidence
	}
	if c.PromoteEnergy == 0 {
		c.PromoteEnergy = d.PromoteEnergy
	}
	if c.DemoteEnergy == 0 {
		c.DemoteEnergy = d.DemoteEnergy
	}
	if c.ConsolidationMinClusterSize == 0 {
		c.ConsolidationMinClusterSize = d.ConsolidationMinClusterSize
	}
	if c.ConsolidationMinAvgEnergy == 0 {
		c.ConsolidationMinAvgEnergy = d.ConsolidationMinAvgEnergy
	}
	if c.RecallTopK == 0 {
		c.RecallTopK = d.RecallTopK
	}
	if c.SeedTopK == 0 {
		c.SeedTopK = d.SeedTopK
	}
	if c.SpreadHops == 0 {
		c.SpreadHops = d.SpreadHops
	}
	if c.SpreadDecay == 0 {
		c.SpreadDecay = d.SpreadDecay
	}
	if c.ScoreAlpha == 0 {
		c.ScoreAlpha = d.ScoreAlpha
	}
	if c.ScoreBeta == 0 {
		c.ScoreBeta = d.ScoreBeta
	}
	if c.PendingTTLSeconds == 0 {
		c.PendingTTLSeconds = d.PendingTTLSeconds
	}
	if c.MaxContextItems == 0 {
		c.MaxContextItems = d.MaxContextItems
	}
	if c.ExpansionK == 0 {
		c.ExpansionK = d.ExpansionK
	}
	if c.ExpansionWeight == 0 {
		c.ExpansionWeight = d.ExpansionWeight
	}
	if c.MinScore == 0 {
		c.MinScore = d.MinScore
	}
	if c.ExpansionMinScore == 0 {
		c.ExpansionMinScore = d.ExpansionMinScore
	}
	if c.ConfMin == 0 {
		c.ConfMin = d.ConfMin
	}
	if c.EmbeddingDim == 0 {
		c.EmbeddingDim = d.EmbeddingDim
	}
	return c
}

// LoadConfig reads a YAML config file from path and fills unset fields
// with DefaultConfig, following the teacher's go-yaml-backed config
// convention (go/pkg/cli/config.go).
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, newPermanentErr("config_read", "read config file", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, newValidationErr("config_parse", "parse config yaml: "+err.Error())
	}
	return c.WithDefaults(), nil
}

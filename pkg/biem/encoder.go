package biem

import (
	"context"
	"math"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/orsinium-labs/stopwords"

	"github.com/synapsed/biem/pkg/embed"
	"github.com/synapsed/biem/pkg/llm"
)

// capitalizedRunRe is the regex fallback for entity extraction (§4.1): runs
// of one or more capitalized words, a cheap heuristic for proper nouns when
// the LLM extractor is unavailable or returns nothing.
var capitalizedRunRe = regexp.MustCompile(`\b[A-Z][a-zA-Z]*(?:\s+[A-Z][a-zA-Z]*)*\b`)

var nanoCounter atomic.Int64

// nowNano returns a strictly-increasing nanosecond timestamp, guarding
// against two calls in the same clock tick from racing to the same value.
func nowNano() int64 {
	for {
		last := nanoCounter.Load()
		now := time.Now().UnixNano()
		next := now
		if next <= last {
			next = last + 1
		}
		if nanoCounter.CompareAndSwap(last, next) {
			return next
		}
	}
}

type extraction struct {
	Entities  []string `json:"entities"`
	Sentiment float64  `json:"sentiment"`
}

// Encoder is C1: produces an unstored MemoryNode from raw text.
type Encoder struct {
	cfg      Config
	embedder embed.Embedder
	llmProv  llm.Provider
	stops    *stopwords.Stopwords
	log      Logger
}

// NewEncoder builds an Encoder. llmProv may be nil, in which case entity
// extraction falls back entirely to regex and sentiment is always neutral.
func NewEncoder(cfg Config, embedder embed.Embedder, llmProv llm.Provider, log Logger) *Encoder {
	return &Encoder{cfg: cfg, embedder: embedder, llmProv: llmProv, stops: stopwords.MustGet("en"), log: orDefault(log)}
}

// Encode implements the C1 operation: encode(text, source_tag, scope) →
// MemoryNode (unstored). Embedding failure produces a degraded node with a
// zero vector rather than failing the call (§4.10, §4.15); LLM-side
// entity/sentiment failures silently degrade to the regex fallback and
// neutral sentiment (§4.1: "Failures in LLM side-information must not fail
// the call").
func (e *Encoder) Encode(ctx context.Context, content, sourceTag, scope string) (MemoryNode, error) {
	if strings.TrimSpace(content) == "" {
		return MemoryNode{}, newValidationErr("empty_content", "content must not be empty")
	}
	if scope == "" {
		return MemoryNode{}, newValidationErr("missing_scope", "scope must not be empty")
	}

	now := time.Now()
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(scope+":"+content+":"+time.Unix(0, nowNano()).String())).String()

	vector, degraded := e.embedVector(ctx, content)

	entities, sentiment := e.extractSideInfo(ctx, content)

	return MemoryNode{
		ID:      id,
		Scope:   scope,
		Content: content,
		Vector:  vector,
		Metadata: Metadata{
			CreatedAt:    now,
			LastAccessed: now,
			Entities:     entities,
			Sentiment:    sentiment,
			SourceTag:    sourceTag,
			Degraded:     degraded,
		},
		Tier: TierL2,
	}, nil
}

func (e *Encoder) embedVector(ctx context.Context, content string) ([]float32, bool) {
	if e.embedder == nil {
		return make([]float32, e.cfg.EmbeddingDim), true
	}
	vec, err := e.embedder.Embed(ctx, content)
	if err != nil {
		e.log.Warnf("encode: embedding failed, storing degraded node: %v", err)
		return make([]float32, e.cfg.EmbeddingDim), true
	}
	return l2Normalize(vec), false
}

func (e *Encoder) extractSideInfo(ctx context.Context, content string) ([]string, float64) {
	entities := e.regexEntities(content)

	if e.llmProv == nil {
		return entities, 0
	}

	result, err := llm.Invoke[extraction](ctx, e.llmProv,
		"memory_extraction",
		"Extract named entities and an overall sentiment score in [-1, 1] for the given text.",
		"You analyze short text fragments for a memory system. Respond only with the requested JSON.",
		content,
	)
	if err != nil {
		e.log.Warnf("encode: llm entity/sentiment extraction failed, using regex fallback: %v", err)
		return entities, 0
	}

	entities = unionStrings(entities, result.Entities)
	sentiment := result.Sentiment
	if sentiment < -1 {
		sentiment = -1
	}
	if sentiment > 1 {
		sentiment = 1
	}
	return entities, sentiment
}

// regexEntities applies the capitalized-run heuristic and drops any match
// that is entirely a stopword (e.g. a sentence-initial "The").
func (e *Encoder) regexEntities(content string) []string {
	matches := capitalizedRunRe.FindAllString(content, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		key := strings.ToLower(m)
		if e.stops.Contains(key) {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// l2Normalize scales vec to unit length, returning it unchanged if it is
// already zero (a degraded vector must stay exactly zero, not NaN).
func l2Normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	scale := float32(1.0 / norm)
	for i, v := range vec {
		out[i] = v * scale
	}
	return out
}

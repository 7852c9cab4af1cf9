package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsed/biem/pkg/llm"
)

func TestExtractorNilProviderReturnsNil(t *testing.T) {
	e := NewExtractor(0.5, nil, nil)
	got := e.Extract(context.Background(), "I like dark roast coffee", SourceUser)
	assert.Nil(t, got)
}

func TestExtractorNonFactualMessageYieldsNoTriples(t *testing.T) {
	prov := &llm.StaticProvider{JSON: `{"is_factual":false,"intent":"question","triples":[]}`}
	e := NewExtractor(0.5, prov, nil)
	got := e.Extract(context.Background(), "what's the weather like?", SourceUser)
	assert.Nil(t, got)
}

func TestExtractorOpinionIntentYieldsNoTriples(t *testing.T) {
	prov := &llm.StaticProvider{JSON: `{"is_factual":true,"intent":"opinion","triples":[{"subject":"coffee","predicate":"roast_level","object":"dark","confidence":0.9}]}`}
	e := NewExtractor(0.5, prov, nil)
	got := e.Extract(context.Background(), "I think dark roast is best", SourceUser)
	assert.Nil(t, got)
}

func TestExtractorKeepsQualifyingStatementTriples(t *testing.T) {
	prov := &llm.StaticProvider{JSON: `{"is_factual":true,"intent":"statement","triples":[{"subject":"coffee","predicate":"roast_level","object":"dark","confidence":0.9}]}`}
	e := NewExtractor(0.5, prov, nil)
	got := e.Extract(context.Background(), "my coffee is dark roast", SourceUser)
	require.Len(t, got, 1)
	assert.Equal(t, "coffee", got[0].Subject)
	assert.Equal(t, "dark", got[0].Object)
}

func TestExtractorRejectsUserAsSubject(t *testing.T) {
	prov := &llm.StaticProvider{JSON: `{"is_factual":true,"intent":"statement","triples":[{"subject":"user","predicate":"likes","object":"coffee","confidence":0.9}]}`}
	e := NewExtractor(0.5, prov, nil)
	got := e.Extract(context.Background(), "I like coffee", SourceUser)
	assert.Empty(t, got)
}

func TestExtractorRejectsBlocklistedPredicate(t *testing.T) {
	prov := &llm.StaticProvider{JSON: `{"is_factual":true,"intent":"statement","triples":[{"subject":"alex","predicate":"age","object":"34","confidence":0.95}]}`}
	e := NewExtractor(0.5, prov, nil)
	got := e.Extract(context.Background(), "Alex is 34", SourceUser)
	assert.Empty(t, got)
}

func TestExtractorRejectsLowConfidence(t *testing.T) {
	prov := &llm.StaticProvider{JSON: `{"is_factual":true,"intent":"statement","triples":[{"subject":"coffee","predicate":"roast_level","object":"dark","confidence":0.2}]}`}
	e := NewExtractor(0.5, prov, nil)
	got := e.Extract(context.Background(), "my coffee is dark roast", SourceUser)
	assert.Empty(t, got)
}

func TestExtractorLLMFailureYieldsNilNotError(t *testing.T) {
	prov := &llm.StaticProvider{Err: assert.AnError}
	e := NewExtractor(0.5, prov, nil)
	got := e.Extract(context.Background(), "my coffee is dark roast", SourceUser)
	assert.Nil(t, got)
}

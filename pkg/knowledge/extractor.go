package knowledge

import (
	"context"
	"strings"

	"github.com/synapsed/biem/pkg/llm"
)

// blocklistedPredicates names personal attributes the strict filter drops
// outright, plus documented synonyms (§4.12 strict filter rule 2).
var blocklistedPredicates = map[string]struct{}{
	"name": {}, "full_name": {},
	"age": {},
	"birthday": {}, "date_of_birth": {}, "dob": {},
	"location": {}, "address": {}, "city": {}, "hometown": {},
	"email": {}, "email_address": {},
	"phone": {}, "phone_number": {},
	"preference": {}, "preferences": {},
	"favorite": {}, "favourite": {},
	"hobby": {}, "hobbies": {}, "interest": {}, "interests": {},
	"goal": {}, "goals": {},
	"project": {}, "projects": {},
}

type extractedTriple struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
}

type extractionResult struct {
	IsFactual bool               `json:"is_factual"`
	Intent    string             `json:"intent"`
	Triples   []extractedTriple  `json:"triples"`
}

// Extractor is C12's triple-extraction step: an LLM call constrained to a
// fixed JSON shape, followed by the strict filter (§4.12).
type Extractor struct {
	confMin float64
	llmProv llm.Provider
	log     Logger
}

// NewExtractor builds an Extractor. confMin is the minimum per-triple
// confidence to survive the strict filter (CONF_MIN, default 0.5).
func NewExtractor(confMin float64, llmProv llm.Provider, log Logger) *Extractor {
	return &Extractor{confMin: confMin, llmProv: llmProv, log: orDefault(log)}
}

// Extract requests the model's factuality/intent/triple judgement for
// message and applies the strict filter, returning only the triples worth
// persisting. A non-factual message, a question/opinion intent, or an LLM
// failure all yield an empty, non-error result — extraction is an
// enrichment step, never one that can fail the caller (§4.15).
func (e *Extractor) Extract(ctx context.Context, message, source string) []extractedTriple {
	if e.llmProv == nil {
		return nil
	}

	result, err := llm.Invoke[extractionResult](ctx, e.llmProv,
		"knowledge_extraction",
		"Extract factual subject/predicate/object triples from a message, with an overall factuality and intent judgement.",
		"You extract durable facts from conversational text for a knowledge base. "+
			"Respond only with the requested JSON: is_factual (bool), intent (one of statement, correction, question, opinion), "+
			"and triples (subject, predicate, object, confidence in [0,1]).",
		message,
	)
	if err != nil {
		e.log.Warnf("extract: llm call failed: %v", err)
		return nil
	}

	if !result.IsFactual || (result.Intent != "statement" && result.Intent != "correction") {
		return nil
	}

	var kept []extractedTriple
	for _, t := range result.Triples {
		if e.rejected(t) {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}

// rejected applies §4.12's strict filter: subject "user", a blocklisted
// personal-attribute predicate, or confidence below CONF_MIN.
func (e *Extractor) rejected(t extractedTriple) bool {
	if strings.ToLower(strings.TrimSpace(t.Subject)) == "user" {
		return true
	}
	if _, blocked := blocklistedPredicates[strings.ToLower(strings.TrimSpace(t.Predicate))]; blocked {
		return true
	}
	if t.Confidence < e.confMin {
		return true
	}
	return false
}

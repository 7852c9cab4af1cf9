// Package llm provides a minimal structured-completion interface for the
// LLM-arbitrated steps of the memory engine: entity/sentiment extraction,
// conflict arbitration, consolidation, and triple extraction.
//
// Unlike a full chat/agent runtime, BIEM never needs streaming, tool-call
// loops, or multi-turn conversations from the model — every call is a single
// request that must return JSON matching a known shape. [Provider] captures
// exactly that contract, and [Invoke] adds compile-time typed unmarshalling
// on top of it using a JSON Schema generated from the Go type.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// ErrRefused is returned when the model declines to produce output
// (content filtering, safety refusal).
var ErrRefused = errors.New("llm: refused")

// Request is a single structured-completion request.
type Request struct {
	// System is the instruction/system prompt.
	System string

	// User is the user-role content (the text to analyze).
	User string

	// SchemaName names the requested JSON shape, surfaced to providers that
	// support named schemas (e.g. OpenAI's json_schema response format).
	SchemaName string

	// SchemaDescription documents the requested shape for the model.
	SchemaDescription string

	// Schema is the JSON Schema the response must satisfy.
	Schema *jsonschema.Schema
}

// Provider is implemented by LLM backends capable of constrained JSON
// completion. All BIEM call sites (C1 sentiment/entities, C8 conflict
// arbitration, C9 consolidation, C12 triple extraction) go through this
// single method.
type Provider interface {
	// Complete returns the raw JSON text produced by the model for req.
	// Implementations must enforce req.Schema as strictly as the backend
	// allows (structured output mode, strict tool-call schemas, ...).
	Complete(ctx context.Context, req Request) (string, error)
}

// Invoke calls provider with a schema derived from T and unmarshals the
// response into a value of type T. name/desc are used as the schema name
// and description; system/user are passed through to [Request].
func Invoke[T any](ctx context.Context, provider Provider, name, desc, system, user string) (T, error) {
	var zero T
	if provider == nil {
		return zero, errors.New("llm: nil provider")
	}

	schema, err := schemaFor[T]()
	if err != nil {
		return zero, fmt.Errorf("llm: build schema for %s: %w", name, err)
	}

	raw, err := provider.Complete(ctx, Request{
		System:            system,
		User:              user,
		SchemaName:        name,
		SchemaDescription: desc,
		Schema:            schema,
	})
	if err != nil {
		return zero, err
	}

	var v T
	if err := unmarshalRepairing(raw, &v); err != nil {
		return zero, fmt.Errorf("llm: unmarshal %s response: %w", name, err)
	}
	return v, nil
}

// unmarshalRepairing unmarshals raw into v, attempting a jsonrepair pass
// before giving up. Providers asked for a strict JSON schema response
// usually comply, but truncated output (hitting a token limit mid-object) or
// a model that wraps its JSON in loose prose still produces a syntax error
// json.Unmarshal can't recover from on its own.
func unmarshalRepairing(raw string, v any) error {
	err := json.Unmarshal([]byte(raw), v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); !ok {
		return err
	}
	fixed, repairErr := jsonrepair.JSONRepair(raw)
	if repairErr != nil {
		return err
	}
	return json.Unmarshal([]byte(fixed), v)
}

var schemaCache = map[reflect.Type]*jsonschema.Schema{}

// schemaFor lazily builds and caches the JSON Schema for T.
func schemaFor[T any]() (*jsonschema.Schema, error) {
	t := reflect.TypeFor[T]()
	if s, ok := schemaCache[t]; ok {
		return s, nil
	}
	s, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, err
	}
	schemaCache[t] = s
	return s, nil
}

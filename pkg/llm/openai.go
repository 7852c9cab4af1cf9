package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// OpenAIProvider implements [Provider] on top of the OpenAI chat completions
// API using strict JSON Schema structured output (response_format:
// json_schema). DashScope and other OpenAI-compatible endpoints can reuse
// this type by supplying option.WithBaseURL.
type OpenAIProvider struct {
	Client *openai.Client
	Model  string

	// Temperature, when non-zero, overrides the provider default.
	Temperature float64
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider builds a provider against the default OpenAI endpoint.
// baseURL may be empty to use the standard OpenAI API.
func NewOpenAIProvider(apiKey, model, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{Client: &client, Model: model}
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	if p.Client == nil {
		return "", errors.New("llm: openai provider has no client")
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:    p.Model,
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        req.SchemaName,
					Description: param.NewOpt(req.SchemaDescription),
					Schema:      convSchema(req.Schema),
					Strict:      param.NewOpt(true),
				},
			},
		},
	}
	if p.Temperature > 0 {
		params.Temperature = param.NewOpt(p.Temperature)
	}

	resp, err := p.Client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm: openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm: openai returned no choices")
	}
	choice := resp.Choices[0]
	switch choice.FinishReason {
	case "content_filter":
		return "", ErrRefused
	}
	if choice.Message.Content == "" {
		return "", errors.New("llm: openai returned empty content")
	}
	return choice.Message.Content, nil
}

// convSchema adapts a jsonschema.Schema to the map shape the OpenAI SDK
// expects for response_format.json_schema.schema. OpenAI's strict mode
// requires additionalProperties:false on every object node and every
// property listed as required; jsonschema.For already sets required for
// struct fields, so we only need to pin additionalProperties.
func convSchema(s *jsonschema.Schema) map[string]any {
	if s == nil {
		return map[string]any{"type": "object"}
	}
	raw, err := s.MarshalJSON()
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	pinAdditionalProperties(m)
	return m
}

func pinAdditionalProperties(node any) {
	m, ok := node.(map[string]any)
	if !ok {
		return
	}
	if _, isObject := m["properties"]; isObject {
		m["additionalProperties"] = false
	}
	for _, v := range m {
		switch vv := v.(type) {
		case map[string]any:
			pinAdditionalProperties(vv)
		case []any:
			for _, item := range vv {
				pinAdditionalProperties(item)
			}
		}
	}
}

package embed

import (
	"fmt"
	"net/http"
)

// config holds shared configuration for embedder implementations.
type config struct {
	model      string
	dim        int
	baseURL    string
	httpClient *http.Client
}

// Option configures an embedder.
type Option func(*config)

// WithModel sets the embedding model name.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithDimension sets the desired output vector dimensionality.
// Not all models support this (e.g. text-embedding-v1/v2 have fixed dims).
func WithDimension(dim int) Option {
	return func(c *config) { c.dim = dim }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// verifyDimension checks that every vector in vecs has exactly dim
// components. BIEM's vector index assumes every vector stored against a
// scope shares one dimensionality; a model that silently ignores the
// requested Dimensions parameter (the fixed-dimension legacy models do)
// would otherwise corrupt every subsequent cosine comparison against the
// mismatched vector with no symptom until recall quality quietly degrades.
func verifyDimension(vecs [][]float32, dim int) error {
	for i, v := range vecs {
		if len(v) != dim {
			return fmt.Errorf("embed: vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return nil
}

package llm

import "context"

// StaticProvider is a [Provider] that always returns a fixed JSON response,
// or a fixed error if Err is set. Used by package tests that exercise the
// degraded-LLM code paths (§7 external-transient handling) without a live
// backend.
type StaticProvider struct {
	JSON string
	Err  error

	// Calls records every request made, for assertions in tests.
	Calls []Request
}

var _ Provider = (*StaticProvider)(nil)

func (p *StaticProvider) Complete(ctx context.Context, req Request) (string, error) {
	p.Calls = append(p.Calls, req)
	if p.Err != nil {
		return "", p.Err
	}
	return p.JSON, nil
}

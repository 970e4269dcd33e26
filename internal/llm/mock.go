package llm

import (
	"context"
	"sync"
)

// MockProvider is a test provider. CompleteFunc takes precedence, then the
// scripted Responses are returned in order (the last one repeats), otherwise
// an empty JSON object.
type MockProvider struct {
	CompleteFunc func(ctx context.Context, req Request) (*Response, error)
	Responses    []string

	mu    sync.Mutex
	calls []Request
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	p.mu.Lock()
	n := len(p.calls)
	p.calls = append(p.calls, req)
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, req)
	}

	text := "{}"
	if len(p.Responses) > 0 {
		text = p.Responses[min(n, len(p.Responses)-1)]
	}
	return &Response{
		Text:         text,
		Model:        "mock-model",
		PromptTokens: len(req.Prompt) / 4,
		OutputTokens: len(text) / 4,
	}, nil
}

// Calls returns a copy of the requests received so far.
func (p *MockProvider) Calls() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.calls...)
}


package provider

import (
	"context"
	"sync"

	"github.com/promptcraft-lab/promptops/internal/inference"
)

// FakeProvider is a scriptable in-memory Provider for tests. Responses
// are consumed in order; once exhausted, ResponseText is returned.
// Safe for concurrent use.
type FakeProvider struct {
	ResponseText string
	Responses    []string
	Error        error
	Models       []string

	mu       sync.Mutex
	Requests []*inference.Request
}

func (f *FakeProvider) ChatCompletion(ctx context.Context, req *inference.Request) (*inference.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Requests = append(f.Requests, req)
	if f.Error != nil {
		return nil, f.Error
	}

	text := f.ResponseText
	if n := len(f.Requests) - 1; n < len(f.Responses) {
		text = f.Responses[n]
	}
	return &inference.Response{Content: text}, nil
}

func (f *FakeProvider) ListModels(ctx context.Context) ([]string, error) {
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Models, nil
}

func NewFake(response string) *FakeProvider {
	return &FakeProvider{ResponseText: response}
}

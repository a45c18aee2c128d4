// Package provider contains upstream model backends.
package provider

import (
	"context"

	"github.com/promptcraft-lab/promptops/internal/inference"
)

// Provider is the interface for all upstream model backends.
type Provider interface {
	ChatCompletion(ctx context.Context, req *inference.Request) (*inference.Response, error)
}

// ModelLister is implemented by backends that can enumerate the models
// they have available.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

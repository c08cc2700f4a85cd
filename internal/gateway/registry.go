package gateway

import (
	"sort"
	"strings"

	"github.com/rentfold/rentfold/internal/gateway/domain"
)

// Registry resolves provider identifiers to adapter factories. The provider
// set is closed: adapters register at construction, not at runtime.
type Registry struct {
	factories map[string]domain.Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]domain.Factory)}
}

func (r *Registry) Register(provider string, factory domain.Factory) {
	if r == nil || factory == nil {
		return
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return
	}
	r.factories[provider] = factory
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[strings.ToLower(strings.TrimSpace(provider))]
	return ok
}

func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) NewAdapter(provider string, cfg domain.AdapterConfig) (domain.Gateway, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	factory, ok := r.factories[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return factory(cfg)
}

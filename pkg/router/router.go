package router

import (
	"errors"
	"fmt"

	"github.com/agroguard/agroguard/pkg/config"
	"github.com/agroguard/agroguard/pkg/models"
)

// ErrNoProviders is returned when a use case resolves to no usable provider.
var ErrNoProviders = errors.New("no providers configured")

// Route represents a resolved provider and model to try.
type Route struct {
	Provider config.ProviderConfig
	Model    string
}

// Router resolves use cases to ordered provider+model chains.
type Router struct {
	cfg *config.Config
}

// New creates a Router from the given configuration.
func New(cfg *config.Config) *Router {
	return &Router{cfg: cfg}
}

// Resolve returns an ordered list of routes for the use case.
// If the use case has a configured route, the route's targets are returned.
// Otherwise chat goes to the first chat provider and the structured use
// cases to the first generative provider, with the provider's own model.
func (r *Router) Resolve(uc models.UseCase) ([]Route, error) {
	if len(r.cfg.Providers) == 0 {
		return nil, ErrNoProviders
	}

	// Build provider index by name
	providerIndex := make(map[string]config.ProviderConfig, len(r.cfg.Providers))
	for _, p := range r.cfg.Providers {
		providerIndex[p.Name] = p
	}

	for _, route := range r.cfg.Router.Routes {
		if route.UseCase != uc {
			continue
		}
		var routes []Route
		for _, target := range route.Targets {
			provider, ok := providerIndex[target.Provider]
			if !ok {
				continue // skip unknown providers
			}
			model := target.Model
			if model == "" {
				model = provider.Model
			}
			routes = append(routes, Route{Provider: provider, Model: model})
		}
		if len(routes) == 0 {
			return nil, fmt.Errorf("route %q: all providers unknown: %w", uc, ErrNoProviders)
		}
		return routes, nil
	}

	want := config.ProviderGenerative
	if uc == models.UseCaseChat {
		want = config.ProviderChat
	}
	for _, p := range r.cfg.Providers {
		if p.Type == want {
			return []Route{{Provider: p, Model: p.Model}}, nil
		}
	}

	// No provider of the preferred type, default to first provider
	p := r.cfg.Providers[0]
	return []Route{{Provider: p, Model: p.Model}}, nil
}

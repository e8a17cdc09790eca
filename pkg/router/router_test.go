package router

import (
	"testing"

	"github.com/agroguard/agroguard/pkg/config"
	"github.com/agroguard/agroguard/pkg/models"
)

func TestResolveDefaultsByType(t *testing.T) {
	r := New(config.Default())

	routes, err := r.Resolve(models.UseCaseSpoilage)
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(routes))
	}
	if routes[0].Provider.Name != "gemini" || routes[0].Model != "gemini-1.5-flash" {
		t.Errorf("unexpected route: %+v", routes[0])
	}

	routes, err = r.Resolve(models.UseCaseChat)
	if err != nil {
		t.Fatal(err)
	}
	if routes[0].Provider.Name != "groq" || routes[0].Model != "llama-3.1-8b-instant" {
		t.Errorf("unexpected chat route: %+v", routes[0])
	}
}

func TestResolveFallsBackToFirstProvider(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "gemini", Type: config.ProviderGenerative, URL: "https://generativelanguage.googleapis.com", Model: "gemini-1.5-flash"},
		},
	}
	routes, err := New(cfg).Resolve(models.UseCaseChat)
	if err != nil {
		t.Fatal(err)
	}
	if routes[0].Provider.Name != "gemini" {
		t.Errorf("unexpected route: %+v", routes[0])
	}
}

func TestResolveConfiguredChain(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "gemini", Type: config.ProviderGenerative, Model: "gemini-1.5-flash"},
			{Name: "gemini-backup", Type: config.ProviderGenerative, Model: "gemini-1.5-flash-8b"},
		},
		Router: config.RouterConfig{
			Routes: []config.RouteConfig{
				{
					UseCase: models.UseCaseCropPlan,
					Targets: []config.RouteTarget{
						{Provider: "gemini", Model: "gemini-1.5-pro"},
						{Provider: "gemini-backup"},
					},
				},
			},
		},
	}
	routes, err := New(cfg).Resolve(models.UseCaseCropPlan)
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(routes))
	}
	if routes[0].Model != "gemini-1.5-pro" || routes[0].Provider.Name != "gemini" {
		t.Errorf("unexpected first route: %+v", routes[0])
	}
	if routes[1].Model != "gemini-1.5-flash-8b" || routes[1].Provider.Name != "gemini-backup" {
		t.Errorf("unexpected second route: %+v", routes[1])
	}
}

func TestResolveUnknownProviders(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{{Name: "gemini", Type: config.ProviderGenerative}},
		Router: config.RouterConfig{
			Routes: []config.RouteConfig{
				{UseCase: models.UseCasePrice, Targets: []config.RouteTarget{{Provider: "missing"}}},
			},
		},
	}
	if _, err := New(cfg).Resolve(models.UseCasePrice); err == nil {
		t.Error("expected error when all route providers are unknown")
	}
}

func TestResolveNoProviders(t *testing.T) {
	if _, err := New(&config.Config{}).Resolve(models.UseCaseChat); err == nil {
		t.Error("expected error with no providers")
	}
}

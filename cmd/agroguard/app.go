package main

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/agroguard/agroguard/pkg/audit"
	"github.com/agroguard/agroguard/pkg/budget"
	"github.com/agroguard/agroguard/pkg/cache/memory"
	"github.com/agroguard/agroguard/pkg/config"
	"github.com/agroguard/agroguard/pkg/gateway"
	"github.com/agroguard/agroguard/pkg/logging"
	"github.com/agroguard/agroguard/pkg/provider"
	"github.com/agroguard/agroguard/pkg/router"
	"github.com/agroguard/agroguard/pkg/tracker"
)

// app holds the components shared by serve, advise and mcp.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	cache    *memory.Cache
	tracker  *tracker.SQLiteTracker
	enforcer *budget.Enforcer
	auditor  *audit.Logger
	gateway  *gateway.Gateway
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newApp(configPath string, adjust ...func(*config.Config)) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	for _, fn := range adjust {
		fn(cfg)
	}

	a := &app{
		cfg:    cfg,
		logger: logging.New(cfg.Log),
		cache:  memory.New(cfg.Cache.MaxEntries, cfg.Cache.TTL),
	}

	if cfg.Tracking.Enabled || cfg.Budget.Enabled {
		a.tracker, err = tracker.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("init tracker: %w", err)
		}
	}
	if cfg.Budget.Enabled {
		a.enforcer = budget.New(cfg.Budget.Policies, a.tracker)
	}
	if cfg.Audit.Enabled {
		a.auditor, err = audit.New(cfg.Audit)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("init audit: %w", err)
		}
	}

	clients, err := provider.NewAll(cfg, provider.WithLogger(a.logger))
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("init providers: %w", err)
	}
	for _, p := range cfg.Providers {
		if p.APIKey == "" {
			a.logger.Warn("provider has no credential, its calls will fall back", zap.String("provider", p.Name))
		}
	}

	opts := []gateway.Option{
		gateway.WithClients(clients),
		gateway.WithEnforcer(a.enforcer),
		gateway.WithAuditor(a.auditor),
		gateway.WithLogger(a.logger),
	}
	// Budgets are enforced against recorded usage, so the gateway records
	// whenever a tracker is open.
	if a.tracker != nil {
		opts = append(opts, gateway.WithTracker(a.tracker))
	}
	a.gateway = gateway.New(a.cache, router.New(cfg), opts...)
	return a, nil
}

func (a *app) providerNames() []string {
	names := make([]string, len(a.cfg.Providers))
	for i, p := range a.cfg.Providers {
		names[i] = p.Name
	}
	return names
}

// Close releases the stores and flushes the logger.
func (a *app) Close() error {
	var errs []error
	if a.auditor != nil {
		errs = append(errs, a.auditor.Close())
	}
	if a.tracker != nil {
		errs = append(errs, a.tracker.Close())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

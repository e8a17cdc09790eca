package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/agroguard/agroguard/pkg/models"
)

// Provider types.
const (
	ProviderGenerative = "generative"
	ProviderChat       = "chat"
)

// Rate limiter backends.
const (
	RateLimitLocal = "local"
	RateLimitRedis = "redis"
)

// Config holds all AgroGuard configuration.
type Config struct {
	Listen    string             `yaml:"listen"`
	DBPath    string             `yaml:"db_path"`
	Log       LogConfig          `yaml:"log"`
	Providers []ProviderConfig   `yaml:"providers"`
	Retry     RetryConfig        `yaml:"retry"`
	Cache     CacheConfig        `yaml:"cache"`
	Router    RouterConfig       `yaml:"router"`
	Budget    BudgetConfig       `yaml:"budget"`
	Audit     models.AuditConfig `yaml:"audit"`
	Tracking  TrackingConfig     `yaml:"tracking"`
	RateLimit RateLimitConfig    `yaml:"rate_limit"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string   `yaml:"level"`  // debug, info, warn, error
	Format      string   `yaml:"format"` // json or console
	OutputPaths []string `yaml:"output_paths"`
}

// RouterConfig defines per use case provider fallback chains.
type RouterConfig struct {
	Routes []RouteConfig `yaml:"routes"`
}

// RouteConfig maps a use case to an ordered list of targets.
type RouteConfig struct {
	UseCase models.UseCase `yaml:"use_case"`
	Targets []RouteTarget  `yaml:"targets"`
}

// RouteTarget identifies a specific provider and model in a fallback chain.
type RouteTarget struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// ProviderConfig defines an upstream inference provider.
// Type is "generative" (Gemini generateContent) or "chat" (OpenAI-compatible
// chat completions).
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	URL         string        `yaml:"url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
}

// RetryConfig bounds retries of retry-worthy upstream failures.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxElapsed      time.Duration `yaml:"max_elapsed"`
}

// CacheConfig controls the in-memory decision cache.
type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"` // 0 keeps entries until evicted by size
}

// BudgetConfig controls budget enforcement.
type BudgetConfig struct {
	Enabled  bool                  `yaml:"enabled"`
	Policies []models.BudgetPolicy `yaml:"policies"`
}

// TrackingConfig controls the usage and decision tracker.
type TrackingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RateLimitConfig controls per-client request limiting.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Backend           string        `yaml:"backend"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	MaxClients        int           `yaml:"max_clients"`
	RedisURL          string        `yaml:"redis_url"`
	Window            time.Duration `yaml:"window"`
	Limit             int           `yaml:"limit"`
}

// Default returns a Config with sensible defaults: a Gemini provider for the
// structured use cases and a Groq provider for chat.
func Default() *Config {
	return &Config{
		Listen: ":8000",
		DBPath: "agroguard.db",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Providers: []ProviderConfig{
			{
				Name:    "gemini",
				Type:    ProviderGenerative,
				URL:     "https://generativelanguage.googleapis.com",
				APIKey:  "${GEMINI_API_KEY}",
				Model:   "gemini-1.5-flash",
				Timeout: 20 * time.Second,
			},
			{
				Name:        "groq",
				Type:        ProviderChat,
				URL:         "https://api.groq.com/openai",
				APIKey:      "${GROQ_API_KEY}",
				Model:       "llama-3.1-8b-instant",
				Timeout:     20 * time.Second,
				Temperature: 0.5,
				MaxTokens:   300,
			},
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 250 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			MaxElapsed:      30 * time.Second,
		},
		Cache: CacheConfig{
			MaxEntries: 10000,
		},
		Budget: BudgetConfig{
			Enabled: false,
		},
		Audit: models.AuditConfig{
			DBPath:        "agroguard-audit.db",
			RetentionDays: 30,
			MaxBodySize:   64 * 1024,
		},
		Tracking: TrackingConfig{
			Enabled: true,
		},
		RateLimit: RateLimitConfig{
			Backend:           RateLimitLocal,
			RequestsPerSecond: 5,
			Burst:             10,
			MaxClients:        10000,
			Window:            time.Minute,
			Limit:             120,
		},
	}
}

// Load reads a YAML config file and expands environment variables. A .env
// file in the working directory is loaded first. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		p.APIKey = os.ExpandEnv(p.APIKey)
		p.URL = os.ExpandEnv(p.URL)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Provider returns the provider with the given name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// Validate checks the configuration for errors that would make the gateway
// misbehave. Missing credentials are not errors: calls to such a provider
// fall back.
func (c *Config) Validate() error {
	var errs []error

	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			errs = append(errs, errors.New("provider name is required"))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("duplicate provider %q", p.Name))
		}
		seen[p.Name] = true
		if p.Type != ProviderGenerative && p.Type != ProviderChat {
			errs = append(errs, fmt.Errorf("provider %q: unknown type %q", p.Name, p.Type))
		}
		if p.URL == "" {
			errs = append(errs, fmt.Errorf("provider %q: url is required", p.Name))
		}
		if p.Timeout < 0 {
			errs = append(errs, fmt.Errorf("provider %q: negative timeout", p.Name))
		}
	}

	for _, r := range c.Router.Routes {
		if _, err := models.ParseUseCase(string(r.UseCase)); err != nil {
			errs = append(errs, fmt.Errorf("route: %w", err))
		}
		for _, t := range r.Targets {
			if !seen[t.Provider] {
				errs = append(errs, fmt.Errorf("route %s: unknown provider %q", r.UseCase, t.Provider))
			}
		}
	}

	if c.Cache.MaxEntries <= 0 {
		errs = append(errs, errors.New("cache.max_entries must be positive"))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl must not be negative"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}

	for _, p := range c.Budget.Policies {
		if p.Period != models.BudgetDaily && p.Period != models.BudgetMonthly {
			errs = append(errs, fmt.Errorf("budget policy %q: unknown period %q", p.Provider, p.Period))
		}
	}

	if c.RateLimit.Enabled {
		switch c.RateLimit.Backend {
		case RateLimitLocal:
			if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
				errs = append(errs, errors.New("rate_limit: requests_per_second and burst must be positive"))
			}
		case RateLimitRedis:
			if c.RateLimit.RedisURL == "" {
				errs = append(errs, errors.New("rate_limit: redis_url is required for the redis backend"))
			}
			if c.RateLimit.Window <= 0 || c.RateLimit.Limit <= 0 {
				errs = append(errs, errors.New("rate_limit: window and limit must be positive"))
			}
		default:
			errs = append(errs, fmt.Errorf("rate_limit: unknown backend %q", c.RateLimit.Backend))
		}
	}

	return errors.Join(errs...)
}

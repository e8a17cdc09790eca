// Package gateway orchestrates cache, prompt, provider, extraction and
// fallback into one resilient decision call.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/agroguard/agroguard/pkg/audit"
	"github.com/agroguard/agroguard/pkg/budget"
	"github.com/agroguard/agroguard/pkg/cache"
	"github.com/agroguard/agroguard/pkg/extract"
	"github.com/agroguard/agroguard/pkg/fallback"
	"github.com/agroguard/agroguard/pkg/logging"
	"github.com/agroguard/agroguard/pkg/models"
	"github.com/agroguard/agroguard/pkg/prompt"
	"github.com/agroguard/agroguard/pkg/provider"
	"github.com/agroguard/agroguard/pkg/router"
	"github.com/agroguard/agroguard/pkg/tracker"
)

// Fallback reasons that are not carried by a typed error.
const (
	ReasonCanceled = "canceled"
	ReasonNoRoute  = "no_route"
	ReasonInternal = "internal"
)

var errNoClient = errors.New("no client for provider")

// Store is the decision cache owned by the gateway.
type Store interface {
	Get(key string) (models.Result, bool)
	// Peek reads an entry without counting a hit or miss.
	Peek(key string) (models.CacheEntry, bool)
	Put(key string, result models.Result)
	Len() int
}

// Gateway answers decision requests, live when possible and from fixed
// rules otherwise. It never returns an error: every failure is converted
// into a fallback result.
type Gateway struct {
	store    Store
	router   *router.Router
	clients  map[string]provider.Client
	tracker  tracker.Tracker
	enforcer *budget.Enforcer
	auditor  *audit.Logger
	logger   *zap.Logger
	group    singleflight.Group
	flights  atomic.Int64
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithClients sets the provider clients, keyed by provider name.
func WithClients(clients map[string]provider.Client) Option {
	return func(g *Gateway) { g.clients = clients }
}

// WithTracker records upstream usage and decisions.
func WithTracker(t tracker.Tracker) Option {
	return func(g *Gateway) { g.tracker = t }
}

// WithEnforcer applies provider token budgets before each attempt.
func WithEnforcer(e *budget.Enforcer) Option {
	return func(g *Gateway) { g.enforcer = e }
}

// WithAuditor logs every live attempt.
func WithAuditor(a *audit.Logger) Option {
	return func(g *Gateway) { g.auditor = a }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New creates a Gateway over the given cache and router.
func New(store Store, r *router.Router, opts ...Option) *Gateway {
	g := &Gateway{
		store:   store,
		router:  r,
		clients: map[string]provider.Client{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// live is the outcome of a successful flight.
type live struct {
	result   models.Result
	provider string
	model    string
	// cached is set when an earlier flight filled the key after this
	// caller's lookup missed.
	cached bool
}

// Handle returns a schema-conformant result for req and metadata about how
// it was produced. Concurrent misses on the same key share one upstream
// flight, which runs detached from ctx: a caller that gives up gets a
// fallback while the flight still completes and fills the cache.
func (g *Gateway) Handle(ctx context.Context, req models.Request) (models.Result, models.Decision) {
	start := time.Now()
	reqID, ok := logging.RequestID(ctx)
	if !ok {
		reqID = uuid.NewString()
		ctx = logging.WithRequestID(ctx, reqID)
	}

	req = req.Normalize()
	schema := models.SchemaFor(req.UseCase())
	key := cache.Key(req, schema)
	d := models.Decision{RequestID: reqID, UseCase: req.UseCase()}
	log := g.logger.With(
		zap.String("request_id", reqID),
		zap.String("use_case", string(d.UseCase)),
		zap.String("cache_key_hash", cache.Hash(key)[:16]),
	)

	if v, ok := g.store.Get(key); ok {
		cacheLookups.WithLabelValues("hit").Inc()
		d.Source = models.SourceCache
		return g.finish(ctx, log, req, schema, v, d, start)
	}
	cacheLookups.WithLabelValues("miss").Inc()

	detached := context.WithoutCancel(ctx)
	ch := g.group.DoChan(key, func() (any, error) {
		g.flights.Add(1)
		flightsInFlight.Inc()
		defer func() {
			flightsInFlight.Dec()
			g.flights.Add(-1)
		}()
		if e, ok := g.store.Peek(key); ok {
			return live{result: e.Result, cached: true}, nil
		}
		return g.live(detached, log, req, schema, key)
	})

	select {
	case res := <-ch:
		d.Shared = res.Shared
		if res.Shared {
			sharedTotal.Inc()
		}
		if res.Err != nil {
			d.Source = models.SourceFallback
			d.Reason = reasonOf(res.Err)
			log.Warn("live decision failed", zap.String("reason", d.Reason), zap.Error(res.Err))
			return g.finish(ctx, log, req, schema, fallback.Synthesize(req), d, start)
		}
		l := res.Val.(live)
		if l.cached {
			d.Source = models.SourceCache
			return g.finish(ctx, log, req, schema, l.result.Clone(), d, start)
		}
		d.Source = models.SourceLive
		d.Provider = l.provider
		d.Model = l.model
		return g.finish(ctx, log, req, schema, l.result.Clone(), d, start)
	case <-ctx.Done():
		d.Source = models.SourceFallback
		d.Reason = ReasonCanceled
		log.Info("caller gave up, flight continues detached", zap.Error(ctx.Err()))
		return g.finish(ctx, log, req, schema, fallback.Synthesize(req), d, start)
	}
}

// live tries each route in order and caches the first result that passes
// extraction.
func (g *Gateway) live(ctx context.Context, log *zap.Logger, req models.Request, schema models.Schema, key string) (any, error) {
	routes, err := g.router.Resolve(req.UseCase())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ReasonNoRoute, err)
	}

	p, err := prompt.Build(req, schema)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	reqID, _ := logging.RequestID(ctx)
	keyHash := cache.Hash(key)

	var lastErr error
	for i, rt := range routes {
		name := rt.Provider.Name
		client, ok := g.clients[name]
		if !ok {
			lastErr = fmt.Errorf("provider %s: %w", name, errNoClient)
			continue
		}

		if err := g.enforcer.Check(ctx, name, rt.Model); err != nil {
			if errors.Is(err, budget.ErrBudgetExceeded) {
				lastErr = provider.BudgetError(name, err)
				log.Warn("provider over budget", zap.String("provider", name), zap.String("model", rt.Model))
				continue
			}
			log.Error("budget check failed", zap.String("provider", name), zap.Error(err))
		}

		entry := models.AuditEntry{
			RequestID:    reqID,
			Attempt:      i + 1,
			UseCase:      req.UseCase(),
			CacheKeyHash: keyHash,
			Provider:     name,
			Model:        rt.Model,
			Prompt:       p.Text(),
		}

		resp, err := client.Call(ctx, provider.Call{Model: rt.Model, Prompt: p})
		if err != nil {
			lastErr = err
			var terr *provider.TransportError
			if errors.As(err, &terr) {
				entry.Outcome = terr.Reason()
				entry.StatusCode = terr.StatusCode
				entry.ResponseBody = string(terr.Body)
			} else {
				entry.Outcome = ReasonInternal
			}
			g.audit(ctx, log, entry)
			log.Warn("provider call failed", zap.String("provider", name), zap.String("model", rt.Model), zap.Error(err))
			continue
		}

		usage := extract.Usage(resp.Body)
		g.recordUsage(ctx, log, models.UsageRecord{
			Provider:         name,
			Model:            resp.Model,
			UseCase:          req.UseCase(),
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
			LatencyMs:        resp.Latency.Milliseconds(),
		})

		result, err := extract.Extract(resp.Body, schema)

		entry.Model = resp.Model
		entry.StatusCode = resp.StatusCode
		entry.ResponseBody = string(resp.Body)
		entry.PromptTokens = usage.PromptTokens
		entry.CompletionTokens = usage.CompletionTokens
		entry.TotalTokens = usage.TotalTokens
		entry.LatencyMs = resp.Latency.Milliseconds()
		entry.Outcome = "ok"
		if err != nil {
			entry.Outcome = reasonOf(err)
		}
		g.audit(ctx, log, entry)

		if err != nil {
			lastErr = err
			log.Warn("extraction failed", zap.String("provider", name), zap.String("model", resp.Model), zap.Error(err))
			continue
		}

		g.store.Put(key, result)
		cacheEntries.Set(float64(g.store.Len()))
		return live{result: result, provider: name, model: resp.Model}, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("empty route chain: %w", router.ErrNoProviders)
	}
	return nil, lastErr
}

// finish conforms the result to the schema, then counts, records and logs
// the decision.
func (g *Gateway) finish(ctx context.Context, log *zap.Logger, req models.Request, schema models.Schema, result models.Result, d models.Decision, start time.Time) (models.Result, models.Decision) {
	if conformed, err := schema.Conform(result); err != nil {
		log.Error("result does not conform to schema", zap.String("source", string(d.Source)), zap.Error(err))
	} else {
		result = conformed
	}

	d.Latency = time.Since(start)
	uc := string(d.UseCase)
	decisionsTotal.WithLabelValues(uc, string(d.Source)).Inc()
	decisionDuration.WithLabelValues(uc, string(d.Source)).Observe(d.Latency.Seconds())
	if d.Source == models.SourceFallback {
		fallbacksTotal.WithLabelValues(uc, d.Reason).Inc()
	}

	if g.tracker != nil {
		rec := models.DecisionRecord{
			RequestID: d.RequestID,
			UseCase:   d.UseCase,
			Source:    d.Source,
			Reason:    d.Reason,
			Provider:  d.Provider,
			Model:     d.Model,
			LatencyMs: d.Latency.Milliseconds(),
		}
		if err := g.tracker.RecordDecision(context.WithoutCancel(ctx), rec); err != nil {
			log.Error("record decision", zap.Error(err))
		}
	}

	log.Info("decision",
		zap.String("source", string(d.Source)),
		zap.String("reason", d.Reason),
		zap.String("provider", d.Provider),
		zap.String("model", d.Model),
		zap.Bool("shared", d.Shared),
		zap.Duration("latency", d.Latency),
	)
	return result, d
}

func (g *Gateway) recordUsage(ctx context.Context, log *zap.Logger, rec models.UsageRecord) {
	if g.tracker == nil {
		return
	}
	if err := g.tracker.RecordUsage(ctx, rec); err != nil {
		log.Error("record usage", zap.Error(err))
	}
}

func (g *Gateway) audit(ctx context.Context, log *zap.Logger, entry models.AuditEntry) {
	if err := g.auditor.Log(ctx, entry); err != nil {
		log.Error("audit log", zap.Error(err))
	}
}

// InFlight reports the number of live flights still running.
func (g *Gateway) InFlight() int64 {
	return g.flights.Load()
}

// Drain waits until every detached flight has finished or ctx is done.
func (g *Gateway) Drain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for g.flights.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// reasonOf maps a live-path error to its fallback reason tag.
func reasonOf(err error) string {
	var xerr *extract.Error
	if errors.As(err, &xerr) {
		return string(xerr.Reason)
	}
	var terr *provider.TransportError
	if errors.As(err, &terr) {
		return terr.Reason()
	}
	if errors.Is(err, errNoClient) || errors.Is(err, router.ErrNoProviders) {
		return ReasonNoRoute
	}
	return ReasonInternal
}

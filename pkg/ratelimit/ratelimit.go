// Package ratelimit limits requests per client, either in process or in a
// shared Redis fixed window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/agroguard/agroguard/pkg/config"
)

// Limiter decides whether a client may make another request.
type Limiter interface {
	Allow(ctx context.Context, client string) (bool, error)
	Close() error
}

// New returns the limiter selected by cfg.
func New(cfg config.RateLimitConfig) (Limiter, error) {
	switch cfg.Backend {
	case config.RateLimitRedis:
		r, err := NewRedis(cfg.RedisURL, cfg.Limit, cfg.Window)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.RateLimitLocal, "":
		l, err := NewLocal(cfg.RequestsPerSecond, cfg.Burst, cfg.MaxClients)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}
}

// Local keeps a token bucket per client. The least recently seen clients
// are forgotten once maxClients is reached.
type Local struct {
	limit   rate.Limit
	burst   int
	clients *lru.Cache[string, *rate.Limiter]
}

// NewLocal creates a Local limiter.
func NewLocal(rps float64, burst, maxClients int) (*Local, error) {
	if maxClients <= 0 {
		maxClients = 1
	}
	clients, err := lru.New[string, *rate.Limiter](maxClients)
	if err != nil {
		return nil, fmt.Errorf("create client table: %w", err)
	}
	return &Local{limit: rate.Limit(rps), burst: burst, clients: clients}, nil
}

// Allow consumes one token from the client's bucket.
func (l *Local) Allow(_ context.Context, client string) (bool, error) {
	lim, ok := l.clients.Get(client)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		if prev, found, _ := l.clients.PeekOrAdd(client, lim); found {
			lim = prev
		}
	}
	return lim.Allow(), nil
}

// Close is a no-op.
func (l *Local) Close() error { return nil }

// Redis counts requests per client in fixed windows shared by every
// gateway instance using the same Redis.
type Redis struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedis connects to the Redis at redisURL.
func NewRedis(redisURL string, limit int, window time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Redis{client: redis.NewClient(opt), limit: limit, window: window, now: time.Now}, nil
}

// Allow increments the client's counter for the current window.
func (r *Redis) Allow(ctx context.Context, client string) (bool, error) {
	key := r.key(client)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			return false, fmt.Errorf("expire %s: %w", key, err)
		}
	}

	return count <= int64(r.limit), nil
}

func (r *Redis) key(client string) string {
	start := r.now().Truncate(r.window).Unix()
	return fmt.Sprintf("agroguard:ratelimit:%s:%d", client, start)
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

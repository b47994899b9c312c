package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/use-agent/pesticrawl/models"
)

const keyPrefix = "pesticrawl:crawl:"

// redisEntry is the JSON value stored per key.
type redisEntry struct {
	CreatedAt time.Time            `json:"created_at"`
	Summary   *models.CrawlSummary `json:"summary"`
}

// Redis is a Store shared between instances. Keys expire after ttl.
// Failures are logged and treated as misses.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*Redis)(nil)

// NewRedis connects to addr and pings it.
func NewRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Get(ctx context.Context, key string, maxAge time.Duration) (*models.CrawlSummary, bool) {
	if maxAge <= 0 {
		return nil, false
	}

	raw, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("cache get failed", "error", err)
		}
		return nil, false
	}

	var e redisEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		slog.Warn("cache entry unreadable", "error", err)
		return nil, false
	}
	if time.Since(e.CreatedAt) > maxAge {
		return nil, false
	}
	return e.Summary, true
}

func (r *Redis) Set(ctx context.Context, key string, summary *models.CrawlSummary) {
	raw, err := json.Marshal(redisEntry{CreatedAt: time.Now(), Summary: summary})
	if err != nil {
		slog.Warn("cache entry marshal failed", "error", err)
		return
	}
	if err := r.client.Set(ctx, keyPrefix+key, raw, r.ttl).Err(); err != nil {
		slog.Warn("cache set failed", "error", err)
	}
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

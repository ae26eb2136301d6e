package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/requestr/api/internal/model"
)

// Catalog is the track lookup surface shared by the Spotify client and its cache
type Catalog interface {
	Search(ctx context.Context, query string, limit int) ([]model.Track, error)
	GetTrack(ctx context.Context, id string) (*model.Track, error)
}

// CachedCatalog caches catalog responses in Redis. Cache failures fall
// through to the wrapped catalog.
type CachedCatalog struct {
	next   Catalog
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCachedCatalog wraps next with a Redis cache
func NewCachedCatalog(next Catalog, redisClient *redis.Client, prefix string, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		next:   next,
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *CachedCatalog) trackKey(id string) string {
	return fmt.Sprintf("%s:track:%s", c.prefix, id)
}

func (c *CachedCatalog) searchKey(query string, limit int) string {
	return fmt.Sprintf("%s:search:%d:%s", c.prefix, limit, strings.ToLower(query))
}

// GetTrack returns a cached track or looks it up and caches it. Unknown
// tracks are not cached.
func (c *CachedCatalog) GetTrack(ctx context.Context, id string) (*model.Track, error) {
	var cached model.Track
	if c.load(ctx, c.trackKey(id), &cached) {
		return &cached, nil
	}

	t, err := c.next.GetTrack(ctx, id)
	if err != nil || t == nil {
		return t, err
	}
	c.store(ctx, c.trackKey(id), t)
	return t, nil
}

// Search returns cached results for the same query and limit, or fetches them
func (c *CachedCatalog) Search(ctx context.Context, query string, limit int) ([]model.Track, error) {
	limit = ClampLimit(limit)
	key := c.searchKey(query, limit)

	var cached []model.Track
	if c.load(ctx, key, &cached) {
		return cached, nil
	}

	tracks, err := c.next.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, tracks)
	return tracks, nil
}

func (c *CachedCatalog) load(ctx context.Context, key string, dst interface{}) bool {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("track cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		slog.Warn("track cache entry unreadable", "key", key, "error", err)
		return false
	}
	return true
}

func (c *CachedCatalog) store(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.Warn("track cache write failed", "key", key, "error", err)
	}
}

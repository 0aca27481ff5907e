package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AngelCh415/funnel-insights/internal/models"
)

const DefaultCacheTTL = 30 * time.Minute

// SnapshotCache keeps lead windows for a limited time.
type SnapshotCache interface {
	Get(ctx context.Context, key string) ([]models.RawLead, bool, error)
	Set(ctx context.Context, key string, leads []models.RawLead, ttl time.Duration) error
}

// CachedSource serves repeated windows from cache. Cache failures are logged and
// fall through to the underlying source.
type CachedSource struct {
	src   LeadSource
	cache SnapshotCache
	ttl   time.Duration
	log   *slog.Logger
}

func NewCachedSource(src LeadSource, cache SnapshotCache, ttl time.Duration, log *slog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &CachedSource{src: src, cache: cache, ttl: ttl, log: log}
}

func (c *CachedSource) Leads(ctx context.Context, from, to time.Time) ([]models.RawLead, error) {
	key := windowKey(from, to)
	if leads, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warn("lead cache get", slog.String("key", key), slog.String("err", err.Error()))
	} else if ok {
		return leads, nil
	}

	leads, err := c.src.Leads(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, leads, c.ttl); err != nil {
		c.log.Warn("lead cache set", slog.String("key", key), slog.String("err", err.Error()))
	}
	return leads, nil
}

func windowKey(from, to time.Time) string {
	return "leads:" + from.UTC().Format(time.RFC3339) + "|" + to.UTC().Format(time.RFC3339)
}

type memoryEntry struct {
	leads     []models.RawLead
	fetchedAt time.Time
	ttl       time.Duration
}

func (e memoryEntry) expired(now time.Time) bool { return now.Sub(e.fetchedAt) >= e.ttl }

// MemoryCache is an in-process SnapshotCache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]models.RawLead, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if now := m.now(); e.expired(now) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur.expired(now) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.leads, true, nil
}

// Set also sweeps expired entries so windows that are never read again do not
// pile up.
func (m *MemoryCache) Set(_ context.Context, key string, leads []models.RawLead, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
		}
	}
	m.entries[key] = memoryEntry{leads: leads, fetchedAt: now, ttl: ttl}
	return nil
}

func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// RedisCache stores windows as JSON under prefix+key with a Redis expiry.
type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]models.RawLead, bool, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var leads []models.RawLead
	if err := json.Unmarshal(b, &leads); err != nil {
		return nil, false, fmt.Errorf("decode cached leads: %w", err)
	}
	return leads, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, leads []models.RawLead, ttl time.Duration) error {
	b, err := json.Marshal(leads)
	if err != nil {
		return fmt.Errorf("encode leads: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+key, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

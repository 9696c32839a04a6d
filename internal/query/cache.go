package query

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mzizi/muundo/model"
)

// cacheEntry is one cached query result. The refetch flags echo the policy
// the entry was stored under so lifecycle transitions can find the entries
// they apply to; stale forces a backend revalidation on the next execution
// regardless of age.
type cacheEntry struct {
	Data                any       `json:"data"`
	FetchedAt           time.Time `json:"fetched_at"`
	RefetchOnForeground bool      `json:"refetch_on_foreground,omitempty"`
	RefetchOnReconnect  bool      `json:"refetch_on_reconnect,omitempty"`

	stale bool
}

// Engine executes named queries through a policy-driven cache. It layers
// staleness and retention bookkeeping, per-key request coalescing, retries,
// and optional persistence on top of a transport-owning backend.
type Engine struct {
	backend model.QueryBackend
	persist model.KVStore
	logger  *zap.Logger

	mu      sync.RWMutex
	entries map[string]*cacheEntry

	group singleflight.Group
	now   func() time.Time
}

// NewEngine creates an Engine. The persist store may be nil; policies with
// persist=true then fall back to memory-only caching.
func NewEngine(backend model.QueryBackend, persist model.KVStore, logger *zap.Logger) *Engine {
	return &Engine{
		backend: backend,
		persist: persist,
		logger:  logger,
		entries: make(map[string]*cacheEntry),
		now:     time.Now,
	}
}

// CacheKey builds the canonical cache key for a query and its resolved
// parameters. json.Marshal emits map keys sorted, so parameter order never
// splits the cache.
func CacheKey(queryName string, params map[string]any) string {
	raw, err := json.Marshal(params)
	if err != nil {
		raw = []byte("{}")
	}
	return "query:" + queryName + ":" + string(raw)
}

// Execute implements model.QueryExecutor.
//
// Freshness decisions follow the compiled config only: data younger than the
// staleness window is served from cache without touching the backend; data
// past retention is evicted. When enabled is false the query is deferred,
// returning stale-but-retained data if any exists and a pending result
// otherwise. Concurrent executions for the same key are coalesced into one
// in-flight fetch.
func (e *Engine) Execute(ctx context.Context, queryName string, params map[string]any,
	cfg model.EffectiveCacheConfig, enabled bool) (model.QueryResult, error) {

	key := CacheKey(queryName, params)
	now := e.now()

	entry := e.lookup(ctx, key, cfg)
	if entry != nil {
		age := now.Sub(entry.FetchedAt)
		if !entry.stale && (cfg.Staleness == model.Forever || age <= cfg.Staleness) {
			return model.QueryResult{Data: entry.Data, FromCache: true, FetchedAt: entry.FetchedAt}, nil
		}
		if cfg.Retention != model.Forever && age > cfg.Retention {
			e.evict(ctx, key, cfg)
			entry = nil
		}
	}

	if !enabled {
		if entry != nil {
			return model.QueryResult{Data: entry.Data, FromCache: true, FetchedAt: entry.FetchedAt}, nil
		}
		return model.QueryResult{Pending: true}, nil
	}

	fresh, err, _ := e.group.Do(key, func() (any, error) {
		data, err := e.fetchWithRetries(ctx, queryName, params, cfg.Retries)
		if err != nil {
			return nil, err
		}
		stored := &cacheEntry{
			Data:                data,
			FetchedAt:           e.now(),
			RefetchOnForeground: cfg.RefetchOnForeground,
			RefetchOnReconnect:  cfg.RefetchOnReconnect,
		}
		e.store(ctx, key, stored, cfg)
		return stored, nil
	})
	if err != nil {
		// Serve stale within retention rather than failing the section.
		if entry != nil {
			e.logger.Warn("query failed, serving stale data",
				zap.String("query", queryName), zap.Error(err))
			return model.QueryResult{Data: entry.Data, FromCache: true, FetchedAt: entry.FetchedAt}, nil
		}
		return model.QueryResult{}, err
	}

	stored := fresh.(*cacheEntry)
	return model.QueryResult{Data: stored.Data, FetchedAt: stored.FetchedAt}, nil
}

// Invalidate drops the cached result for one query and parameter set.
func (e *Engine) Invalidate(ctx context.Context, queryName string, params map[string]any) {
	key := CacheKey(queryName, params)
	e.mu.Lock()
	delete(e.entries, key)
	e.mu.Unlock()
	if e.persist != nil {
		if err := e.persist.Delete(ctx, key); err != nil {
			e.logger.Warn("persistent invalidate failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// Purge drops every in-memory entry. Persistent entries expire via TTL.
func (e *Engine) Purge() {
	e.mu.Lock()
	e.entries = make(map[string]*cacheEntry)
	e.mu.Unlock()
}

// MarkForegroundStale flags every cached entry whose policy refetches on
// foreground, forcing a backend revalidation on its next execution. Returns
// the number of entries marked.
func (e *Engine) MarkForegroundStale() int {
	return e.markStale(func(entry *cacheEntry) bool { return entry.RefetchOnForeground })
}

// MarkReconnectStale flags every cached entry whose policy refetches on
// reconnect. Returns the number of entries marked.
func (e *Engine) MarkReconnectStale() int {
	return e.markStale(func(entry *cacheEntry) bool { return entry.RefetchOnReconnect })
}

func (e *Engine) markStale(match func(*cacheEntry) bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	marked := 0
	for _, entry := range e.entries {
		if match(entry) && !entry.stale {
			entry.stale = true
			marked++
		}
	}
	return marked
}

// lookup returns a copy of the cached entry so callers read it without
// holding the lock while lifecycle transitions mark entries stale.
func (e *Engine) lookup(ctx context.Context, key string, cfg model.EffectiveCacheConfig) *cacheEntry {
	e.mu.RLock()
	entry := e.entries[key]
	if entry != nil {
		snapshot := *entry
		e.mu.RUnlock()
		return &snapshot
	}
	e.mu.RUnlock()

	if !cfg.Persist || e.persist == nil {
		return nil
	}
	raw, found, err := e.persist.Get(ctx, key)
	if err != nil {
		e.logger.Warn("persistent cache read failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if !found {
		return nil
	}
	var restored cacheEntry
	if err := json.Unmarshal(raw, &restored); err != nil {
		e.logger.Warn("persistent cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil
	}
	e.mu.Lock()
	e.entries[key] = &restored
	e.mu.Unlock()
	snapshot := restored
	return &snapshot
}

func (e *Engine) store(ctx context.Context, key string, entry *cacheEntry, cfg model.EffectiveCacheConfig) {
	e.mu.Lock()
	e.entries[key] = entry
	e.mu.Unlock()

	if !cfg.Persist || e.persist == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		e.logger.Warn("persistent cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	ttl := cfg.Retention
	if ttl == model.Forever {
		ttl = 0
	}
	if err := e.persist.Set(ctx, key, raw, ttl); err != nil {
		e.logger.Warn("persistent cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (e *Engine) evict(ctx context.Context, key string, cfg model.EffectiveCacheConfig) {
	e.mu.Lock()
	delete(e.entries, key)
	e.mu.Unlock()
	if cfg.Persist && e.persist != nil {
		if err := e.persist.Delete(ctx, key); err != nil {
			e.logger.Warn("persistent evict failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// fetchWithRetries calls the backend up to retries+1 times with a doubling
// backoff starting at 100ms.
func (e *Engine) fetchWithRetries(ctx context.Context, queryName string, params map[string]any, retries int) (any, error) {
	backoff := 100 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		data, err := e.backend.Fetch(ctx, queryName, params)
		if err == nil {
			return data, nil
		}
		lastErr = err
		e.logger.Debug("query attempt failed",
			zap.String("query", queryName),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return nil, lastErr
}

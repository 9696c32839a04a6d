package model

import (
	"context"
	"time"
)

// QueryExecutor is the query-execution collaborator consumed by the
// interpreter. It decides nothing about freshness itself; the compiled
// cache config tells it when data is stale and the enabled flag tells it
// whether the call may be issued at all.
type QueryExecutor interface {
	Execute(ctx context.Context, queryName string, params map[string]any,
		cfg EffectiveCacheConfig, enabled bool) (QueryResult, error)
}

// QueryResult is the outcome of a query execution.
type QueryResult struct {
	Data      any       `json:"data,omitempty"`
	FromCache bool      `json:"from_cache"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`

	// Pending is true when the query was not issued (disabled or deferred)
	// and no cached value exists. The owning section renders empty.
	Pending bool `json:"pending"`
}

// QueryBackend performs the actual fetch for a named query. Implementations
// own transport, HTTP retries, and endpoint resolution; the cache engine
// layers freshness and coalescing on top.
type QueryBackend interface {
	Fetch(ctx context.Context, queryName string, params map[string]any) (any, error)
}

// ComponentRegistry maps a component implementation name to a renderable.
// Unregistered names yield a fallback renderable annotated with the
// requested name, never an error.
type ComponentRegistry interface {
	Instantiate(component string, props map[string]any) Renderable
}

// Renderable is the registry's output handed to the host UI.
type Renderable struct {
	Component string         `json:"component"`
	Props     map[string]any `json:"props,omitempty"`

	// Found is false when the component name was not registered; Component
	// then still carries the requested name for diagnostics.
	Found bool `json:"found"`
}

// KVStore persists cache entries between sessions for policies with
// persist=true. Implementations must treat keys as opaque.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// DocumentSource supplies the structure document. Treated as a static-policy
// query: fetched once, cached indefinitely, reloaded only on demand.
type DocumentSource interface {
	Fetch(ctx context.Context) (*StructureDocument, error)
}

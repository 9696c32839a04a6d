package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mzizi/muundo/model"
)

// countingBackend counts fetches and serves canned data.
type countingBackend struct {
	mu    sync.Mutex
	calls int32
	data  any
	err   error
	delay time.Duration
}

func (b *countingBackend) Fetch(ctx context.Context, _ string, _ map[string]any) (any, error) {
	atomic.AddInt32(&b.calls, 1)
	if b.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.delay):
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data, b.err
}

func (b *countingBackend) count() int32 { return atomic.LoadInt32(&b.calls) }

func onLoadCfg(staleness time.Duration) model.EffectiveCacheConfig {
	return model.EffectiveCacheConfig{
		Strategy:  model.StrategyOnLoad,
		Staleness: staleness,
		Retention: 5 * time.Minute,
	}
}

func TestExecute_freshFetchThenCacheHit(t *testing.T) {
	backend := &countingBackend{data: map[string]any{"v": float64(1)}}
	e := NewEngine(backend, nil, zap.NewNop())
	cfg := onLoadCfg(time.Minute)
	ctx := context.Background()

	first, err := e.Execute(ctx, "places", map[string]any{"q": "x"}, cfg, true)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if first.FromCache {
		t.Error("first result should not come from cache")
	}

	second, err := e.Execute(ctx, "places", map[string]any{"q": "x"}, cfg, true)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !second.FromCache {
		t.Error("second result should come from cache")
	}
	if backend.count() != 1 {
		t.Errorf("backend calls = %d, want 1", backend.count())
	}
}

func TestExecute_staleTriggersRefetch(t *testing.T) {
	backend := &countingBackend{data: "v"}
	e := NewEngine(backend, nil, zap.NewNop())
	cfg := onLoadCfg(time.Minute)
	ctx := context.Background()

	base := time.Now()
	e.now = func() time.Time { return base }
	if _, err := e.Execute(ctx, "q", nil, cfg, true); err != nil {
		t.Fatal(err)
	}

	e.now = func() time.Time { return base.Add(2 * time.Minute) }
	res, err := e.Execute(ctx, "q", nil, cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.FromCache {
		t.Error("stale entry should be refetched")
	}
	if backend.count() != 2 {
		t.Errorf("backend calls = %d, want 2", backend.count())
	}
}

func TestExecute_retentionEvicts(t *testing.T) {
	backend := &countingBackend{data: "v"}
	e := NewEngine(backend, nil, zap.NewNop())
	cfg := model.EffectiveCacheConfig{
		Strategy:  model.StrategyOnLoad,
		Staleness: time.Minute,
		Retention: 10 * time.Minute,
	}
	ctx := context.Background()

	base := time.Now()
	e.now = func() time.Time { return base }
	if _, err := e.Execute(ctx, "q", nil, cfg, true); err != nil {
		t.Fatal(err)
	}

	// Past retention and disabled: nothing to serve.
	e.now = func() time.Time { return base.Add(11 * time.Minute) }
	res, err := e.Execute(ctx, "q", nil, cfg, false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Pending {
		t.Error("evicted entry must not be served")
	}
}

func TestExecute_disabledServesStaleWithinRetention(t *testing.T) {
	backend := &countingBackend{data: "v"}
	e := NewEngine(backend, nil, zap.NewNop())
	cfg := onLoadCfg(time.Minute)
	ctx := context.Background()

	base := time.Now()
	e.now = func() time.Time { return base }
	if _, err := e.Execute(ctx, "q", nil, cfg, true); err != nil {
		t.Fatal(err)
	}

	e.now = func() time.Time { return base.Add(2 * time.Minute) }
	res, err := e.Execute(ctx, "q", nil, cfg, false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.FromCache || res.Data != "v" {
		t.Errorf("res = %+v, want stale cached value", res)
	}
	if backend.count() != 1 {
		t.Errorf("disabled execute must not hit the backend, calls = %d", backend.count())
	}
}

func TestExecute_disabledNoCacheIsPending(t *testing.T) {
	backend := &countingBackend{data: "v"}
	e := NewEngine(backend, nil, zap.NewNop())

	res, err := e.Execute(context.Background(), "q", nil, onLoadCfg(0), false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Pending || res.Data != nil {
		t.Errorf("res = %+v, want pending", res)
	}
	if backend.count() != 0 {
		t.Error("disabled execute must not hit the backend")
	}
}

func TestExecute_staticNeverRefetches(t *testing.T) {
	backend := &countingBackend{data: "v"}
	e := NewEngine(backend, nil, zap.NewNop())
	cfg := model.EffectiveCacheConfig{
		Strategy:  model.StrategyStatic,
		Staleness: model.Forever,
		Retention: model.Forever,
	}
	ctx := context.Background()

	base := time.Now()
	e.now = func() time.Time { return base }
	if _, err := e.Execute(ctx, "q", nil, cfg, true); err != nil {
		t.Fatal(err)
	}
	e.now = func() time.Time { return base.Add(1000 * time.Hour) }
	res, err := e.Execute(ctx, "q", nil, cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.FromCache {
		t.Error("static entry should stay fresh forever")
	}
	if backend.count() != 1 {
		t.Errorf("backend calls = %d, want 1", backend.count())
	}
}

func TestExecute_failureServesStaleWithinRetention(t *testing.T) {
	backend := &countingBackend{data: "v"}
	e := NewEngine(backend, nil, zap.NewNop())
	cfg := onLoadCfg(time.Minute)
	ctx := context.Background()

	base := time.Now()
	e.now = func() time.Time { return base }
	if _, err := e.Execute(ctx, "q", nil, cfg, true); err != nil {
		t.Fatal(err)
	}

	backend.mu.Lock()
	backend.err = errors.New("upstream down")
	backend.mu.Unlock()

	e.now = func() time.Time { return base.Add(2 * time.Minute) }
	res, err := e.Execute(ctx, "q", nil, cfg, true)
	if err != nil {
		t.Fatalf("stale fallback expected, got error %v", err)
	}
	if !res.FromCache || res.Data != "v" {
		t.Errorf("res = %+v", res)
	}
}

func TestExecute_failureNoCacheReturnsError(t *testing.T) {
	backend := &countingBackend{err: errors.New("upstream down")}
	e := NewEngine(backend, nil, zap.NewNop())

	if _, err := e.Execute(context.Background(), "q", nil, onLoadCfg(0), true); err == nil {
		t.Fatal("expected error with no cached fallback")
	}
}

func TestExecute_retries(t *testing.T) {
	var calls int32
	backend := fetchFunc(func(context.Context, string, map[string]any) (any, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("flaky")
		}
		return "ok", nil
	})
	e := NewEngine(backend, nil, zap.NewNop())
	cfg := onLoadCfg(0)
	cfg.Retries = 3

	res, err := e.Execute(context.Background(), "q", nil, cfg, true)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Data != "ok" {
		t.Errorf("data = %v", res.Data)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

type fetchFunc func(ctx context.Context, queryName string, params map[string]any) (any, error)

func (f fetchFunc) Fetch(ctx context.Context, queryName string, params map[string]any) (any, error) {
	return f(ctx, queryName, params)
}

func TestExecute_coalescesConcurrentFetches(t *testing.T) {
	backend := &countingBackend{data: "v", delay: 50 * time.Millisecond}
	e := NewEngine(backend, nil, zap.NewNop())
	cfg := onLoadCfg(time.Minute)
	params := map[string]any{"q": "same"}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Execute(context.Background(), "places", params, cfg, true); err != nil {
				t.Errorf("Execute error: %v", err)
			}
		}()
	}
	wg.Wait()

	if backend.count() != 1 {
		t.Errorf("backend calls = %d, want coalesced single call", backend.count())
	}
}

func TestExecute_distinctParamsDoNotCoalesce(t *testing.T) {
	backend := &countingBackend{data: "v"}
	e := NewEngine(backend, nil, zap.NewNop())
	cfg := onLoadCfg(time.Minute)
	ctx := context.Background()

	if _, err := e.Execute(ctx, "places", map[string]any{"q": "a"}, cfg, true); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Execute(ctx, "places", map[string]any{"q": "b"}, cfg, true); err != nil {
		t.Fatal(err)
	}
	if backend.count() != 2 {
		t.Errorf("backend calls = %d, want 2", backend.count())
	}
}

func TestMarkForegroundStale_forcesRefetch(t *testing.T) {
	backend := &countingBackend{data: "v"}
	e := NewEngine(backend, nil, zap.NewNop())
	cfg := onLoadCfg(time.Hour)
	cfg.RefetchOnForeground = true
	ctx := context.Background()

	if _, err := e.Execute(ctx, "q", nil, cfg, true); err != nil {
		t.Fatal(err)
	}
	res, err := e.Execute(ctx, "q", nil, cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.FromCache || backend.count() != 1 {
		t.Fatalf("entry should be fresh before the transition, calls = %d", backend.count())
	}

	if marked := e.MarkForegroundStale(); marked != 1 {
		t.Errorf("marked = %d, want 1", marked)
	}

	res, err = e.Execute(ctx, "q", nil, cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.FromCache {
		t.Error("marked entry must be refetched")
	}
	if backend.count() != 2 {
		t.Errorf("backend calls = %d, want 2", backend.count())
	}

	// The refetch stores a fresh entry; the mark does not stick.
	if res, err = e.Execute(ctx, "q", nil, cfg, true); err != nil {
		t.Fatal(err)
	}
	if !res.FromCache || backend.count() != 2 {
		t.Errorf("refetched entry should serve from cache again, calls = %d", backend.count())
	}
}

func TestMarkForegroundStale_skipsOptedOutEntries(t *testing.T) {
	backend := &countingBackend{data: "v"}
	e := NewEngine(backend, nil, zap.NewNop())
	cfg := onLoadCfg(time.Hour)
	ctx := context.Background()

	if _, err := e.Execute(ctx, "q", nil, cfg, true); err != nil {
		t.Fatal(err)
	}
	if marked := e.MarkForegroundStale(); marked != 0 {
		t.Errorf("marked = %d, want 0", marked)
	}
	res, err := e.Execute(ctx, "q", nil, cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.FromCache || backend.count() != 1 {
		t.Errorf("entry without the flag must stay cached, calls = %d", backend.count())
	}
}

func TestMarkReconnectStale_forcesRefetch(t *testing.T) {
	backend := &countingBackend{data: "v"}
	e := NewEngine(backend, nil, zap.NewNop())
	cfg := onLoadCfg(time.Hour)
	cfg.RefetchOnReconnect = true
	ctx := context.Background()

	if _, err := e.Execute(ctx, "q", nil, cfg, true); err != nil {
		t.Fatal(err)
	}
	if marked := e.MarkReconnectStale(); marked != 1 {
		t.Errorf("marked = %d, want 1", marked)
	}
	if _, err := e.Execute(ctx, "q", nil, cfg, true); err != nil {
		t.Fatal(err)
	}
	if backend.count() != 2 {
		t.Errorf("backend calls = %d, want 2", backend.count())
	}
}

func TestCacheKey_orderIndependent(t *testing.T) {
	a := CacheKey("q", map[string]any{"x": 1, "y": 2})
	b := CacheKey("q", map[string]any{"y": 2, "x": 1})
	if a != b {
		t.Errorf("keys differ: %q vs %q", a, b)
	}
}

func TestInvalidate(t *testing.T) {
	backend := &countingBackend{data: "v"}
	e := NewEngine(backend, nil, zap.NewNop())
	cfg := onLoadCfg(time.Minute)
	ctx := context.Background()

	if _, err := e.Execute(ctx, "q", nil, cfg, true); err != nil {
		t.Fatal(err)
	}
	e.Invalidate(ctx, "q", nil)
	res, err := e.Execute(ctx, "q", nil, cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.FromCache {
		t.Error("invalidated entry should be refetched")
	}
}

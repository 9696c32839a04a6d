package query

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mzizi/muundo/internal/policy"
	"github.com/mzizi/muundo/model"
)

// PollScheduler runs periodic refetches for poll-strategy sections. Each
// key owns an independent task: stopping one never disturbs its siblings.
// The cadence is recomputed before every tick so foreground changes and
// user activity take effect on the next cycle.
type PollScheduler struct {
	executor model.QueryExecutor
	logger   *zap.Logger

	mu           sync.Mutex
	tasks        map[string]context.CancelFunc
	foreground   bool
	lastActivity time.Time

	now func() time.Time
}

// NewPollScheduler creates a scheduler. Clients start in the foreground.
func NewPollScheduler(executor model.QueryExecutor, logger *zap.Logger) *PollScheduler {
	return &PollScheduler{
		executor:   executor,
		logger:     logger,
		tasks:      make(map[string]context.CancelFunc),
		foreground: true,
		now:        time.Now,
	}
}

// SetForeground records whether the client is in the foreground.
func (s *PollScheduler) SetForeground(fg bool) {
	s.mu.Lock()
	s.foreground = fg
	s.mu.Unlock()
}

// NoteActivity records user activity, which can boost poll cadence.
func (s *PollScheduler) NoteActivity(at time.Time) {
	s.mu.Lock()
	s.lastActivity = at
	s.mu.Unlock()
}

// Start begins polling a query. Starting an already-polled key restarts it
// with the new parameters.
func (s *PollScheduler) Start(queryName string, params map[string]any, cfg model.EffectiveCacheConfig) {
	if !cfg.Polls() {
		return
	}
	key := CacheKey(queryName, params)

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if prev, ok := s.tasks[key]; ok {
		prev()
	}
	s.tasks[key] = cancel
	s.mu.Unlock()

	go s.run(ctx, queryName, params, cfg)
}

// Stop cancels the poll task for one query, if running.
func (s *PollScheduler) Stop(queryName string, params map[string]any) {
	key := CacheKey(queryName, params)
	s.mu.Lock()
	if cancel, ok := s.tasks[key]; ok {
		cancel()
		delete(s.tasks, key)
	}
	s.mu.Unlock()
}

// StopAll cancels every poll task. Called on shutdown and document reload.
func (s *PollScheduler) StopAll() {
	s.mu.Lock()
	for key, cancel := range s.tasks {
		cancel()
		delete(s.tasks, key)
	}
	s.mu.Unlock()
}

// Active returns the number of running poll tasks. For testing.
func (s *PollScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *PollScheduler) run(ctx context.Context, queryName string, params map[string]any, cfg model.EffectiveCacheConfig) {
	timer := time.NewTimer(s.interval(cfg))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if _, err := s.executor.Execute(ctx, queryName, params, cfg, true); err != nil {
			s.logger.Warn("poll refetch failed", zap.String("query", queryName), zap.Error(err))
		}
		timer.Reset(s.interval(cfg))
	}
}

func (s *PollScheduler) interval(cfg model.EffectiveCacheConfig) time.Duration {
	s.mu.Lock()
	fg, last := s.foreground, s.lastActivity
	s.mu.Unlock()
	return policy.EffectiveInterval(cfg, fg, last, s.now())
}

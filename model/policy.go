package model

import "time"

// CacheStrategy selects how a section's data is kept fresh.
type CacheStrategy string

const (
	// StrategyOnLoad revalidates every time the section mounts.
	StrategyOnLoad CacheStrategy = "onLoad"
	// StrategyStatic fetches once and never revalidates.
	StrategyStatic CacheStrategy = "static"
	// StrategyPoll refetches on a fixed or adaptive cadence.
	StrategyPoll CacheStrategy = "poll"
)

// Forever is the sentinel for an unbounded staleness or retention window.
const Forever = time.Duration(1<<63 - 1)

// MinPollInterval is the lowest poll cadence a document may declare.
// Anything below this is rejected at validation time to prevent request
// storms against the backend.
const MinPollInterval = 5 * time.Second

// CachePolicy is the declarative freshness strategy attached to a data
// source. It is a value object; zero fields mean "use strategy defaults".
type CachePolicy struct {
	Strategy CacheStrategy `json:"strategy" yaml:"strategy"`

	StalenessMs *int64 `json:"staleness_ms,omitempty" yaml:"staleness_ms,omitempty"`
	RetentionMs *int64 `json:"retention_ms,omitempty" yaml:"retention_ms,omitempty"`

	RefetchOnForeground *bool `json:"refetch_on_foreground,omitempty" yaml:"refetch_on_foreground,omitempty"`
	RefetchOnReconnect  *bool `json:"refetch_on_reconnect,omitempty"  yaml:"refetch_on_reconnect,omitempty"`

	PollIntervalMs int64               `json:"poll_interval_ms,omitempty" yaml:"poll_interval_ms,omitempty"`
	AdaptivePoll   *AdaptivePollConfig `json:"adaptive_poll,omitempty"    yaml:"adaptive_poll,omitempty"`

	Retries  *int  `json:"retries,omitempty"  yaml:"retries,omitempty"`
	Prefetch *bool `json:"prefetch,omitempty" yaml:"prefetch,omitempty"`
	Persist  *bool `json:"persist,omitempty"  yaml:"persist,omitempty"`
}

// AdaptivePollConfig tunes poll cadence by client state. Only meaningful
// for the poll strategy.
type AdaptivePollConfig struct {
	MinIntervalMs        int64   `json:"min_interval_ms"       yaml:"min_interval_ms"`
	MaxIntervalMs        int64   `json:"max_interval_ms"       yaml:"max_interval_ms"`
	BackgroundMultiplier float64 `json:"background_multiplier" yaml:"background_multiplier"`
	ActivityBoost        bool    `json:"activity_boost"        yaml:"activity_boost"`
}

// EffectiveCacheConfig is the compiled, fully-defaulted refresh behavior
// handed to the query engine. Every field is concrete.
type EffectiveCacheConfig struct {
	Strategy CacheStrategy

	Staleness time.Duration
	Retention time.Duration

	RefetchOnForeground bool
	RefetchOnReconnect  bool

	PollInterval time.Duration
	AdaptivePoll *AdaptivePollConfig

	Retries  int
	Prefetch bool
	Persist  bool
}

// Polls reports whether the config drives a periodic refetch.
func (c EffectiveCacheConfig) Polls() bool {
	return c.Strategy == StrategyPoll && c.PollInterval > 0
}

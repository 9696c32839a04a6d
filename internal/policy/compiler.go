// Package policy compiles declarative cache policies into the concrete
// refresh parameters consumed by the query engine.
package policy

import (
	"time"

	"github.com/mzizi/muundo/model"
)

// Default windows per strategy, applied when the document leaves a field
// unset.
const (
	defaultOnLoadRetention = 5 * time.Minute
	defaultPollRetention   = 5 * time.Minute
	defaultRetries         = 2
)

// Compile turns a declarative policy into a fully-defaulted effective
// config. Every field of the result is concrete; the query engine never
// interprets absence. A nil policy compiles as {strategy: onLoad}.
//
// Defaults merge beneath the section policy in two layers: first the
// document-level cache defaults, then the per-strategy baseline.
func Compile(p *model.CachePolicy, docDefaults *model.CachePolicy) model.EffectiveCacheConfig {
	merged := merge(p, docDefaults)

	cfg := model.EffectiveCacheConfig{
		Strategy: merged.Strategy,
		Retries:  defaultRetries,
	}
	if cfg.Strategy == "" {
		cfg.Strategy = model.StrategyOnLoad
	}
	if merged.Retries != nil {
		cfg.Retries = *merged.Retries
	}
	if merged.Prefetch != nil {
		cfg.Prefetch = *merged.Prefetch
	}
	if merged.Persist != nil {
		cfg.Persist = *merged.Persist
	}

	switch cfg.Strategy {
	case model.StrategyStatic:
		cfg.Staleness = model.Forever
		cfg.Retention = model.Forever
		cfg.RefetchOnForeground = false
		cfg.RefetchOnReconnect = false

	case model.StrategyPoll:
		cfg.PollInterval = time.Duration(merged.PollIntervalMs) * time.Millisecond
		cfg.AdaptivePoll = merged.AdaptivePoll
		if cfg.PollInterval == 0 && cfg.AdaptivePoll != nil {
			cfg.PollInterval = time.Duration(cfg.AdaptivePoll.MinIntervalMs) * time.Millisecond
		}
		// Data is considered stale once the next poll tick is due.
		cfg.Staleness = cfg.PollInterval
		cfg.Retention = defaultPollRetention
		cfg.RefetchOnForeground = false
		cfg.RefetchOnReconnect = true

	default: // onLoad
		cfg.Staleness = 0
		cfg.Retention = defaultOnLoadRetention
		cfg.RefetchOnForeground = true
		cfg.RefetchOnReconnect = true
	}

	// Explicit document values override the strategy baseline.
	if merged.StalenessMs != nil {
		cfg.Staleness = time.Duration(*merged.StalenessMs) * time.Millisecond
	}
	if merged.RetentionMs != nil {
		cfg.Retention = time.Duration(*merged.RetentionMs) * time.Millisecond
	}
	if merged.RefetchOnForeground != nil {
		cfg.RefetchOnForeground = *merged.RefetchOnForeground
	}
	if merged.RefetchOnReconnect != nil {
		cfg.RefetchOnReconnect = *merged.RefetchOnReconnect
	}

	if cfg.Retention < cfg.Staleness {
		cfg.Retention = cfg.Staleness
	}

	return cfg
}

// DefaultRetention returns the retention window a strategy falls back to
// when the document declares none.
func DefaultRetention(s model.CacheStrategy) time.Duration {
	switch s {
	case model.StrategyStatic:
		return model.Forever
	case model.StrategyPoll:
		return defaultPollRetention
	default:
		return defaultOnLoadRetention
	}
}

// merge layers a section policy over document defaults. The section wins
// field by field; strategy is taken from the section when set.
func merge(section, defaults *model.CachePolicy) model.CachePolicy {
	var out model.CachePolicy
	if defaults != nil {
		out = *defaults
	}
	if section == nil {
		return out
	}
	if section.Strategy != "" {
		out.Strategy = section.Strategy
	}
	if section.StalenessMs != nil {
		out.StalenessMs = section.StalenessMs
	}
	if section.RetentionMs != nil {
		out.RetentionMs = section.RetentionMs
	}
	if section.RefetchOnForeground != nil {
		out.RefetchOnForeground = section.RefetchOnForeground
	}
	if section.RefetchOnReconnect != nil {
		out.RefetchOnReconnect = section.RefetchOnReconnect
	}
	if section.PollIntervalMs != 0 {
		out.PollIntervalMs = section.PollIntervalMs
	}
	if section.AdaptivePoll != nil {
		out.AdaptivePoll = section.AdaptivePoll
	}
	if section.Retries != nil {
		out.Retries = section.Retries
	}
	if section.Prefetch != nil {
		out.Prefetch = section.Prefetch
	}
	if section.Persist != nil {
		out.Persist = section.Persist
	}
	return out
}

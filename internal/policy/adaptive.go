package policy

import (
	"time"

	"github.com/mzizi/muundo/model"
)

// activityWindow is the trailing window in which user activity counts as
// "recent" for the activity boost.
const activityWindow = 30 * time.Second

// EffectiveInterval computes the poll cadence for one instant. It is a pure
// function of the config and the client state passed in; callers inject now
// so the result is testable without a clock.
//
// The base interval is stretched by the background multiplier while the
// client is backgrounded, halved when activity was seen inside the trailing
// window, and always clamped to [min, max].
func EffectiveInterval(cfg model.EffectiveCacheConfig, foreground bool, lastActivity, now time.Time) time.Duration {
	base := cfg.PollInterval
	ap := cfg.AdaptivePoll
	if ap == nil {
		return base
	}

	minIv := time.Duration(ap.MinIntervalMs) * time.Millisecond
	maxIv := time.Duration(ap.MaxIntervalMs) * time.Millisecond

	interval := base
	if !foreground && ap.BackgroundMultiplier > 1 {
		interval = time.Duration(float64(interval) * ap.BackgroundMultiplier)
	}
	if ap.ActivityBoost && !lastActivity.IsZero() && now.Sub(lastActivity) <= activityWindow {
		interval /= 2
	}

	if interval < minIv {
		interval = minIv
	}
	if maxIv > 0 && interval > maxIv {
		interval = maxIv
	}
	return interval
}

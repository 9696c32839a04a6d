package action

import (
	"context"

	"go.uber.org/zap"

	"github.com/mzizi/muundo/model"
)

// BadgeResolver resolves navigation badge counts from api:// sources. Every
// failure mode degrades to zero: a broken badge never breaks navigation.
type BadgeResolver struct {
	backend model.QueryBackend
	logger  *zap.Logger
}

// NewBadgeResolver creates a BadgeResolver.
func NewBadgeResolver(backend model.QueryBackend, logger *zap.Logger) *BadgeResolver {
	return &BadgeResolver{backend: backend, logger: logger}
}

// Resolve fetches the count behind a badge source. Parse errors, fetch
// errors, and responses without a numeric count all yield 0.
func (r *BadgeResolver) Resolve(ctx context.Context, source string) int {
	a, err := model.ParseAction(source)
	if err != nil || a.Scheme != model.SchemeAPI {
		r.logger.Warn("invalid badge source", zap.String("source", source), zap.Error(err))
		return 0
	}

	data, err := r.backend.Fetch(ctx, a.Path, nil)
	if err != nil {
		r.logger.Warn("badge fetch failed", zap.String("source", source), zap.Error(err))
		return 0
	}

	count, ok := extractCount(data)
	if !ok {
		r.logger.Warn("badge response has no numeric count", zap.String("source", source))
		return 0
	}
	return count
}

func extractCount(data any) (int, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return 0, false
	}
	switch v := m["count"].(type) {
	case float64:
		if v < 0 {
			return 0, true
		}
		return int(v), true
	case int:
		if v < 0 {
			return 0, true
		}
		return v, true
	case int64:
		if v < 0 {
			return 0, true
		}
		return int(v), true
	}
	return 0, false
}

package runtime

import (
	"context"

	"github.com/mzizi/muundo/model"
)

// UserProvider supplies the USER namespace. A nil result means the caller is
// unauthenticated, which is a valid state, not an error.
type UserProvider interface {
	CurrentUser(ctx context.Context) *model.UserContext
}

// LocationProvider supplies the GEOLOCATION namespace. A nil result means no
// position is available.
type LocationProvider interface {
	CurrentLocation(ctx context.Context) *model.GeoContext
}

// FilterProvider supplies the FILTER namespace as an open key-value map.
type FilterProvider interface {
	CurrentFilter(ctx context.Context) map[string]any
}

// Aggregator builds runtime-context snapshots from upstream providers.
// Contexts are transient: a fresh snapshot is taken per resolution pass and
// never cached across requests.
type Aggregator struct {
	user     UserProvider
	location LocationProvider
	filter   FilterProvider
}

// NewAggregator creates an Aggregator. Any provider may be nil; its
// namespace is then permanently unavailable.
func NewAggregator(user UserProvider, location LocationProvider, filter FilterProvider) *Aggregator {
	return &Aggregator{user: user, location: location, filter: filter}
}

// Snapshot assembles the current runtime context.
func (a *Aggregator) Snapshot(ctx context.Context) *model.RuntimeContext {
	rc := &model.RuntimeContext{}
	if a.user != nil {
		rc.User = a.user.CurrentUser(ctx)
	}
	if a.location != nil {
		rc.Geo = a.location.CurrentLocation(ctx)
	}
	if a.filter != nil {
		rc.Filter = a.filter.CurrentFilter(ctx)
	}
	return rc
}

package model

import "context"

// Context namespaces addressable by $$NAMESPACE.FIELD tokens.
const (
	NamespaceUser   = "USER"
	NamespaceGeo    = "GEOLOCATION"
	NamespaceFilter = "FILTER"
)

// RuntimeContext is the live client state available for parameter
// substitution. It is transient: rebuilt from its providers on every read,
// never persisted with the document. A nil namespace means that source of
// state is currently unavailable (unauthenticated user, no location fix).
type RuntimeContext struct {
	User   *UserContext
	Geo    *GeoContext
	Filter map[string]any
}

// UserContext is the USER namespace.
type UserContext struct {
	ID       string
	Email    string
	Verified bool
	Roles    []string
	Claims   map[string]any
}

// GeoContext is the GEOLOCATION namespace.
type GeoContext struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

// Lookup resolves a namespace/field pair. It returns false both when the
// namespace is unavailable and when the field is unknown within an
// available namespace; callers treat either as unresolved.
func (rc *RuntimeContext) Lookup(namespace, field string) (any, bool) {
	switch namespace {
	case NamespaceUser:
		if rc.User == nil {
			return nil, false
		}
		switch field {
		case "ID":
			return rc.User.ID, true
		case "EMAIL":
			return rc.User.Email, true
		case "VERIFIED":
			return rc.User.Verified, true
		case "ROLES":
			return rc.User.Roles, true
		default:
			if v, ok := rc.User.Claims[field]; ok {
				return v, true
			}
			return nil, false
		}
	case NamespaceGeo:
		if rc.Geo == nil {
			return nil, false
		}
		switch field {
		case "LATITUDE":
			return rc.Geo.Latitude, true
		case "LONGITUDE":
			return rc.Geo.Longitude, true
		case "ACCURACY":
			return rc.Geo.Accuracy, true
		default:
			return nil, false
		}
	case NamespaceFilter:
		if rc.Filter == nil {
			return nil, false
		}
		v, ok := rc.Filter[field]
		return v, ok
	default:
		return nil, false
	}
}

// NamespaceAvailable reports whether the given namespace currently has a
// value, distinguishing "not ready yet" from "field not found".
func (rc *RuntimeContext) NamespaceAvailable(namespace string) bool {
	switch namespace {
	case NamespaceUser:
		return rc.User != nil
	case NamespaceGeo:
		return rc.Geo != nil
	case NamespaceFilter:
		return rc.Filter != nil
	}
	return false
}

// KnownNamespace reports whether the name is a recognized namespace,
// regardless of whether it is currently populated.
func KnownNamespace(name string) bool {
	switch name {
	case NamespaceUser, NamespaceGeo, NamespaceFilter:
		return true
	}
	return false
}

type runtimeContextKey struct{}

// WithRuntimeContext attaches a RuntimeContext to the given context.
func WithRuntimeContext(ctx context.Context, rc *RuntimeContext) context.Context {
	return context.WithValue(ctx, runtimeContextKey{}, rc)
}

// RuntimeContextFrom extracts the RuntimeContext from the context, or nil.
func RuntimeContextFrom(ctx context.Context) *RuntimeContext {
	rc, _ := ctx.Value(runtimeContextKey{}).(*RuntimeContext)
	return rc
}

type requestIDKey struct{}

// WithRequestID attaches a request ID to the given context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom extracts the request ID from the context, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Package action parses and dispatches protocol strings of the shape
// scheme://path found in navigation items, menus, and section props.
package action

import (
	"context"

	"go.uber.org/zap"

	"github.com/mzizi/muundo/model"
)

// Handler executes one action scheme.
type Handler interface {
	Handle(ctx context.Context, a model.Action, payload map[string]any) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, a model.Action, payload map[string]any) (any, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, a model.Action, payload map[string]any) (any, error) {
	return f(ctx, a, payload)
}

// DispatchResult reports the outcome of one dispatch. Failures are carried
// in the result, never raised: a broken action string in a document must
// not take the page down.
type DispatchResult struct {
	Action  string `json:"action"`
	Scheme  string `json:"scheme,omitempty"`
	Path    string `json:"path,omitempty"`
	Handled bool   `json:"handled"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router maps action schemes to handlers. Registration happens once at
// startup; Dispatch is safe for concurrent use afterwards.
type Router struct {
	handlers map[string]Handler
	logger   *zap.Logger
}

// NewRouter creates an empty Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register binds a handler to a scheme, replacing any previous binding.
func (r *Router) Register(scheme string, h Handler) {
	r.handlers[scheme] = h
}

// Dispatch parses a raw action string and routes it to the scheme's handler.
// Parse failures and handler errors are logged and reported in the result;
// Dispatch never panics and never returns an error.
func (r *Router) Dispatch(ctx context.Context, raw string, payload map[string]any) DispatchResult {
	res := DispatchResult{Action: raw}

	a, err := model.ParseAction(raw)
	if err != nil {
		r.logger.Warn("unparseable action", zap.String("action", raw), zap.Error(err))
		res.Error = err.Error()
		return res
	}
	if a.NoOp() {
		res.Handled = true
		return res
	}
	res.Scheme = a.Scheme
	res.Path = a.Path

	h, ok := r.handlers[a.Scheme]
	if !ok {
		r.logger.Warn("no handler for action scheme", zap.String("scheme", a.Scheme))
		res.Error = "no handler registered for scheme " + a.Scheme
		return res
	}

	out, err := h.Handle(ctx, a, payload)
	if err != nil {
		r.logger.Warn("action dispatch failed",
			zap.String("scheme", a.Scheme),
			zap.String("path", a.Path),
			zap.Error(err))
		res.Error = err.Error()
		return res
	}
	res.Handled = true
	res.Result = out
	return res
}

// RouteDirective instructs the client to change its presentation state. The
// engine does not navigate itself; it hands the directive back.
type RouteDirective struct {
	Kind   string         `json:"kind"`
	Target string         `json:"target"`
	Params map[string]any `json:"params,omitempty"`
}

// NewRoutingHandler returns a handler that converts navigation-family
// actions (navigate, modal, bottomsheet) into route directives.
func NewRoutingHandler(kind string) Handler {
	return HandlerFunc(func(_ context.Context, a model.Action, payload map[string]any) (any, error) {
		return RouteDirective{Kind: kind, Target: a.Path, Params: payload}, nil
	})
}

// NewAPIHandler returns a handler that forwards api:// actions to the query
// backend, using the action path as the query name.
func NewAPIHandler(backend model.QueryBackend) Handler {
	return HandlerFunc(func(ctx context.Context, a model.Action, payload map[string]any) (any, error) {
		return backend.Fetch(ctx, a.Path, payload)
	})
}

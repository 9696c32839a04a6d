// Package runtime aggregates live client state into namespaced context and
// substitutes context tokens inside section parameters.
package runtime

import (
	"fmt"
	"strings"

	"github.com/mzizi/muundo/internal/schema"
	"github.com/mzizi/muundo/model"
)

// Resolution is the outcome of resolving one parameter map against a
// runtime context.
type Resolution struct {
	// Params holds the output map. Parameters whose tokens could not be
	// resolved are absent, never present with a placeholder.
	Params map[string]any

	// Missing lists the names of parameters dropped because their context
	// value was unavailable. Nested parameters use dotted paths.
	Missing []string

	// Warnings carries diagnostics for malformed tokens.
	Warnings []string

	// Enabled is false when at least one required context-bound parameter
	// could not be resolved. Literal parameters never disable a query.
	Enabled bool
}

// Resolve substitutes $$NAMESPACE.FIELD tokens in params with values from
// the runtime context. Pure literal maps pass through unchanged with Enabled
// true. The input map is never mutated.
func Resolve(params map[string]any, required []string, rc *model.RuntimeContext) Resolution {
	res := Resolution{Enabled: true}
	if len(params) == 0 {
		res.Params = map[string]any{}
		return res
	}

	res.Params = resolveMap("", params, rc, &res)

	if len(res.Missing) == 0 {
		return res
	}
	requiredSet := make(map[string]bool, len(required))
	for _, name := range required {
		requiredSet[name] = true
	}
	for _, name := range res.Missing {
		// An empty required list means every context-bound parameter is
		// required. Nested paths match on their top-level parameter name.
		if len(requiredSet) == 0 || requiredSet[name] || requiredSet[firstSegment(name)] {
			res.Enabled = false
			break
		}
	}
	return res
}

func firstSegment(path string) string {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			return path[:i]
		}
	}
	return path
}

func resolveMap(prefix string, params map[string]any, rc *model.RuntimeContext, res *Resolution) map[string]any {
	out := make(map[string]any, len(params))
	for name, val := range params {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		switch t := val.(type) {
		case string:
			resolved, ok := resolveValue(path, t, rc, res)
			if ok {
				out[name] = resolved
			}
		case map[string]any:
			out[name] = resolveMap(path, t, rc, res)
		default:
			out[name] = val
		}
	}
	return out
}

// resolveValue handles one string value. Only values carrying the $$ prefix
// are token candidates; a single $ is an ordinary literal. The boolean is
// false when the parameter must be dropped from the output.
func resolveValue(path, value string, rc *model.RuntimeContext, res *Resolution) (any, bool) {
	if !strings.HasPrefix(value, "$$") {
		return value, true
	}

	ns, field, ok := schema.SplitToken(value)
	if !ok {
		res.Missing = append(res.Missing, path)
		res.Warnings = append(res.Warnings, fmt.Sprintf("malformed context token %q in parameter %q", value, path))
		return nil, false
	}

	if rc != nil {
		if v, found := rc.Lookup(ns, field); found {
			return v, true
		}
	}
	res.Missing = append(res.Missing, path)
	return nil, false
}

package expr

import (
	"strings"

	"github.com/mzizi/muundo/model"
)

// ApplyTransform reshapes fetched query data according to a declarative
// transform. A nil transform returns the data unchanged. Transforms never
// fail; paths that do not match simply yield less data.
func ApplyTransform(data any, t *model.DataTransform) any {
	if t == nil {
		return data
	}
	if t.ItemsPath != "" {
		data = ExtractPath(data, t.ItemsPath)
	}
	if len(t.FieldMap) > 0 || len(t.Pick) > 0 {
		data = mapValue(data, t.FieldMap, t.Pick)
	}
	return data
}

// ExtractPath walks a dot-separated path into nested maps. It returns nil
// when any step is missing or the value is not a map.
func ExtractPath(data any, path string) any {
	current := data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

// mapValue applies field renaming and projection to an object, or to each
// element of a list. Non-object values pass through untouched.
func mapValue(data any, fieldMap map[string]string, pick []string) any {
	switch v := data.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = mapValue(item, fieldMap, pick)
		}
		return out
	case map[string]any:
		return mapObject(v, fieldMap, pick)
	default:
		return data
	}
}

func mapObject(obj map[string]any, fieldMap map[string]string, pick []string) map[string]any {
	out := make(map[string]any, len(obj))
	if len(pick) > 0 {
		for _, key := range pick {
			if val, ok := obj[key]; ok {
				out[key] = val
			}
		}
	} else {
		for k, val := range obj {
			out[k] = val
		}
	}
	for from, to := range fieldMap {
		if val, ok := out[from]; ok {
			delete(out, from)
			out[to] = val
		}
	}
	return out
}

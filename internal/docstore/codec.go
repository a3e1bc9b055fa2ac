package docstore

import (
	"encoding/json"
	"fmt"
)

// Encode converts a record (or a map) into its stored JSON shape: times become
// RFC 3339 strings and numbers become float64.
func Encode(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("document must encode to an object: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// Decode maps stored document data onto a typed record.
func Decode[T any](data map[string]any) (T, error) {
	var out T

	raw, err := json.Marshal(data)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return clone(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

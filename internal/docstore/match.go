package docstore

import (
	"time"
)

// Matches reports whether stored document data satisfies every filter.
// A document missing a filtered field never matches.
func Matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		stored, ok := data[f.Field]
		if !ok || stored == nil {
			return false
		}
		if !matchOne(stored, f) {
			return false
		}
	}
	return true
}

func matchOne(stored any, f Filter) bool {
	switch f.Op {
	case OpEq:
		return equalValues(stored, f.Value)
	case OpIn:
		list, _ := f.Value.([]string)
		for _, candidate := range list {
			if equalValues(stored, candidate) {
				return true
			}
		}
		return false
	}

	cmp, ok := compareValues(stored, f.Value)
	if !ok {
		return false
	}
	switch f.Op {
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	}
	return false
}

func equalValues(stored, want any) bool {
	if _, isTime := want.(time.Time); isTime {
		cmp, ok := compareValues(stored, want)
		return ok && cmp == 0
	}

	switch w := want.(type) {
	case string:
		s, ok := stored.(string)
		return ok && s == w
	case float64:
		n, ok := stored.(float64)
		return ok && n == w
	case bool:
		b, ok := stored.(bool)
		return ok && b == w
	}
	return false
}

// compareValues orders a stored JSON value against a filter value of the same
// kind. Stored timestamps are RFC 3339 strings.
func compareValues(stored, want any) (int, bool) {
	switch w := want.(type) {
	case time.Time:
		s, ok := stored.(string)
		if !ok {
			return 0, false
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return 0, false
		}
		return ts.Compare(w), true
	case float64:
		n, ok := stored.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case n < w:
			return -1, true
		case n > w:
			return 1, true
		}
		return 0, true
	case string:
		s, ok := stored.(string)
		if !ok {
			return 0, false
		}
		switch {
		case s < w:
			return -1, true
		case s > w:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

package docstore

import (
	"fmt"
	"strings"
	"time"
)

type Op string

const (
	OpEq  Op = "=="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpIn  Op = "in"
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

type Query struct {
	Collection string
	Filters    []Filter
	Limit      int
}

// From starts a query over a collection.
func From(collection string) Query {
	return Query{Collection: collection}
}

func (q Query) Where(field string, op Op, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: normalizeValue(value)})
	return q
}

func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

func (q Query) validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: collection is required", ErrInvalidQuery)
	}
	for _, f := range q.Filters {
		if f.Field == "" || strings.ContainsAny(f.Field, ".\x00") {
			return fmt.Errorf("%w: bad field %q", ErrInvalidQuery, f.Field)
		}
		switch f.Op {
		case OpEq, OpLt, OpLte, OpGt, OpGte:
		case OpIn:
			if _, ok := f.Value.([]string); !ok {
				return fmt.Errorf("%w: %q needs a string list", ErrInvalidQuery, f.Field)
			}
		default:
			return fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, f.Op)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	return nil
}

// normalizeValue folds filter values into the few kinds the backends compare:
// string, float64, bool, time.Time and []string.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case time.Time:
		return t.UTC()
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return v
			}
			out = append(out, s)
		}
		return out
	default:
		return v
	}
}

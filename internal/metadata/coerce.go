package metadata

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// DateLayouts are the textual datetime forms accepted by CoerceScalar.
var DateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// CoerceScalar converts v into the canonical Go representation of kind:
// string, int64, float64, bool or time.Time (UTC).
func CoerceScalar(kind ScalarKind, v any) (any, error) {
	switch kind {
	case ScalarString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case ScalarInteger, ScalarLong:
		if n, ok := toInt64(v); ok {
			if kind == ScalarInteger && (n > math.MaxInt32 || n < math.MinInt32) {
				return nil, fmt.Errorf("%w: %d overflows integer", ErrInvalidValue, n)
			}
			return n, nil
		}
	case ScalarDouble:
		if f, ok := toFloat64(v); ok {
			return f, nil
		}
	case ScalarBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case ScalarDateTime:
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		case string:
			for _, layout := range DateLayouts {
				if parsed, err := time.Parse(layout, t); err == nil {
					return parsed.UTC(), nil
				}
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown scalar kind %q", ErrInvalidValue, kind)
	}
	return nil, fmt.Errorf("%w: %v (%T) is not a %s", ErrInvalidValue, v, v, kind)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float64:
		// 2^63 is exact in float64; anything at or past it does not fit.
		if n == math.Trunc(n) && n >= -(1<<63) && n < 1<<63 {
			return int64(n), true
		}
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

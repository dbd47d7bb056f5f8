// Package sanitizer converts arbitrary bound query parameters into a JSON
// safe mapping so payload encoding can never fail on a driver value.
package sanitizer

import (
	"database/sql/driver"
	"fmt"
	"time"
)

const (
	placeholderObject      = "[Object]"
	placeholderUnparseable = "[Unparseable]"
)

// Sanitize maps every parameter to a key of the form param_<index>. The
// output always has exactly one entry per input element, in input position,
// and the function never panics: scalars pass through, timestamps become
// ISO-8601 strings, everything else collapses to a placeholder.
func Sanitize(params []any) map[string]any {
	out := make(map[string]any, len(params))
	for i, p := range params {
		out[fmt.Sprintf("param_%d", i)] = sanitizeValue(p)
	}
	return out
}

func sanitizeValue(v any) (result any) {
	// Driver values and custom types can panic inside Value() or String();
	// such entries degrade to a placeholder instead of killing the report.
	defer func() {
		if r := recover(); r != nil {
			result = placeholderUnparseable
		}
	}()

	switch t := v.(type) {
	case nil:
		return nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return t
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.Format(time.RFC3339Nano)
	case driver.Valuer:
		val, err := t.Value()
		if err != nil {
			return placeholderObject
		}
		if _, again := val.(driver.Valuer); again {
			// Self-referential valuer, do not recurse forever.
			return placeholderObject
		}
		return sanitizeValue(val)
	case []byte:
		return string(t)
	default:
		return placeholderObject
	}
}

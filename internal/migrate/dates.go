package migrate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// dateObjectField is how the embedded engine serializes Date values.
const dateObjectField = "$$date"

// isLegacyDate reports whether v is a date in a non-integer representation:
// a date string or a {"$$date": ...} object.
func isLegacyDate(v any) bool {
	switch val := v.(type) {
	case string:
		return true
	case map[string]any:
		_, ok := val[dateObjectField]
		return ok
	default:
		return false
	}
}

// toMillis converts any stored date representation to unix milliseconds.
// ok is false when the value is absent.
func toMillis(v any) (millis int64, ok bool, err error) {
	switch val := v.(type) {
	case nil:
		return 0, false, nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, true, nil
		}
		f, err := val.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("invalid numeric date %q: %w", val, err)
		}
		return int64(f), true, nil
	case float64:
		return int64(val), true, nil
	case int64:
		return val, true, nil
	case int:
		return int64(val), true, nil
	case map[string]any:
		inner, exists := val[dateObjectField]
		if !exists {
			return 0, false, fmt.Errorf("unsupported date object %v", val)
		}
		return toMillis(inner)
	case string:
		t, err := parseDateString(val)
		if err != nil {
			return 0, false, err
		}
		return t.UnixMilli(), true, nil
	default:
		return 0, false, fmt.Errorf("unsupported date value of type %T", v)
	}
}

// parseDateString parses the date strings legacy records carry: ISO 8601
// (Date.toJSON), Date.toString output and bare millisecond timestamps.
// Strings without a zone are read in the local time zone.
func parseDateString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	t, err := dateparse.ParseIn(s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparsable date %q: %w", s, err)
	}
	return t, nil
}

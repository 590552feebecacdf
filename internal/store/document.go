package store

import (
	"encoding/json"
	"math"
	"reflect"
)

// KeyField is the reserved field holding a document's store key.
const KeyField = "_id"

// Document is a schemaless JSON document.
// Numbers decoded from disk are json.Number; use Int64 to read them.
type Document map[string]any

// Key returns the document's store key, or "" if it has none.
func (d Document) Key() string {
	k, _ := d[KeyField].(string)
	return k
}

// Has reports whether the field is present and non-null.
func (d Document) Has(field string) bool {
	v, ok := d[field]
	return ok && v != nil
}

// String returns the field as a string.
func (d Document) String(field string) (string, bool) {
	s, ok := d[field].(string)
	return s, ok
}

// Int64 returns the field as an integer if it holds an integral number.
func (d Document) Int64(field string) (int64, bool) {
	n, ok := normalizeValue(d[field]).(int64)
	return n, ok
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return cloneValue(map[string]any(d)).(map[string]any)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Document:
		return Document(cloneValue(map[string]any(val)).(map[string]any))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = cloneValue(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	case json.RawMessage:
		out := make(json.RawMessage, len(val))
		copy(out, val)
		return out
	default:
		return val
	}
}

// normalizeValue maps every numeric representation to int64 (integral values)
// or float64 so that values read from disk compare equal to values set in code.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return normalizeValue(f)
		}
		return val.String()
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val)
		}
		return val
	case float32:
		return normalizeValue(float64(val))
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case int64:
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalizeValue(elem)
		}
		return out
	case Document:
		return normalizeValue(map[string]any(val))
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalizeValue(elem)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = elem
		}
		return out
	default:
		return val
	}
}

// valuesEqual compares two document values after numeric normalization.
func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(normalizeValue(a), normalizeValue(b))
}

package store

// Query selects documents. A nil Query matches every document.
type Query func(Document) bool

func (q Query) match(d Document) bool {
	return q == nil || q(d)
}

// All matches every document.
func All() Query {
	return func(Document) bool { return true }
}

// ByKey matches the document with the given store key.
func ByKey(key string) Query {
	return func(d Document) bool { return d.Key() == key }
}

// Where matches documents whose field equals value.
// Numbers compare by value regardless of representation.
func Where(field string, value any) Query {
	return func(d Document) bool {
		v, ok := d[field]
		return ok && valuesEqual(v, value)
	}
}

// Missing matches documents that lack the field (or hold null).
func Missing(field string) Query {
	return func(d Document) bool { return !d.Has(field) }
}

// Exists matches documents that carry a non-null field.
func Exists(field string) Query {
	return func(d Document) bool { return d.Has(field) }
}

// IsString matches documents whose field holds a string.
func IsString(field string) Query {
	return func(d Document) bool {
		_, ok := d[field].(string)
		return ok
	}
}

// Not inverts q.
func Not(q Query) Query {
	return func(d Document) bool { return !q.match(d) }
}

// And matches documents that satisfy every query.
func And(qs ...Query) Query {
	return func(d Document) bool {
		for _, q := range qs {
			if !q.match(d) {
				return false
			}
		}
		return true
	}
}

// Or matches documents that satisfy at least one query.
func Or(qs ...Query) Query {
	return func(d Document) bool {
		for _, q := range qs {
			if q.match(d) {
				return true
			}
		}
		return false
	}
}

// Patch describes an update: fields to set and fields to remove.
// It is the equivalent of {$set: ..., $unset: ...}.
type Patch struct {
	Set   map[string]any
	Unset []string
}

// SetField returns a patch that sets a single field.
func SetField(field string, value any) Patch {
	return Patch{Set: map[string]any{field: value}}
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return len(p.Set) == 0 && len(p.Unset) == 0
}

// apply returns a patched copy of d. The store key is never changed.
func (p Patch) apply(d Document) Document {
	out := d.Clone()
	for field, value := range p.Set {
		if field == KeyField {
			continue
		}
		out[field] = cloneValue(value)
	}
	for _, field := range p.Unset {
		if field == KeyField {
			continue
		}
		delete(out, field)
	}
	return out
}

package store

import (
	"encoding/json"
	"fmt"
)

// uniqueIndex maps a field value to the key of the document holding it.
// Documents without the field are not indexed (sparse).
type uniqueIndex struct {
	field   string
	entries map[string]string
}

func newUniqueIndex(field string) *uniqueIndex {
	return &uniqueIndex{field: field, entries: make(map[string]string)}
}

// indexKey encodes a field value as a map key. ok is false for absent fields.
func indexKey(d Document, field string) (key string, ok bool) {
	v, present := d[field]
	if !present || v == nil {
		return "", false
	}
	b, err := json.Marshal(normalizeValue(v))
	if err != nil {
		return fmt.Sprintf("%v", v), true
	}
	return string(b), true
}

func (ix *uniqueIndex) add(d Document) error {
	k, ok := indexKey(d, ix.field)
	if !ok {
		return nil
	}
	if owner, exists := ix.entries[k]; exists && owner != d.Key() {
		return &UniqueViolationError{Field: ix.field, Value: d[ix.field], Key: owner}
	}
	ix.entries[k] = d.Key()
	return nil
}

func (ix *uniqueIndex) remove(d Document) {
	k, ok := indexKey(d, ix.field)
	if !ok {
		return
	}
	if ix.entries[k] == d.Key() {
		delete(ix.entries, k)
	}
}

// check verifies that replacing the batch documents with their new versions
// keeps the index unique. The index itself is not modified.
func (ix *uniqueIndex) check(batch []Document) error {
	inBatch := make(map[string]bool, len(batch))
	for _, d := range batch {
		inBatch[d.Key()] = true
	}
	added := make(map[string]string, len(batch))
	for _, d := range batch {
		k, ok := indexKey(d, ix.field)
		if !ok {
			continue
		}
		if other, exists := added[k]; exists && other != d.Key() {
			return &UniqueViolationError{Field: ix.field, Value: d[ix.field], Key: other}
		}
		if owner, exists := ix.entries[k]; exists && owner != d.Key() && !inBatch[owner] {
			return &UniqueViolationError{Field: ix.field, Value: d[ix.field], Key: owner}
		}
		added[k] = d.Key()
	}
	return nil
}

package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Special top-level fields of log lines.
const (
	deletedField      = "$$deleted"
	indexCreatedField = "$$indexCreated"
	indexRemovedField = "$$indexRemoved"
)

// indexDef is the persisted definition of an index.
type indexDef struct {
	FieldName string `json:"fieldName"`
	Unique    bool   `json:"unique"`
	Sparse    bool   `json:"sparse"`
}

// encodeDocument serializes a document as a single log line without the
// trailing newline. Keys are emitted in sorted order, so equal documents
// always produce equal bytes.
func encodeDocument(d Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any(d)); err != nil {
		return nil, fmt.Errorf("encode document %s: %w", d.Key(), err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// decodeDocument parses a log line. Numbers are kept as json.Number so that
// integers survive a round trip unchanged.
func decodeDocument(line []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var d map[string]any
	if err := dec.Decode(&d); err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("line is not a JSON object")
	}
	return Document(d), nil
}

// canonicalize returns the document exactly as it would be read back from
// disk, together with its encoded line.
func canonicalize(d Document) (Document, []byte, error) {
	line, err := encodeDocument(d)
	if err != nil {
		return nil, nil, err
	}
	out, err := decodeDocument(line)
	if err != nil {
		return nil, nil, fmt.Errorf("decode document %s: %w", d.Key(), err)
	}
	return out, line, nil
}

func encodeTombstone(key string) ([]byte, error) {
	return json.Marshal(map[string]any{KeyField: key, deletedField: true})
}

func encodeIndexCreated(def indexDef) ([]byte, error) {
	return json.Marshal(map[string]any{indexCreatedField: def})
}

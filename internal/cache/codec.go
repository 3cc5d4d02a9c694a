package cache

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/devrev/bqsync/internal/model"
)

type entryKind string

const (
	kindValue   entryKind = "value"
	kindTabular entryKind = "tabular"
)

// entry is the stored envelope.
// Tables, at the top level or nested in a value, decode with their cell types restored.
type entry struct {
	Kind  entryKind       `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
	Table *model.Table    `json:"table,omitempty"`
}

func encodeEntry(v any) ([]byte, error) {
	if t, ok := v.(*model.Table); ok {
		if t == nil {
			return nil, fmt.Errorf("cannot cache nil table")
		}
		return json.Marshal(entry{Kind: kindTabular, Table: t})
	}

	value, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(entry{Kind: kindValue, Value: value})
}

func decodeEntry[T any](data []byte) (T, error) {
	var zero T

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var e entry
	if err := dec.Decode(&e); err != nil {
		return zero, err
	}

	if _, wantTable := any(zero).(*model.Table); wantTable {
		if e.Kind != kindTabular || e.Table == nil {
			return zero, fmt.Errorf("entry kind %q, want %q", e.Kind, kindTabular)
		}
		out, _ := any(e.Table).(T)
		return out, nil
	}

	if e.Kind != kindValue {
		return zero, fmt.Errorf("entry kind %q, want %q", e.Kind, kindValue)
	}
	var out T
	if err := json.Unmarshal(e.Value, &out); err != nil {
		return zero, err
	}
	return out, nil
}

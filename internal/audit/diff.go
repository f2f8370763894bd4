package audit

import (
	"bytes"
	"encoding/json"
	"math/big"
	"reflect"
	"sort"
)

// FieldChange describes one field whose value differs between two snapshots.
type FieldChange struct {
	Field string
	Old   json.RawMessage
	New   json.RawMessage
}

// Snapshot serializes a record into its stored form. Raw JSON input is
// validated and compacted instead of being encoded twice.
func Snapshot(record any) (json.RawMessage, error) {
	if record == nil {
		return nil, ErrMissingRecord
	}
	var raw []byte
	switch v := record.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(record)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	if !json.Valid(raw) {
		return nil, ErrNotAnObject
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	if bytes.Equal(buf.Bytes(), []byte("null")) {
		return nil, ErrMissingRecord
	}
	return json.RawMessage(buf.Bytes()), nil
}

// Diff compares two records field by field. Values are compared after JSON
// decoding with reflect.DeepEqual and numbers by exact value, so key order and
// number formatting (1.0 and 1, 1e2 and 100) never produce a change. Missing fields and explicit nulls are equivalent. The result is
// sorted by field name.
func Diff(oldRecord, newRecord any, ignored map[string]struct{}) ([]FieldChange, error) {
	oldFields, err := decodeFields(oldRecord)
	if err != nil {
		return nil, err
	}
	newFields, err := decodeFields(newRecord)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(oldFields)+len(newFields))
	for k := range oldFields {
		keys[k] = struct{}{}
	}
	for k := range newFields {
		keys[k] = struct{}{}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		if _, skip := ignored[k]; skip {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)

	var changes []FieldChange
	for _, name := range names {
		before, after := oldFields[name], newFields[name]
		if reflect.DeepEqual(canonical(before), canonical(after)) {
			continue
		}
		oldRaw, err := encodeValue(before)
		if err != nil {
			return nil, err
		}
		newRaw, err := encodeValue(after)
		if err != nil {
			return nil, err
		}
		changes = append(changes, FieldChange{Field: name, Old: oldRaw, New: newRaw})
	}
	return changes, nil
}

func decodeFields(record any) (map[string]any, error) {
	raw, err := Snapshot(record)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, ErrNotAnObject
	}
	if fields == nil {
		return nil, ErrNotAnObject
	}
	return fields, nil
}

// canonical rewrites json.Number values to their reduced rational form.
func canonical(v any) any {
	switch t := v.(type) {
	case json.Number:
		r, ok := new(big.Rat).SetString(string(t))
		if !ok {
			return t
		}
		return json.Number(r.RatString())
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = canonical(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = canonical(val)
		}
		return out
	default:
		return v
	}
}

func encodeValue(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

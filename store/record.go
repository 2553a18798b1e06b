package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

// FromValue converts a decoded JSON value into a Record. Objects map directly;
// arrays become objects keyed by element index, matching how hierarchical
// stores persist arrays. Any other value is rejected.
func FromValue(v any) (Record, bool) {
	switch t := v.(type) {
	case map[string]any:
		return Record(t), true
	case []any:
		rec := make(Record, len(t))
		for i, elem := range t {
			rec[strconv.Itoa(i)] = elem
		}
		return rec, true
	default:
		return nil, false
	}
}

// Clone returns a shallow copy of rec. A nil record clones to an empty one.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	maps.Copy(out, r)
	return out
}

// Merge returns a copy of r with every field in fields written over it. A
// null field removes that field instead.
func (r Record) Merge(fields Record) Record {
	out := r.Clone()
	for name, v := range fields {
		if v == nil {
			delete(out, name)
			continue
		}
		out[name] = dropNulls(v)
	}
	return out
}

// WithoutNulls returns a copy of r with null fields left out, at any depth
// of nested objects. No backend persists a null field.
func (r Record) WithoutNulls() Record {
	return Record(nil).Merge(r)
}

// splitNulls separates an update into the fields to write and the sorted
// names of the fields to delete.
func splitNulls(fields Record) (set Record, removed []string) {
	set = make(Record, len(fields))
	for name, v := range fields {
		if v == nil {
			removed = append(removed, name)
			continue
		}
		set[name] = dropNulls(v)
	}
	slices.Sort(removed)
	return set, removed
}

func dropNulls(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			if elem != nil {
				out[k] = dropNulls(elem)
			}
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = dropNulls(elem)
		}
		return out
	default:
		return v
	}
}

// NormalizeNumbers replaces every json.Number in v with an int64 when it is
// an exact integer and a float64 otherwise. Maps and slices are rewritten in
// place. A number outside the float64 range is an error, since it cannot be
// encoded again.
func NormalizeNumbers(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, fmt.Errorf("number %s is out of range", t.String())
		}
		return f, nil
	case map[string]any:
		for k, elem := range t {
			n, err := NormalizeNumbers(elem)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}
		return t, nil
	case []any:
		for i, elem := range t {
			n, err := NormalizeNumbers(elem)
			if err != nil {
				return nil, err
			}
			t[i] = n
		}
		return t, nil
	default:
		return v, nil
	}
}

// decodeValue decodes one JSON document, keeping integers that a float64
// cannot hold exactly as int64.
func decodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return NormalizeNumbers(v)
}

// encodeFields JSON-encodes each top-level field separately, for backends
// that store one attribute or hash field per record field. Null fields are
// skipped.
func encodeFields(rec Record) (map[string]string, error) {
	out := make(map[string]string, len(rec))
	for name, v := range rec {
		if v == nil {
			continue
		}
		b, err := json.Marshal(dropNulls(v))
		if err != nil {
			return nil, fmt.Errorf("encode field %q: %w", name, err)
		}
		out[name] = string(b)
	}
	return out, nil
}

func decodeFields(fields map[string]string) (Record, error) {
	rec := make(Record, len(fields))
	for name, raw := range fields {
		v, err := decodeValue([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode field %q: %w", name, err)
		}
		rec[name] = v
	}
	return rec, nil
}

func encodeRecord(rec Record) ([]byte, error) {
	return json.Marshal(rec.WithoutNulls())
}

func decodeRecord(data []byte) (Record, error) {
	v, err := decodeValue(data)
	if err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if v == nil {
		return Record{}, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("decode record: not a JSON object")
	}
	return Record(obj), nil
}

func sortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.Key, b.Key)
	})
}

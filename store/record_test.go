package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestFromValue(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   Record
		wantOK bool
	}{
		{"object", map[string]any{"a": 1.0}, Record{"a": 1.0}, true},
		{"empty object", map[string]any{}, Record{}, true},
		{"array", []any{"x", true}, Record{"0": "x", "1": true}, true},
		{"empty array", []any{}, Record{}, true},
		{"string", "text", nil, false},
		{"number", 3.0, nil, false},
		{"null", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FromValue(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecord_Merge(t *testing.T) {
	base := Record{"a": 1, "b": 2}
	merged := base.Merge(Record{"b": 3, "c": 4})

	want := Record{"a": 1, "b": 3, "c": 4}
	if !reflect.DeepEqual(merged, want) {
		t.Errorf("merged = %v, want %v", merged, want)
	}
	if base["b"] != 2 {
		t.Error("Merge modified the receiver")
	}

	var empty Record
	if got := empty.Merge(Record{"x": 1}); !reflect.DeepEqual(got, Record{"x": 1}) {
		t.Errorf("nil.Merge = %v", got)
	}
}

func TestRecord_MergeNullDeletes(t *testing.T) {
	base := Record{"a": 1, "b": 2}
	got := base.Merge(Record{"b": nil, "c": map[string]any{"x": nil, "y": 1}})

	want := Record{"a": 1, "c": map[string]any{"y": 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("merged = %v, want %v", got, want)
	}
	if _, ok := base["b"]; !ok {
		t.Error("Merge modified the receiver")
	}
}

func TestRecord_WithoutNulls(t *testing.T) {
	rec := Record{"a": nil, "b": []any{map[string]any{"c": nil, "d": true}}, "e": "x"}
	got := rec.WithoutNulls()

	want := Record{"b": []any{map[string]any{"d": true}}, "e": "x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("WithoutNulls = %v, want %v", got, want)
	}
	if len(rec) != 3 {
		t.Error("WithoutNulls modified the receiver")
	}
}

func TestSplitNulls(t *testing.T) {
	set, removed := splitNulls(Record{"z": nil, "a": nil, "k": "v"})
	if !reflect.DeepEqual(set, Record{"k": "v"}) {
		t.Errorf("set = %v", set)
	}
	if !reflect.DeepEqual(removed, []string{"a", "z"}) {
		t.Errorf("removed = %v, want sorted null names", removed)
	}
}

func TestNormalizeNumbers(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    any
		wantErr bool
	}{
		{"small integer", json.Number("42"), int64(42), false},
		{"integer above 2^53", json.Number("9007199254740993"), int64(9007199254740993), false},
		{"fraction", json.Number("2.5"), 2.5, false},
		{"integral float", json.Number("1.0"), 1.0, false},
		{"beyond int64", json.Number("1e19"), 1e19, false},
		{"overflow", json.Number("1e400"), nil, true},
		{"negative overflow", json.Number("-1e400"), nil, true},
		{"nested overflow", map[string]any{"a": []any{json.Number("1e999")}}, nil, true},
		{"nested", map[string]any{"a": []any{json.Number("1"), "s"}}, map[string]any{"a": []any{int64(1), "s"}}, false},
		{"other", true, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeNumbers(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecodeRecord_LargeIntegers(t *testing.T) {
	rec, err := decodeRecord([]byte(`{"id":9007199254740993,"f":0.5,"n":{"m":12}}`))
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	want := Record{"id": int64(9007199254740993), "f": 0.5, "n": map[string]any{"m": int64(12)}}
	if !reflect.DeepEqual(rec, want) {
		t.Errorf("decodeRecord = %#v, want %#v", rec, want)
	}

	if _, err := decodeRecord([]byte(`[1]`)); err == nil {
		t.Error("expected error for a non-object document")
	}
}

func TestEncodeRecord_DropsNulls(t *testing.T) {
	data, err := encodeRecord(Record{"a": nil, "b": int64(1)})
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}
	if string(data) != `{"b":1}` {
		t.Errorf("encodeRecord = %s", data)
	}
	if data, _ := encodeRecord(nil); string(data) != "{}" {
		t.Errorf("encodeRecord(nil) = %s", data)
	}
}

func TestEncodeDecodeFields(t *testing.T) {
	rec := Record{"title": "a", "n": 2.5, "nested": map[string]any{"k": []any{int64(1)}}}
	enc, err := encodeFields(rec)
	if err != nil {
		t.Fatalf("encodeFields: %v", err)
	}
	if enc["title"] != `"a"` || enc["n"] != "2.5" {
		t.Errorf("unexpected encoding %v", enc)
	}
	dec, err := decodeFields(enc)
	if err != nil {
		t.Fatalf("decodeFields: %v", err)
	}
	if !reflect.DeepEqual(dec, rec) {
		t.Errorf("decoded %v, want %v", dec, rec)
	}

	if _, err := decodeFields(map[string]string{"bad": "{"}); err == nil {
		t.Error("expected error for malformed field")
	}

	enc, err = encodeFields(Record{"keep": "x", "drop": nil})
	if err != nil {
		t.Fatalf("encodeFields: %v", err)
	}
	if _, ok := enc["drop"]; ok || len(enc) != 1 {
		t.Errorf("null field should not be encoded: %v", enc)
	}
}

func TestDecodeRecord_Null(t *testing.T) {
	rec, err := decodeRecord([]byte("null"))
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if rec == nil || len(rec) != 0 {
		t.Errorf("decodeRecord(null) = %#v, want empty record", rec)
	}
}

func TestBackendError(t *testing.T) {
	cause := errors.New("connection refused")
	err := backendErr(OpInsert, "todos", "k1", cause)

	if err.Error() != "connection refused" {
		t.Errorf("Error() = %q, want backend message unchanged", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if !IsBackendFailure(fmt.Errorf("wrapped: %w", err)) {
		t.Error("IsBackendFailure should see through wrapping")
	}
	var be *BackendError
	if !errors.As(err, &be) || be.Op != OpInsert || be.Namespace != "todos" || be.Key != "k1" {
		t.Errorf("BackendError fields = %+v", be)
	}

	if backendErr(OpInsert, "todos", "", nil) != nil {
		t.Error("backendErr(nil) should be nil")
	}
	if IsBackendFailure(ErrNotFound) {
		t.Error("ErrNotFound is not a backend failure")
	}
}

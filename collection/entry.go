package collection

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/GoCodeAlone/todos/store"
)

// Entry is one item of a listed page: a record tagged with its key.
type Entry struct {
	Key    string
	Record store.Record
}

// MarshalJSON renders the entry as a single flat object with "key" first and
// the record's fields after it in lexical order. A record field named "key"
// replaces the generated key, the same as spreading the record over {key}.
func (e Entry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	write := func(v any) error {
		if err := enc.Encode(v); err != nil {
			return err
		}
		// Encode appends a newline.
		buf.Truncate(buf.Len() - 1)
		return nil
	}

	buf.WriteString(`{"key":`)
	var key any = e.Key
	if v, ok := e.Record["key"]; ok {
		key = v
	}
	if err := write(key); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(e.Record))
	for name := range e.Record {
		if name != "key" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	for _, name := range names {
		buf.WriteByte(',')
		if err := write(name); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := write(e.Record[name]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/GoCodeAlone/todos/store"
)

// DefaultMaxBodyBytes is the request body limit when none is configured.
const DefaultMaxBodyBytes = 100 << 10

// errBodyNotObject is returned for a body that is valid JSON but neither an
// object nor an array.
var errBodyNotObject = errors.New("o corpo deve ser um objeto ou array JSON")

// requestBody is a decoded JSON request body.
type requestBody struct {
	// Record is what gets stored. Arrays become index-keyed objects.
	Record store.Record
	// Echo is the submitted document, compacted, in submission order.
	Echo []byte
}

// readBody reads and decodes the request body. An empty body is treated as
// an empty object. A body over limit yields an *http.MaxBytesError.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) (requestBody, error) {
	var body requestBody
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return body, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return requestBody{Record: store.Record{}, Echo: []byte("{}")}, nil
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return body, err
	}
	if dec.More() {
		return body, fmt.Errorf("dados inesperados após o JSON na posição %d", dec.InputOffset())
	}

	v, err = store.NormalizeNumbers(v)
	if err != nil {
		return body, err
	}
	rec, ok := store.FromValue(v)
	if !ok {
		return body, errBodyNotObject
	}

	var echo bytes.Buffer
	if err := json.Compact(&echo, raw); err != nil {
		return body, err
	}
	return requestBody{Record: rec, Echo: echo.Bytes()}, nil
}

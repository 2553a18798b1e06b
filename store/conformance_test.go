package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conformanceOptions struct {
	// emptyRecordsVanish is set for backends that do not persist a record
	// with no fields.
	emptyRecordsVanish bool
	// floatNumbers is set for backends whose client decodes every number
	// as float64 before the store sees it.
	floatNumbers bool
}

var namespaceSeq atomic.Int64

// uniqueNamespace returns a namespace no other test in this run uses. It
// keeps to characters every backend accepts as a bucket or path name.
func uniqueNamespace(prefix string) string {
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano(), namespaceSeq.Add(1))
}

// runConformance exercises the CollectionStore contract against s.
func runConformance(t *testing.T, s CollectionStore, opts conformanceOptions) {
	t.Helper()
	ctx := context.Background()

	t.Run("empty namespace is not found", func(t *testing.T) {
		_, err := s.FetchAll(ctx, uniqueNamespace("empty"))
		require.ErrorIs(t, err, ErrNotFound)
		assert.False(t, IsBackendFailure(err))
	})

	t.Run("fetch returns insertion order", func(t *testing.T) {
		ns := uniqueNamespace("order")
		var keys []string
		for i := range 5 {
			key, err := s.Insert(ctx, ns, Record{"n": int64(i)})
			require.NoError(t, err)
			keys = append(keys, key)
		}

		entries, err := s.FetchAll(ctx, ns)
		require.NoError(t, err)
		require.Len(t, entries, 5)
		for i, e := range entries {
			assert.Equal(t, keys[i], e.Key)
			assert.Equal(t, Record{"n": int64(i)}, e.Record)
		}
	})

	t.Run("keys are distinct", func(t *testing.T) {
		ns := uniqueNamespace("distinct")
		seen := map[string]bool{}
		for range 20 {
			key, err := s.Insert(ctx, ns, Record{"x": true})
			require.NoError(t, err)
			require.NotEmpty(t, key)
			assert.False(t, seen[key], "duplicate key %s", key)
			seen[key] = true
		}
		entries, err := s.FetchAll(ctx, ns)
		require.NoError(t, err)
		assert.Len(t, entries, 20)
	})

	t.Run("nested values round trip", func(t *testing.T) {
		ns := uniqueNamespace("nested")
		rec := Record{
			"title": "buy milk",
			"done":  false,
			"tags":  map[string]any{"home": true},
			"count": int64(3),
		}
		_, err := s.Insert(ctx, ns, rec)
		require.NoError(t, err)

		entries, err := s.FetchAll(ctx, ns)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, rec, entries[0].Record)
	})

	t.Run("update merges fields", func(t *testing.T) {
		ns := uniqueNamespace("merge")
		key, err := s.Insert(ctx, ns, Record{"a": int64(1), "b": int64(2)})
		require.NoError(t, err)

		require.NoError(t, s.UpdateFields(ctx, ns, key, Record{"b": int64(3)}))

		entries, err := s.FetchAll(ctx, ns)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, key, entries[0].Key)
		assert.Equal(t, Record{"a": int64(1), "b": int64(3)}, entries[0].Record)
	})

	t.Run("null in update deletes the field", func(t *testing.T) {
		ns := uniqueNamespace("nulldel")
		key, err := s.Insert(ctx, ns, Record{"a": int64(1), "b": int64(2)})
		require.NoError(t, err)

		require.NoError(t, s.UpdateFields(ctx, ns, key, Record{"b": nil}))

		entries, err := s.FetchAll(ctx, ns)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, Record{"a": int64(1)}, entries[0].Record)

		require.NoError(t, s.UpdateFields(ctx, ns, key, Record{"a": nil, "c": "x"}))
		entries, err = s.FetchAll(ctx, ns)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, Record{"c": "x"}, entries[0].Record)
	})

	t.Run("insert drops null fields", func(t *testing.T) {
		ns := uniqueNamespace("nullins")
		_, err := s.Insert(ctx, ns, Record{
			"a":    int64(1),
			"gone": nil,
			"meta": map[string]any{"keep": true, "drop": nil},
		})
		require.NoError(t, err)

		entries, err := s.FetchAll(ctx, ns)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, Record{"a": int64(1), "meta": map[string]any{"keep": true}}, entries[0].Record)
	})

	t.Run("numbers keep their precision", func(t *testing.T) {
		if opts.floatNumbers {
			t.Skip("backend decodes numbers as float64")
		}
		ns := uniqueNamespace("numbers")
		rec := Record{"id": int64(9007199254740993), "ratio": 0.25, "neg": int64(-7)}
		_, err := s.Insert(ctx, ns, rec)
		require.NoError(t, err)

		entries, err := s.FetchAll(ctx, ns)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, rec, entries[0].Record)
	})

	t.Run("update creates missing key", func(t *testing.T) {
		ns := uniqueNamespace("upsert")
		require.NoError(t, s.UpdateFields(ctx, ns, "manual-key", Record{"title": "x"}))

		entries, err := s.FetchAll(ctx, ns)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "manual-key", entries[0].Key)
		assert.Equal(t, Record{"title": "x"}, entries[0].Record)
	})

	t.Run("remove deletes and is idempotent", func(t *testing.T) {
		ns := uniqueNamespace("remove")
		k1, err := s.Insert(ctx, ns, Record{"i": int64(1)})
		require.NoError(t, err)
		k2, err := s.Insert(ctx, ns, Record{"i": int64(2)})
		require.NoError(t, err)

		require.NoError(t, s.Remove(ctx, ns, k1))
		require.NoError(t, s.Remove(ctx, ns, k1))
		require.NoError(t, s.Remove(ctx, ns, "never-existed"))
		require.NoError(t, s.Remove(ctx, uniqueNamespace("absent"), "never-existed"))

		entries, err := s.FetchAll(ctx, ns)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, k2, entries[0].Key)

		require.NoError(t, s.Remove(ctx, ns, k2))
		_, err = s.FetchAll(ctx, ns)
		assert.True(t, errors.Is(err, ErrNotFound), "want ErrNotFound, got %v", err)
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		nsA, nsB := uniqueNamespace("iso_a"), uniqueNamespace("iso_b")
		_, err := s.Insert(ctx, nsA, Record{"owner": "a"})
		require.NoError(t, err)

		_, err = s.FetchAll(ctx, nsB)
		require.ErrorIs(t, err, ErrNotFound)

		entries, err := s.FetchAll(ctx, nsA)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "a", entries[0].Record["owner"])
	})

	t.Run("empty record", func(t *testing.T) {
		ns := uniqueNamespace("emptyrec")
		_, err := s.Insert(ctx, ns, Record{})
		require.NoError(t, err)

		entries, err := s.FetchAll(ctx, ns)
		if opts.emptyRecordsVanish {
			require.ErrorIs(t, err, ErrNotFound)
			return
		}
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Empty(t, entries[0].Record)
	})
}

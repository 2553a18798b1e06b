package tracing

import (
	"context"
	"errors"

	"github.com/GoCodeAlone/todos/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const storeTracerName = "todos.store"

// TracedStore starts a client span around every call to the wrapped store.
// ErrNotFound is an expected outcome and does not mark the span as failed.
type TracedStore struct {
	next    store.CollectionStore
	backend string
	tracer  trace.Tracer
}

// TraceStore wraps s. If tracer is nil, the global tracer provider is used.
func TraceStore(s store.CollectionStore, backend string, tracer trace.Tracer) *TracedStore {
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer(storeTracerName)
	}
	return &TracedStore{next: s, backend: backend, tracer: tracer}
}

func (s *TracedStore) start(ctx context.Context, op, namespace, key string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", s.backend),
		attribute.String("db.operation", op),
		attribute.String("todos.namespace", namespace),
	}
	if key != "" {
		attrs = append(attrs, attribute.String("todos.key", key))
	}
	return s.tracer.Start(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func finish(span trace.Span, err error) {
	defer span.End()
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (s *TracedStore) Insert(ctx context.Context, namespace string, rec store.Record) (string, error) {
	ctx, span := s.start(ctx, store.OpInsert, namespace, "")
	key, err := s.next.Insert(ctx, namespace, rec)
	if key != "" {
		span.SetAttributes(attribute.String("todos.key", key))
	}
	finish(span, err)
	return key, err
}

func (s *TracedStore) FetchAll(ctx context.Context, namespace string) ([]store.Entry, error) {
	ctx, span := s.start(ctx, store.OpFetchAll, namespace, "")
	entries, err := s.next.FetchAll(ctx, namespace)
	span.SetAttributes(attribute.Int("todos.records", len(entries)))
	finish(span, err)
	return entries, err
}

func (s *TracedStore) UpdateFields(ctx context.Context, namespace, key string, fields store.Record) error {
	ctx, span := s.start(ctx, store.OpUpdateFields, namespace, key)
	err := s.next.UpdateFields(ctx, namespace, key, fields)
	finish(span, err)
	return err
}

func (s *TracedStore) Remove(ctx context.Context, namespace, key string) error {
	ctx, span := s.start(ctx, store.OpRemove, namespace, key)
	err := s.next.Remove(ctx, namespace, key)
	finish(span, err)
	return err
}

func (s *TracedStore) Close() error { return s.next.Close() }

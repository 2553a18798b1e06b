package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/GoCodeAlone/todos/collection"
)

// RouteInstrumenter wraps the handler registered for a route pattern, for
// example to record per-route metrics.
type RouteInstrumenter interface {
	InstrumentRoute(pattern string, next http.Handler) http.Handler
}

// Config holds configuration for the API layer.
type Config struct {
	// MaxBodyBytes limits request bodies. Defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// CORSOrigins lists allowed origins. Empty or "*" allows any origin.
	CORSOrigins []string
	// RateLimiter, when set, limits requests per client IP.
	RateLimiter *RateLimiter
	// Instrumenter, when set, wraps every route handler.
	Instrumenter RouteInstrumenter
	// MetricsHandler, when set, is served at GET /metrics.
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// NewRouter creates an http.Handler serving the collection under
// "/<namespace>" plus the health and metrics endpoints.
func NewRouter(todos *collection.Collection, cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		var handler http.Handler = h
		if cfg.Instrumenter != nil {
			handler = cfg.Instrumenter.InstrumentRoute(pattern, handler)
		}
		mux.Handle(pattern, handler)
	}

	base := "/" + strings.Trim(todos.Namespace(), "/")
	h := NewTodoHandler(todos, cfg.MaxBodyBytes, logger)
	handle("POST "+base, h.Create)
	handle("GET "+base, h.List)
	handle("GET "+base+"/count", h.Count)
	handle("PUT "+base+"/{id}", h.Update)
	handle("DELETE "+base+"/{id}", h.Delete)

	mux.HandleFunc("GET /healthz", Healthz)
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	var handler http.Handler = mux
	if cfg.RateLimiter != nil {
		handler = cfg.RateLimiter.Middleware(handler)
	}
	handler = CORS(cfg.CORSOrigins)(handler)
	handler = Logging(logger)(handler)
	return RequestID(handler)
}

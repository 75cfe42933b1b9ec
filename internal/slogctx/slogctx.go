package slogctx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"libdb.so/ctxt"
)

// From returns a slog.Logger from the context. If no logger is found, the
// default logger is returned.
func From(ctx context.Context) *slog.Logger {
	logger, ok := ctxt.From[*slog.Logger](ctx)
	if ok {
		return logger
	}
	return slog.Default()
}

// With returns a copy of ctx carrying logger.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return ctxt.With(ctx, logger)
}

// Middleware injects a request-scoped logger into each request's context. The
// request ID set by [middleware.RequestID] is attached when present.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := logger.With(
				"method", r.Method,
				"path", r.URL.Path)
			if id := middleware.GetReqID(r.Context()); id != "" {
				l = l.With("request_id", id)
			}
			next.ServeHTTP(w, r.WithContext(With(r.Context(), l)))
		})
	}
}

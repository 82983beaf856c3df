// Package shield provides reusable HTTP security middleware. This is a
// trimmed copy of the HOROS-ecosystem shield package, kept to the pieces
// that apply to a single-binary, no-SQL-store service: security headers,
// request tracing, and HEAD method handling. Rate limiting and maintenance
// mode were SQL-backed and built for the multi-tenant admin surface; they
// have no analogue here.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack() {
//	    r.Use(mw)
//	}
package shield

import "net/http"

type contextKey string

const (
	// LoggerKey is the context key for the per-request structured logger.
	LoggerKey contextKey = "shield_logger"

	// RequestIDKey is the context key for the per-request trace ID.
	RequestIDKey contextKey = "shield_request_id"
)

// DefaultStack returns the standard middleware stack.
// Ordered: HeadToGet → SecurityHeaders → TraceID.
func DefaultStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		TraceID,
	}
}

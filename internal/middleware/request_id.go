package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID on both requests and responses.
const RequestIDHeader = "X-Request-ID"

// requestIDKey is the context key for the request ID
type requestIDKey struct{}

// WithRequestID returns middleware that assigns every request an ID. An ID
// supplied by the client on the request header is kept so callers can
// correlate retries; otherwise a new one is generated. The ID is echoed on
// the response and recorded with every analytics event.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext retrieves the request ID, or "" when the middleware
// did not run.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// RequestIDFromRequest is a convenience function to get the request ID from an HTTP request
func RequestIDFromRequest(r *http.Request) string {
	return RequestIDFromContext(r.Context())
}

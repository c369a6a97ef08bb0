package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// HeaderRequestID carries the correlation id of an outgoing request.
const HeaderRequestID = "X-Request-Id"

type requestIDKey struct{}

// WithRequestID records id on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the correlation id recorded on ctx.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// EnsureRequestID returns req unchanged when it already has an id header; otherwise a
// clone carrying an id taken from its context or freshly generated.
func EnsureRequestID(req *http.Request) (*http.Request, string) {
	if id := req.Header.Get(HeaderRequestID); id != "" {
		if _, ok := RequestIDFromContext(req.Context()); ok {
			return req, id
		}
		return req.WithContext(WithRequestID(req.Context(), id)), id
	}

	id, ok := RequestIDFromContext(req.Context())
	if !ok {
		id = uuid.NewString()
	}
	out := req.Clone(WithRequestID(req.Context(), id))
	out.Header.Set(HeaderRequestID, id)
	return out, id
}

// RequestID makes sure every request leaves with an X-Request-Id header.
func RequestID() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			req, _ = EnsureRequestID(req)
			return next.RoundTrip(req)
		})
	}
}

// Package middleware provides http.RoundTripper middlewares for outgoing requests made
// by the session client.
//
// # Middlewares
//
//   - [RequestID]: ensures an X-Request-Id correlation header and records it on the context.
//   - [Logging]: one slog record per round trip, never including credentials.
//   - [Timeout]: bounds a round trip, including reading the response body.
//
// [Chain] composes them over a base transport. The session Transport sits on top of the
// chain, so retries it performs pass through every middleware again.
//
// # Architecture boundaries
//
// This package decorates transport behavior. It does NOT read or mutate session state.
//
// # What this package must NOT do
//
//   - Attach, refresh, or inspect credentials.
//   - Retry requests.
//   - Log header values or bodies.
package middleware

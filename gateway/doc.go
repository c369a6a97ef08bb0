// Package gateway is a thin HTTP client for the remote identity service: login,
// registration, token refresh, current-user lookup, profile and password changes,
// account deletion and logout.
//
// # Channels
//
// A [Client] holds two [Doer]s. The bare channel is never intercepted and carries
// login, register, refresh, current-user lookup and logout. The authorized channel is
// normally the session's interceptor pipeline and carries the calls that need a live
// session (profile update, password change, account deletion). Refresh always uses the
// bare channel so a rejected refresh can never re-enter the pipeline.
//
// # Architecture boundaries
//
// Every operation performs exactly one round trip. There is no retry, no token storage
// and no session state here; failures are classified into the error taxonomy in
// errors.go and returned.
//
// # What this package must NOT do
//
//   - Retry requests or refresh tokens on its own.
//   - Import goSession or credential.
//   - Log request or response bodies.
package gateway

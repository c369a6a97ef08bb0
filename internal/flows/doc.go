// Package flows contains pure-function orchestrators for the Manager's multi-step
// operations.
//
// Each flow function (RunHydrate, RunRefresh) accepts a typed dependency struct and
// returns a result describing what happened, without touching session state. The
// Manager commits the result under its own lock, which keeps the supersession rules in
// one place and lets the flows be tested with plain function fakes.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the credential store and the identity gateway.
// They do NOT own any of these resources; ownership stays with the Manager.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency functions.
package flows

// Package internal groups helpers that are private to goSession.
//
// # Sub-packages
//
//   - dispatch: async event relay (Dispatcher + Sink) used by audit and broadcast
//   - flows: pure-function orchestrators for hydrate and refresh
//   - identitytest: in-process fake identity service for tests and the load tool
//   - limiters: login cooldown honoring server Retry-After windows
//   - redact: masking of emails, tokens and body snippets
//
// # What this package must NOT do
//
//   - Export types that appear in the public goSession API.
//   - Be imported by any package outside the goSession module.
package internal

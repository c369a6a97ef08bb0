// Package credential implements the persisted half of a client session: the current
// access/refresh token pair and the cached user profile.
//
// # Backends
//
// [MemoryStore] keeps the record in process memory, [RedisStore] keeps one key per field
// under a scoped prefix, and [SQLiteStore] keeps the record in a local database file so it
// survives restarts.
//
// # Architecture boundaries
//
// This package owns persistence only. It never decides when a record is written; the
// session manager in the root package is the single writer.
//
// # What this package must NOT do
//
//   - Perform network calls to the identity service.
//   - Import goSession or gateway.
//   - Log token values.
package credential

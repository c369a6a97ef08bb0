// Package limiters holds the client-side login cooldown that honors a server-provided
// Retry-After window.
//
// # Limiters
//
//   - [MemoryCooldown]: process-local window.
//   - [RedisCooldown]: window shared by every client using the same Redis key, so a
//     restarted process keeps waiting.
//
// All cooldowns are nil-safe: calling any method on a nil receiver reports no window.
//
// # Architecture boundaries
//
// The window length always comes from the identity service. This package only remembers
// it; the Manager decides when to consult it.
//
// # What this package must NOT do
//
//   - Import goSession or any sibling internal package.
//   - Invent throttling policy of its own.
package limiters

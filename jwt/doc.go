// Package jwt inspects access tokens on the client side.
//
// The session client never holds signing keys, so nothing here verifies a signature.
// [Peek] only reads the registered claims so the request pipeline can refresh a token
// shortly before it expires instead of waiting for a 401. Opaque (non-JWT) tokens are
// reported with [ErrNotJWT] and callers fall back to reactive refresh.
package jwt

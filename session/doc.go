// Package session provides Redis-backed persistence for user sessions and
// their refresh tokens.
//
// # Layout
//
// Each session is a Redis hash holding the device binding, the current
// access token id, the sha256 of the current refresh secret and the access,
// refresh and quick-login deadlines. A per-account set indexes the session
// ids of one account.
//
// # Rotation
//
// [Store.Rotate] swaps the refresh hash with a Lua compare-and-set, so a
// refresh secret validates at most once and concurrent refreshes of the
// same token have a single winner.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] model. It does NOT parse
// tokens or decide quick-login policy. Plaintext secrets are never stored.
package session

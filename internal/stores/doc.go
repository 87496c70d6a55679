// Package stores provides the short-lived Redis records of the enrollment
// flow: verification codes keyed by email and registration sessions keyed by
// an opaque token with an email index.
//
// # Design
//
// Records are Redis hashes with a TTL plus an explicit expires_at field that
// is compared against the caller's clock, so expiry follows the Engine clock
// rather than Redis wall time. Check-and-consume runs in Lua so a record can
// be consumed at most once. Only sha256 hashes of codes are stored.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for transient
// enrollment records. It does NOT generate codes, enforce rate limits or
// make enrollment decisions.
package stores

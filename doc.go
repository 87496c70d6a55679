// Package goEnroll provides QR-initiated account enrollment and the session
// lifecycle that follows it: password login, quick login on a known device,
// refresh rotation, logout and saved-account management.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goEnroll is the public surface. It exposes [Engine], [Builder], [Config], the account and
// device store contracts ([AccountStore], [DeviceRegistry]) and the collaborators it calls
// out to ([IdentityGateway], [Notifier]). Ephemeral state (verification codes, registration
// sessions, user sessions and rate counters) lives in Redis behind internal stores and is
// never exported.
//
// # Enrollment
//
// A scan of the enrollment QR code resolves the person through the legacy identity
// gateway and applies one decision per account state:
//
//   - no account: start email verification
//   - account mid-enrollment: resume email verification
//   - account logged out: reset the account, then start email verification
//   - account claimed: reject with [ErrAlreadyRegistered]
//
// Email verification is followed by legacy password confirmation and local password
// setup, each gated by a short-lived registration session.
//
// # Sessions
//
// Access and refresh tokens are JWTs bound to one server-side session. Refresh rotates the
// session's refresh secret with a compare-and-set, so a replayed refresh token fails.
// Quick login reuses a qualifying session for a limited time but requires a password
// login once the re-authentication window since the last login has elapsed.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is allocation-only
//     until Build).
//   - Import any sub-package that re-imports goEnroll (no import cycles).
package goEnroll

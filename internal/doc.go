// Package internal contains helpers private to goEnroll: random identifiers,
// numeric codes and secret hashing.
//
// # Sub-packages
//
//   - appconfig: binary configuration and backend wiring
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure policy decisions used by the Engine and the account stores
//   - qr: QR payload decoding
//   - rate: Redis-backed fixed-window throttling
//   - stores: verification code and registration session stores
package internal

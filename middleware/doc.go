// Package middleware exposes HTTP middleware built on goEnroll.Engine.
//
// # Guards
//
//   - [Guard]: bearer access token, validated through Engine.ValidateAccess.
//   - [ClientMetadata]: client IP and user agent onto the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT implement
// authentication logic itself; all decisions are delegated to Engine.ValidateAccess.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from Engine.ValidateAccess.
package middleware

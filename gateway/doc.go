// Package gateway provides goEnroll.IdentityGateway adapters for the legacy
// identity system: an HTTP client and a static in-memory directory.
//
// Both normalize identity references with goEnroll.CanonicalRef, so the
// engine and stores only ever see the canonical form.
package gateway

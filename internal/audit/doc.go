// Package audit implements async event dispatching for enrollment and
// session operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, slog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: audit record with timestamp, type, account, session, device and metadata.
//
// This package owns event buffering and sink delivery. It does NOT decide
// which events to emit.
package audit

package goEnroll

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/goEnroll/internal/audit"
)

// AuditEvent is one audit record emitted by the Engine.
type AuditEvent = audit.Event

// AuditSink receives audit events from the async dispatcher.
type AuditSink = audit.Sink

// NoOpSink discards every event.
type NoOpSink = audit.NoOpSink

// ChannelSink forwards events to a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON document per line.
type JSONWriterSink = audit.JSONWriterSink

// SlogSink logs events through log/slog.
type SlogSink = audit.SlogSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewSlogSink returns a sink logging through logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return audit.NewSlogSink(logger)
}

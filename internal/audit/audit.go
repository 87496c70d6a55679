package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Event is one audit record of an enrollment or session operation.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	AccountID string            `json:"account_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	DeviceID  string            `json:"device_id,omitempty"`
	Email     string            `json:"email,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// SlogSink logs each event as a structured record at Info level, or Warn
// for failed operations.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Emit(ctx context.Context, event Event) {
	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("event", event.EventType),
		slog.Bool("success", event.Success),
		slog.Time("at", event.Timestamp),
	}
	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.DeviceID != "" {
		attrs = append(attrs, slog.String("device_id", event.DeviceID))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.String("meta."+k, v))
	}

	s.logger.LogAttrs(ctx, level, "goEnroll: audit", attrs...)
}

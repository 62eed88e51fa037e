package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
)

// Sink receives flushed events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink forwards events to a buffered channel.
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

// JSONWriterSink writes one JSON document per line.
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

// LogMarker tags audit records written by LogSink.
const LogMarker = "SEALGATE_AUDIT"

// LogSink writes events through a structured logger at Info level.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("marker", LogMarker)}
}

func (s *LogSink) Emit(ctx context.Context, e Event) {
	attrs := []any{
		"event_name", e.Name,
		"event_type", e.Type,
		"request_id", e.RequestID,
		"service_uuid", e.ServiceUUID,
	}
	if e.ClientName != "" {
		attrs = append(attrs, "client_name", e.ClientName, "service_name", e.ServiceName)
	}
	if e.Type != EventStart {
		attrs = append(attrs, "duration_ms", e.Duration.Milliseconds())
	}
	if e.StatusCode != 0 {
		attrs = append(attrs, "status_code", e.StatusCode)
	}
	if e.ErrorCode != "" {
		attrs = append(attrs, "error_code", e.ErrorCode, "error_message", e.ErrorMessage)
	}
	if e.Params.Len() > 0 {
		attrs = append(attrs, "params", e.Params)
	}
	s.logger.InfoContext(ctx, "Audit event", attrs...)
}

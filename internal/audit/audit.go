package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Event is one security-relevant occurrence. ActorID is who acted and
// TargetUserID whose account it concerns; they differ for admin actions.
type Event struct {
	Timestamp    time.Time         `json:"timestamp"`
	Type         string            `json:"type"`
	ActorID      string            `json:"actor_id,omitempty"`
	TargetUserID string            `json:"target_user_id,omitempty"`
	IP           string            `json:"ip,omitempty"`
	Success      bool              `json:"success"`
	Error        string            `json:"error,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
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
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(data)
}

// SlogSink writes each event as a structured log record.
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

	attrs := []any{
		"type", event.Type,
		"success", event.Success,
	}
	if event.ActorID != "" {
		attrs = append(attrs, "actor_id", event.ActorID)
	}
	if event.TargetUserID != "" {
		attrs = append(attrs, "target_user_id", event.TargetUserID)
	}
	if event.IP != "" {
		attrs = append(attrs, "ip", event.IP)
	}
	if event.Error != "" {
		attrs = append(attrs, "error", event.Error)
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, "meta."+k, v)
	}
	s.logger.Log(ctx, level, "audit", attrs...)
}

// SafeEmit delivers event and converts a sink panic into a call to onPanic.
// Audit is best effort and must never abort the operation that produced it.
func SafeEmit(ctx context.Context, sink Sink, event Event, onPanic func(any)) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(r)
		}
	}()
	sink.Emit(ctx, event)
}

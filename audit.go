package campusAuth

import (
	"io"
	"log/slog"

	internalaudit "github.com/MrEthical07/campusAuth/internal/audit"
)

// AuditEvent is one security-relevant occurrence handed to an AuditSink.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events. Emit must not block for long; panics are
// recovered by the engine.
type AuditSink = internalaudit.Sink

type NoOpSink = internalaudit.NoOpSink

type ChannelSink = internalaudit.ChannelSink

type JSONWriterSink = internalaudit.JSONWriterSink

type SlogSink = internalaudit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink logs each event through logger, or slog.Default when nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

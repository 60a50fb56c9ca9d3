package event

import (
	"context"
	"log/slog"

	"github.com/simp-lee/rbacflow/internal/domain"
)

// LogSink writes every event to a structured logger.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogSink creates a LogSink logging at level.
func NewLogSink(logger *slog.Logger, level slog.Level) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger, level: level}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, ev domain.Event) error {
	attrs := []slog.Attr{
		slog.String("event_type", string(ev.Type)),
		slog.String("entity_type", ev.EntityType),
		slog.String("entity_id", ev.EntityID),
		slog.Time("timestamp", ev.Timestamp),
	}
	if ev.UserID != nil {
		attrs = append(attrs, slog.String("user_id", *ev.UserID))
	}
	s.logger.LogAttrs(ctx, s.level, "event", attrs...)
	return nil
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, ev domain.Event) error
}

func (f SinkFunc) Name() string { return f.SinkName }

func (f SinkFunc) Deliver(ctx context.Context, ev domain.Event) error {
	return f.Fn(ctx, ev)
}

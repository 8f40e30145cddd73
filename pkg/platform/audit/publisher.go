package audit

import (
	"context"
	"log/slog"
	"time"
)

// Publisher delivers audit events to a sink. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// SlogPublisher writes audit events to a structured logger. It is the default
// sink when no external audit pipeline is configured.
type SlogPublisher struct {
	logger *slog.Logger
	clock  func() time.Time
}

func NewSlogPublisher(logger *slog.Logger) *SlogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogPublisher{logger: logger, clock: time.Now}
}

func (p *SlogPublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.clock()
	}
	if event.Category == "" {
		event.Category = AuditEvent(event.Action).Category()
	}

	attrs := []any{
		"log_type", "audit",
		"category", string(event.Category),
		"action", event.Action,
		"timestamp", event.Timestamp,
	}
	if event.UserID != 0 {
		attrs = append(attrs, "user_id", event.UserID.String())
	}
	if event.Subject != "" {
		attrs = append(attrs, "subject", event.Subject)
	}
	if event.Reason != "" {
		attrs = append(attrs, "reason", event.Reason)
	}
	if event.ActorID != "" {
		attrs = append(attrs, "actor_id", event.ActorID)
	}

	p.logger.InfoContext(ctx, event.Action, attrs...)
	return nil
}

// NopPublisher discards all events. Useful in tests.
type NopPublisher struct{}

func (NopPublisher) Emit(context.Context, Event) error { return nil }

// ChannelPublisher hands events to a background worker over a buffered
// channel. Emit never blocks the request path: when the buffer is full the
// event is dropped and a warning logged.
type ChannelPublisher struct {
	outbox chan<- Event
	logger *slog.Logger
	clock  func() time.Time
}

func NewChannelPublisher(outbox chan<- Event, logger *slog.Logger) *ChannelPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelPublisher{outbox: outbox, logger: logger, clock: time.Now}
}

func (p *ChannelPublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.clock()
	}
	if event.Category == "" {
		event.Category = AuditEvent(event.Action).Category()
	}

	select {
	case p.outbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit buffer full, event dropped", "action", event.Action)
	}
	return nil
}

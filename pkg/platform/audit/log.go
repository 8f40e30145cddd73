package audit

import (
	"context"
	"log/slog"
)

// Log is a shared helper for logging audit events across services.
// It logs to both the structured logger and the audit publisher if available.
func Log(ctx context.Context, logger *slog.Logger, publisher Publisher, event Event, attrs ...any) {
	args := append(attrs,
		"event", event.Action,
		"log_type", "audit",
	)

	if logger != nil {
		logger.InfoContext(ctx, event.Action, args...)
	}

	if publisher == nil {
		return
	}
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}

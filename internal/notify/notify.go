// Package notify delivers user-facing notifications. Components hand
// warnings and failures to a Notifier instead of logging them directly,
// so the UI surface decides how to present them.
package notify

import (
	"context"
	"log/slog"
)

// Level classifies a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notifier receives user-facing notifications. Implementations must be
// safe for concurrent use and must not block the caller.
type Notifier interface {
	Notify(ctx context.Context, level Level, message string)
}

// LogNotifier writes notifications to a structured logger. It is the
// default sink when no UI surface is attached.
type LogNotifier struct {
	log *slog.Logger
}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a notifier backed by log. A nil log uses the
// default logger.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, level Level, message string) {
	switch level {
	case LevelWarn:
		n.log.WarnContext(ctx, message)
	case LevelError:
		n.log.ErrorContext(ctx, message)
	default:
		n.log.InfoContext(ctx, message)
	}
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, level Level, message string)

func (f Func) Notify(ctx context.Context, level Level, message string) {
	f(ctx, level, message)
}

package assistant

import (
	"context"
	"log/slog"
)

// Variant is the visual weight of a notification.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notification is a transient operator-facing message, separate from
// the conversation.
type Notification struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Variant     Variant `json:"variant"`
}

// Notifier delivers notifications. Delivery is best effort; Notify
// must not block the turn for long.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs n at warn level for destructive notifications and info
// level otherwise.
func (l LogNotifier) Notify(ctx context.Context, n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if n.Variant == VariantDestructive {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "notification",
		"title", n.Title,
		"description", n.Description,
		"variant", string(n.Variant),
	)
}

// Notifiers fans a notification out to several notifiers in order.
type Notifiers []Notifier

// Notify delivers n to every non-nil notifier.
func (ns Notifiers) Notify(ctx context.Context, n Notification) {
	for _, x := range ns {
		if x != nil {
			x.Notify(ctx, n)
		}
	}
}

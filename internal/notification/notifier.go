// Package notification delivers text to chat destinations and renders
// signals into messages.
package notification

import (
	"context"
	"log/slog"
)

// Notifier delivers text to a destination. It reports whether the text was
// delivered and never returns transport errors.
type Notifier interface {
	Send(ctx context.Context, chatID, text string) bool
}

// LogNotifier logs messages instead of delivering them. It is used when no
// chat credentials are configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, chatID, text string) bool {
	slog.Info("notification not delivered (disabled)",
		slog.String("component", "notify"),
		slog.String("chat_id", chatID),
		slog.Int("chars", len(text)),
	)
	return false
}

// Multi sends to every notifier and reports delivery if any delivered.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, chatID, text string) bool {
	delivered := false
	for _, n := range m {
		if n.Send(ctx, chatID, text) {
			delivered = true
		}
	}
	return delivered
}

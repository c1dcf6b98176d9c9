// ABOUTME: Best-effort fan-out of notification events to sets of connections
// ABOUTME: No retry, no durability; the persisted message is the durable fallback

package chat

import (
	"log/slog"
)

// Notifier pushes events to a set of connections. Delivery is fire and
// forget: a recipient that misses the push still finds the message in their
// persisted history on the next thread open.
type Notifier struct {
	sender Sender
	logger *slog.Logger
}

// NewNotifier creates a Notifier. Pass nil logger for default.
func NewNotifier(sender Sender, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		sender: sender,
		logger: logger.With("component", "notifier"),
	}
}

// Notify delivers the event to each connection. Never blocks and never
// returns an error; the underlying sender drops on full buffers.
func (n *Notifier) Notify(connectionIDs []string, event string, payload any) {
	for _, id := range connectionIDs {
		n.sender.SendToConnection(id, event, payload)
	}

	n.logger.Debug("notification dispatched",
		"event", event,
		"connections", len(connectionIDs),
	)
}

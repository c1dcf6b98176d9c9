// ABOUTME: Presence session handler bridging the transport layer and the Tracker.
// ABOUTME: Broadcasts online/offline transitions and serves the online-users snapshot.

package presence

import (
	"log/slog"
)

// Event names pushed to clients.
const (
	EventUserOnline  = "UserIsOnline"
	EventUserOffline = "UserIsOffline"
	EventOnlineUsers = "GetOnlineUsers"
)

// Sender delivers events to live transport connections. Implementations must
// be non-blocking; delivery is best-effort.
type Sender interface {
	// SendToConnection delivers an event to a single connection.
	SendToConnection(connectionID, event string, payload any)
	// BroadcastExceptUser delivers an event to every connection not owned by
	// the given user.
	BroadcastExceptUser(username, event string, payload any)
}

// Hub handles presence session lifecycle. The transport layer calls OnConnect
// when a presence session opens and OnDisconnect when it closes; the Hub
// updates the Tracker and broadcasts transitions.
type Hub struct {
	tracker *Tracker
	sender  Sender
	logger  *slog.Logger
}

// NewHub creates a presence Hub. Pass nil logger for default.
func NewHub(tracker *Tracker, sender Sender, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		tracker: tracker,
		sender:  sender,
		logger:  logger.With("component", "presence"),
	}
}

// OnConnect registers the connection. If the user just came online the
// transition is broadcast to everyone else; the caller always receives the
// current online-users snapshot. The broadcast happens strictly after the
// registry mutation, so observers never see an online event for a user whose
// connection is not yet recorded.
func (h *Hub) OnConnect(username, connectionID string) {
	wasFirst := h.tracker.Connect(username, connectionID)
	if wasFirst {
		h.sender.BroadcastExceptUser(username, EventUserOnline, username)
	}

	h.sender.SendToConnection(connectionID, EventOnlineUsers, h.tracker.OnlineUsers())

	h.logger.Info("presence connected",
		"username", username,
		"connection_id", connectionID,
		"went_online", wasFirst,
	)
}

// OnDisconnect removes the connection. If it was the user's last, the offline
// transition is broadcast to everyone else. Safe to call more than once per
// connection.
func (h *Hub) OnDisconnect(username, connectionID string) {
	wasLast := h.tracker.Disconnect(username, connectionID)
	if wasLast {
		h.sender.BroadcastExceptUser(username, EventUserOffline, username)
	}

	h.logger.Info("presence disconnected",
		"username", username,
		"connection_id", connectionID,
		"went_offline", wasLast,
	)
}

// Tracker exposes the underlying registry for collaborators that need
// connection lookups, such as the notification path in the chat hub.
func (h *Hub) Tracker() *Tracker {
	return h.tracker
}

// ABOUTME: Conversation session handler: group join/leave and the send-message protocol
// ABOUTME: Decides read receipts and fallback notifications from live group membership

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meetline/meetline/internal/store"
)

// Event names pushed to clients.
const (
	EventUpdatedGroup       = "UpdatedGroup"
	EventMessageThread      = "ReceiveMessageThread"
	EventNewMessage         = "NewMessage"
	EventNewMessageReceived = "NewMessageReceived"
)

// ErrSelfMessage indicates a user tried to message themselves.
var ErrSelfMessage = errors.New("you cannot send messages to yourself")

// ErrRecipientNotFound indicates the addressed recipient does not exist.
var ErrRecipientNotFound = errors.New("recipient not found")

// Sender delivers events to live transport connections. Implementations must
// be non-blocking; delivery is best-effort.
type Sender interface {
	SendToConnection(connectionID, event string, payload any)
}

// ChatStore defines what the hub needs from persistence.
type ChatStore interface {
	GetUserByName(ctx context.Context, username string) (*store.User, error)
	CreateMessage(ctx context.Context, msg *store.Message, groupName string) (bool, error)
	GetMessageThread(ctx context.Context, currentUser, otherUser string) ([]*store.Message, error)
	JoinGroup(ctx context.Context, groupName, username, connectionID string) ([]store.GroupConnection, error)
	LeaveGroup(ctx context.Context, connectionID string) (string, []store.GroupConnection, error)
	GroupConnections(ctx context.Context, groupName string) ([]store.GroupConnection, error)
}

// PresenceLookup resolves a user's live connections outside any group, used
// for the fallback new-message notification.
type PresenceLookup interface {
	ConnectionsFor(username string) []string
}

// GroupView is the wire representation of a conversation group's membership.
type GroupView struct {
	Name    string   `json:"name"`
	Members []Member `json:"members"`
}

// Member is one joined connection within a group view.
type Member struct {
	ConnectionID string `json:"connectionId"`
	Username     string `json:"username"`
}

// NewMessageNotice is the payload of the fallback notification sent to a
// recipient's other connections.
type NewMessageNotice struct {
	Username string `json:"username"`
}

// SendRequest is a client's request to send a message.
type SendRequest struct {
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
}

// MessageHub handles conversation sessions. Each session moves through
// Connected -> JoinedGroup -> Disconnected: OnOpen joins the two-party group
// and replays history, SendMessage runs the delivery protocol, OnClose leaves
// the group.
type MessageHub struct {
	store    ChatStore
	presence PresenceLookup
	sender   Sender
	notifier *Notifier
	logger   *slog.Logger
}

// NewMessageHub creates a MessageHub. Pass nil logger for default.
func NewMessageHub(chatStore ChatStore, presence PresenceLookup, sender Sender, logger *slog.Logger) *MessageHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageHub{
		store:    chatStore,
		presence: presence,
		sender:   sender,
		notifier: NewNotifier(sender, logger),
		logger:   logger.With("component", "chat"),
	}
}

// OnOpen joins the session's connection to the conversation group for
// (username, otherUser), broadcasts the updated membership to the whole
// group, and replays the message thread to the caller. The thread fetch marks
// every unread message addressed to the caller as read in one batch.
//
// A persistence failure here is fatal for the session: the client cannot
// proceed without a registered group membership.
func (h *MessageHub) OnOpen(ctx context.Context, username, otherUser, connectionID string) error {
	groupName := GroupKey(username, otherUser)

	members, err := h.store.JoinGroup(ctx, groupName, username, connectionID)
	if err != nil {
		return fmt.Errorf("joining group %s: %w", groupName, err)
	}

	h.broadcastToGroup(members, EventUpdatedGroup, groupView(groupName, members))

	thread, err := h.store.GetMessageThread(ctx, username, otherUser)
	if err != nil {
		// The session is torn down without ever reaching OnClose, so the
		// join must be undone here. A membership row left behind would keep
		// stamping this user's incoming messages read with no live
		// connection to replay them.
		if _, remaining, leaveErr := h.store.LeaveGroup(ctx, connectionID); leaveErr != nil {
			h.logger.Error("failed to leave group after thread load failure",
				"group", groupName,
				"connection_id", connectionID,
				"error", leaveErr,
			)
		} else {
			h.broadcastToGroup(remaining, EventUpdatedGroup, groupView(groupName, remaining))
		}
		return fmt.Errorf("loading message thread: %w", err)
	}

	h.sender.SendToConnection(connectionID, EventMessageThread, messageViews(thread))

	h.logger.Info("conversation opened",
		"group", groupName,
		"username", username,
		"connection_id", connectionID,
		"history", len(thread),
	)
	return nil
}

// OnClose removes the connection from its conversation group, if any, and
// broadcasts the updated membership to the remaining members. Calling it for
// a connection that never joined, or twice, is a no-op.
func (h *MessageHub) OnClose(ctx context.Context, connectionID string) {
	groupName, remaining, err := h.store.LeaveGroup(ctx, connectionID)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		h.logger.Error("failed to leave group", "connection_id", connectionID, "error", err)
		return
	}

	h.broadcastToGroup(remaining, EventUpdatedGroup, groupView(groupName, remaining))

	h.logger.Info("conversation closed",
		"group", groupName,
		"connection_id", connectionID,
		"remaining", len(remaining),
	)
}

// SendMessage runs the delivery protocol for one message from sender:
//
//  1. Self-messaging and unknown recipients are rejected before any state
//     changes.
//  2. The message is persisted; the store stamps it read in the same
//     transaction when the recipient has a connection joined to this
//     conversation's group.
//  3. When the recipient is elsewhere, their other live connections get a
//     best-effort notification.
//  4. The saved message is broadcast to every joined connection.
//
// The returned message carries the read timestamp when one was stamped.
func (h *MessageHub) SendMessage(ctx context.Context, sender string, req SendRequest) (*store.Message, error) {
	recipient := strings.ToLower(req.Recipient)
	if sender == recipient {
		return nil, ErrSelfMessage
	}

	if _, err := h.store.GetUserByName(ctx, recipient); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("resolving recipient: %w", err)
	}

	groupName := GroupKey(sender, recipient)
	msg := &store.Message{
		ID:        uuid.New().String(),
		Sender:    sender,
		Recipient: recipient,
		Content:   req.Content,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	recipientInGroup, err := h.store.CreateMessage(ctx, msg, groupName)
	if err != nil {
		return nil, fmt.Errorf("saving message: %w", err)
	}

	if !recipientInGroup {
		if conns := h.presence.ConnectionsFor(recipient); len(conns) > 0 {
			h.notifier.Notify(conns, EventNewMessageReceived, NewMessageNotice{Username: sender})
		}
	}

	// Live delivery to the group. The message is already durable; a failed
	// membership read costs the live push, not the send.
	members, err := h.store.GroupConnections(ctx, groupName)
	if err != nil {
		h.logger.Error("failed to load group for broadcast", "group", groupName, "error", err)
	} else {
		h.broadcastToGroup(members, EventNewMessage, messageView(msg))
	}

	h.logger.Debug("message sent",
		"id", msg.ID,
		"group", groupName,
		"read_on_arrival", recipientInGroup,
	)
	return msg, nil
}

func (h *MessageHub) broadcastToGroup(members []store.GroupConnection, event string, payload any) {
	for _, member := range members {
		h.sender.SendToConnection(member.ConnectionID, event, payload)
	}
}

func groupView(name string, members []store.GroupConnection) GroupView {
	view := GroupView{
		Name:    name,
		Members: make([]Member, 0, len(members)),
	}
	for _, member := range members {
		view.Members = append(view.Members, Member{
			ConnectionID: member.ConnectionID,
			Username:     member.Username,
		})
	}
	return view
}

// MessageView is the wire representation of a message.
type MessageView struct {
	ID        string     `json:"id"`
	Sender    string     `json:"sender"`
	Recipient string     `json:"recipient"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}

func messageView(msg *store.Message) MessageView {
	return MessageView{
		ID:        msg.ID,
		Sender:    msg.Sender,
		Recipient: msg.Recipient,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		ReadAt:    msg.ReadAt,
	}
}

func messageViews(msgs []*store.Message) []MessageView {
	views := make([]MessageView, 0, len(msgs))
	for _, msg := range msgs {
		views = append(views, messageView(msg))
	}
	return views
}

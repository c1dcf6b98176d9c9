// ABOUTME: Store interface and data types for meetline persistence
// ABOUTME: Defines User, Message, GroupConnection structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateUser is returned when registering a username that already exists
var ErrDuplicateUser = errors.New("user already exists")

// ErrNotParticipant is returned when a caller tries to delete a message they
// are neither sender nor recipient of
var ErrNotParticipant = errors.New("not a participant of this message")

// User represents a registered account
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Message represents a single message between two users.
// ReadAt is nil until the recipient has seen the message; once set it is
// never cleared. The two deletion flags are independent soft deletes: a
// message row is physically removed only when both are set.
type Message struct {
	ID               string
	Sender           string
	Recipient        string
	Content          string
	CreatedAt        time.Time
	ReadAt           *time.Time
	SenderDeleted    bool
	RecipientDeleted bool
}

// GroupConnection is one live connection joined to a conversation group,
// tagged with the username that owns it
type GroupConnection struct {
	ConnectionID string
	Username     string
}

// Message list containers
const (
	ContainerInbox  = "inbox"
	ContainerOutbox = "outbox"
	ContainerUnread = "unread"
)

// MessageParams selects a page of messages for a user
type MessageParams struct {
	Username  string
	Container string // "inbox", "outbox", anything else means unread
	Page      int
	PageSize  int
}

// Pagination describes the position of a page within a full result set
type Pagination struct {
	CurrentPage int `json:"currentPage"`
	PageSize    int `json:"pageSize"`
	TotalCount  int `json:"totalCount"`
	TotalPages  int `json:"totalPages"`
}

// MessagePage is one page of messages plus pagination metadata
type MessagePage struct {
	Messages []*Message
	Pagination
}

// UserPage is one page of users plus pagination metadata
type UserPage struct {
	Users []*User
	Pagination
}

// Store defines the interface for user, message and conversation-group persistence
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUserByName(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context, page, pageSize int) (*UserPage, error)

	// Messages
	//
	// CreateMessage persists msg and, in the same transaction, checks whether
	// the recipient currently has a connection joined to groupName. If so the
	// message is stamped read at its creation time. The returned bool reports
	// that check so callers can decide whether to dispatch a notification.
	CreateMessage(ctx context.Context, msg *Message, groupName string) (recipientInGroup bool, err error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	// GetMessageThread returns the conversation between the two users in
	// chronological order, honoring each party's deletion flags, and marks
	// every unread message addressed to currentUser as read in one batch.
	GetMessageThread(ctx context.Context, currentUser, otherUser string) ([]*Message, error)
	ListMessages(ctx context.Context, params MessageParams) (*MessagePage, error)
	// DeleteMessage sets username's deletion flag on the message and removes
	// the row once both parties have deleted it, all in one transaction.
	DeleteMessage(ctx context.Context, id, username string) error

	// Conversation groups
	JoinGroup(ctx context.Context, groupName, username, connectionID string) ([]GroupConnection, error)
	// LeaveGroup removes the connection from whichever group contains it and
	// returns that group's name with the remaining members. Returns
	// ErrNotFound if no group contains the connection.
	LeaveGroup(ctx context.Context, connectionID string) (groupName string, remaining []GroupConnection, err error)
	GroupConnections(ctx context.Context, groupName string) ([]GroupConnection, error)
	// ClearGroupConnections drops every joined connection. Called at startup:
	// connection rows from a previous process are unreachable by definition.
	ClearGroupConnections(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}

// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	users    map[string]*User            // keyed by username
	messages map[string]*Message         // keyed by message ID
	order    []string                    // message IDs in insertion order
	groups   map[string][]GroupConnection // keyed by group name

	// FailCreateMessage makes CreateMessage return this error, for testing
	// the persistence-failure path.
	FailCreateMessage error
	// FailJoinGroup makes JoinGroup return this error.
	FailJoinGroup error
	// FailGetMessageThread makes GetMessageThread return this error.
	FailGetMessageThread error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:    make(map[string]*User),
		messages: make(map[string]*Message),
		groups:   make(map[string][]GroupConnection),
	}
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.Username]; ok {
		return ErrDuplicateUser
	}

	u := *user
	m.users[u.Username] = &u
	return nil
}

// GetUserByName retrieves a user by username.
func (m *MockStore) GetUserByName(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[username]
	if !ok {
		return nil, ErrNotFound
	}

	result := *u
	return &result, nil
}

// ListUsers returns one page of users ordered by username.
func (m *MockStore) ListUsers(ctx context.Context, page, pageSize int) (*UserPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	page, pageSize = clampPage(page, pageSize)

	names := make([]string, 0, len(m.users))
	for name := range m.users {
		names = append(names, name)
	}
	sort.Strings(names)

	start := (page - 1) * pageSize
	if start > len(names) {
		start = len(names)
	}
	end := start + pageSize
	if end > len(names) {
		end = len(names)
	}

	users := make([]*User, 0, end-start)
	for _, name := range names[start:end] {
		u := *m.users[name]
		users = append(users, &u)
	}

	return &UserPage{
		Users:      users,
		Pagination: paginate(page, pageSize, len(names)),
	}, nil
}

// CreateMessage stores a message, stamping it read when the recipient has a
// connection joined to groupName.
func (m *MockStore) CreateMessage(ctx context.Context, msg *Message, groupName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCreateMessage != nil {
		return false, m.FailCreateMessage
	}

	inGroup := false
	for _, gc := range m.groups[groupName] {
		if gc.Username == msg.Recipient {
			inGroup = true
			break
		}
	}

	if inGroup {
		readAt := msg.CreatedAt
		msg.ReadAt = &readAt
	}

	stored := *msg
	m.messages[stored.ID] = &stored
	m.order = append(m.order, stored.ID)
	return inGroup, nil
}

// GetMessage retrieves a message by ID.
func (m *MockStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}

	result := *msg
	return &result, nil
}

// GetMessageThread returns the conversation between the two users and marks
// unread messages addressed to currentUser as read.
func (m *MockStore) GetMessageThread(ctx context.Context, currentUser, otherUser string) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailGetMessageThread != nil {
		return nil, m.FailGetMessageThread
	}

	now := time.Now().UTC().Truncate(time.Second)
	var thread []*Message
	for _, id := range m.order {
		msg := m.messages[id]
		inbound := msg.Recipient == currentUser && msg.Sender == otherUser && !msg.RecipientDeleted
		outbound := msg.Recipient == otherUser && msg.Sender == currentUser && !msg.SenderDeleted
		if !inbound && !outbound {
			continue
		}
		if inbound && msg.ReadAt == nil {
			readAt := now
			msg.ReadAt = &readAt
		}
		result := *msg
		thread = append(thread, &result)
	}
	return thread, nil
}

// ListMessages returns one page of messages for a user.
func (m *MockStore) ListMessages(ctx context.Context, params MessageParams) (*MessagePage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	page, pageSize := clampPage(params.Page, params.PageSize)

	var matched []*Message
	for _, id := range m.order {
		msg := m.messages[id]
		var ok bool
		switch params.Container {
		case ContainerInbox:
			ok = msg.Recipient == params.Username && !msg.RecipientDeleted
		case ContainerOutbox:
			ok = msg.Sender == params.Username && !msg.SenderDeleted
		default:
			ok = msg.Recipient == params.Username && !msg.RecipientDeleted && msg.ReadAt == nil
		}
		if ok {
			result := *msg
			matched = append(matched, &result)
		}
	}

	// Newest first, like the SQLite store
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	start := (page - 1) * pageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}

	return &MessagePage{
		Messages:   matched[start:end],
		Pagination: paginate(page, pageSize, len(matched)),
	}, nil
}

// DeleteMessage records username's deletion flag and removes the message once
// both parties have deleted it.
func (m *MockStore) DeleteMessage(ctx context.Context, id, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[id]
	if !ok {
		return ErrNotFound
	}

	switch username {
	case msg.Sender:
		msg.SenderDeleted = true
	case msg.Recipient:
		msg.RecipientDeleted = true
	default:
		return ErrNotParticipant
	}

	if msg.SenderDeleted && msg.RecipientDeleted {
		delete(m.messages, id)
		for i, mid := range m.order {
			if mid == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	return nil
}

// JoinGroup adds a connection to a group, creating the group lazily.
func (m *MockStore) JoinGroup(ctx context.Context, groupName, username, connectionID string) ([]GroupConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailJoinGroup != nil {
		return nil, m.FailJoinGroup
	}

	m.groups[groupName] = append(m.groups[groupName], GroupConnection{
		ConnectionID: connectionID,
		Username:     username,
	})

	return m.copyGroupLocked(groupName), nil
}

// LeaveGroup removes a connection from whichever group contains it.
func (m *MockStore) LeaveGroup(ctx context.Context, connectionID string) (string, []GroupConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, conns := range m.groups {
		for i, gc := range conns {
			if gc.ConnectionID == connectionID {
				m.groups[name] = append(conns[:i], conns[i+1:]...)
				return name, m.copyGroupLocked(name), nil
			}
		}
	}
	return "", nil, ErrNotFound
}

// GroupConnections returns the current membership of a group.
func (m *MockStore) GroupConnections(ctx context.Context, groupName string) ([]GroupConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.copyGroupLocked(groupName), nil
}

// ClearGroupConnections drops all joined connections.
func (m *MockStore) ClearGroupConnections(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.groups = make(map[string][]GroupConnection)
	return nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}

func (m *MockStore) copyGroupLocked(groupName string) []GroupConnection {
	conns := m.groups[groupName]
	result := make([]GroupConnection, len(conns))
	copy(result, conns)
	return result
}

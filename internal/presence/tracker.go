// ABOUTME: Tracks which users are online and which connections belong to each.
// ABOUTME: Single-process registry; reconstructible from live reconnects after a restart.

package presence

import (
	"sort"
	"sync"
)

// Tracker maps each username to the set of its live connection IDs. A user is
// online iff their set is non-empty: multiple browser tabs or devices for the
// same account each contribute one connection.
//
// One mutex guards the whole map. Presence updates are low-frequency relative
// to message traffic, so every operation is atomic with respect to the others
// and snapshot reads never observe a half-applied connect or disconnect.
type Tracker struct {
	mu    sync.Mutex
	users map[string]map[string]struct{}
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		users: make(map[string]map[string]struct{}),
	}
}

// Connect records a connection for the user. Returns true exactly when this
// was the user's first connection, i.e. the user just came online.
func (t *Tracker) Connect(username, connectionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	conns, ok := t.users[username]
	if !ok {
		conns = make(map[string]struct{})
		t.users[username] = conns
	}

	wasFirst := len(conns) == 0
	conns[connectionID] = struct{}{}
	return wasFirst
}

// Disconnect removes a connection for the user. Returns true exactly when
// this was the user's last connection, i.e. the user just went offline.
// Removing an unknown connection is a no-op: transport-layer disconnect
// notifications can fire more than once.
func (t *Tracker) Disconnect(username, connectionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	conns, ok := t.users[username]
	if !ok {
		return false
	}
	if _, ok := conns[connectionID]; !ok {
		return false
	}

	delete(conns, connectionID)
	if len(conns) == 0 {
		delete(t.users, username)
		return true
	}
	return false
}

// OnlineUsers returns a sorted snapshot of all users with at least one live
// connection, consistent at the instant of the call.
func (t *Tracker) OnlineUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := make([]string, 0, len(t.users))
	for username := range t.users {
		users = append(users, username)
	}
	sort.Strings(users)
	return users
}

// ConnectionsFor returns a snapshot of the user's live connection IDs.
// Empty when the user is offline.
func (t *Tracker) ConnectionsFor(username string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	conns := t.users[username]
	ids := make([]string, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	return ids
}

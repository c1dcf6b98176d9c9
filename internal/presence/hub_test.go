// ABOUTME: Tests for the presence Hub session handler
// ABOUTME: Covers online/offline broadcasts and the caller snapshot

package presence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	connectionID string
	exceptUser   string
	event        string
	payload      any
}

// fakeSender records deliveries for assertions.
type fakeSender struct {
	mu     sync.Mutex
	direct []sentEvent
	bcast  []sentEvent
}

func (f *fakeSender) SendToConnection(connectionID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct = append(f.direct, sentEvent{connectionID: connectionID, event: event, payload: payload})
}

func (f *fakeSender) BroadcastExceptUser(username, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bcast = append(f.bcast, sentEvent{exceptUser: username, event: event, payload: payload})
}

func TestHub_FirstConnectBroadcastsOnline(t *testing.T) {
	sender := &fakeSender{}
	hub := NewHub(NewTracker(), sender, nil)

	hub.OnConnect("alice", "h1")

	require.Len(t, sender.bcast, 1)
	assert.Equal(t, EventUserOnline, sender.bcast[0].event)
	assert.Equal(t, "alice", sender.bcast[0].payload)
	assert.Equal(t, "alice", sender.bcast[0].exceptUser)

	// Caller gets the snapshot regardless
	require.Len(t, sender.direct, 1)
	assert.Equal(t, "h1", sender.direct[0].connectionID)
	assert.Equal(t, EventOnlineUsers, sender.direct[0].event)
	assert.Equal(t, []string{"alice"}, sender.direct[0].payload)
}

func TestHub_SecondTabDoesNotRebroadcast(t *testing.T) {
	sender := &fakeSender{}
	hub := NewHub(NewTracker(), sender, nil)

	hub.OnConnect("alice", "h1")
	hub.OnConnect("alice", "h2")

	require.Len(t, sender.bcast, 1, "online must be broadcast once")
	require.Len(t, sender.direct, 2, "each tab still gets the snapshot")
	assert.Equal(t, "h2", sender.direct[1].connectionID)
}

func TestHub_LastDisconnectBroadcastsOffline(t *testing.T) {
	sender := &fakeSender{}
	hub := NewHub(NewTracker(), sender, nil)

	hub.OnConnect("alice", "h1")
	hub.OnConnect("alice", "h2")

	hub.OnDisconnect("alice", "h1")
	require.Len(t, sender.bcast, 1, "still online via h2, no offline broadcast")

	hub.OnDisconnect("alice", "h2")
	require.Len(t, sender.bcast, 2)
	assert.Equal(t, EventUserOffline, sender.bcast[1].event)
	assert.Equal(t, "alice", sender.bcast[1].payload)
}

func TestHub_SnapshotSeesEarlierUsers(t *testing.T) {
	sender := &fakeSender{}
	hub := NewHub(NewTracker(), sender, nil)

	hub.OnConnect("bob", "h1")
	hub.OnConnect("alice", "h2")

	assert.Equal(t, []string{"alice", "bob"}, sender.direct[1].payload)
}

func TestHub_DuplicateDisconnectIsQuiet(t *testing.T) {
	sender := &fakeSender{}
	hub := NewHub(NewTracker(), sender, nil)

	hub.OnConnect("alice", "h1")
	hub.OnDisconnect("alice", "h1")
	hub.OnDisconnect("alice", "h1")

	require.Len(t, sender.bcast, 2, "one online, one offline, nothing for the duplicate")
}

// ABOUTME: Tests for the MessageHub conversation session handler
// ABOUTME: Covers join/leave broadcasts, read receipts, notifications, failure paths

package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetline/meetline/internal/presence"
	"github.com/meetline/meetline/internal/store"
)

type delivered struct {
	connectionID string
	event        string
	payload      any
}

// fakeSender records per-connection deliveries.
type fakeSender struct {
	mu   sync.Mutex
	sent []delivered
}

func (f *fakeSender) SendToConnection(connectionID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, delivered{connectionID: connectionID, event: event, payload: payload})
}

func (f *fakeSender) byEvent(event string) []delivered {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []delivered
	for _, d := range f.sent {
		if d.event == event {
			out = append(out, d)
		}
	}
	return out
}

type hubFixture struct {
	hub     *MessageHub
	store   *store.MockStore
	tracker *presence.Tracker
	sender  *fakeSender
}

func newHubFixture(t *testing.T, usernames ...string) *hubFixture {
	t.Helper()

	mockStore := store.NewMockStore()
	for _, name := range usernames {
		err := mockStore.CreateUser(context.Background(), &store.User{
			ID:       "id-" + name,
			Username: name,
		})
		require.NoError(t, err)
	}

	tracker := presence.NewTracker()
	sender := &fakeSender{}
	return &hubFixture{
		hub:     NewMessageHub(mockStore, tracker, sender, nil),
		store:   mockStore,
		tracker: tracker,
		sender:  sender,
	}
}

func TestMessageHub_OnOpenJoinsAndReplaysHistory(t *testing.T) {
	f := newHubFixture(t, "alice", "bob")
	ctx := context.Background()

	// Bob left a message while alice was away
	_, err := f.store.CreateMessage(ctx, &store.Message{
		ID: "m1", Sender: "bob", Recipient: "alice", Content: "hi",
	}, GroupKey("alice", "bob"))
	require.NoError(t, err)

	require.NoError(t, f.hub.OnOpen(ctx, "alice", "bob", "conn-a1"))

	groups := f.sender.byEvent(EventUpdatedGroup)
	require.Len(t, groups, 1)
	view := groups[0].payload.(GroupView)
	assert.Equal(t, "alice-bob", view.Name)
	require.Len(t, view.Members, 1)
	assert.Equal(t, "alice", view.Members[0].Username)

	threads := f.sender.byEvent(EventMessageThread)
	require.Len(t, threads, 1)
	assert.Equal(t, "conn-a1", threads[0].connectionID)
	msgs := threads[0].payload.([]MessageView)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.NotNil(t, msgs[0].ReadAt, "opening the thread marks the backlog read")
}

func TestMessageHub_OnOpenBroadcastsToBothMembers(t *testing.T) {
	f := newHubFixture(t, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, f.hub.OnOpen(ctx, "alice", "bob", "conn-a1"))
	require.NoError(t, f.hub.OnOpen(ctx, "bob", "alice", "conn-b1"))

	groups := f.sender.byEvent(EventUpdatedGroup)
	// First join: update to alice. Second join: update to alice and bob.
	require.Len(t, groups, 3)
	last := groups[len(groups)-1].payload.(GroupView)
	assert.Len(t, last.Members, 2)
}

func TestMessageHub_OnOpenJoinFailureIsFatal(t *testing.T) {
	f := newHubFixture(t, "alice", "bob")
	f.store.FailJoinGroup = errors.New("disk full")

	err := f.hub.OnOpen(context.Background(), "alice", "bob", "conn-a1")
	require.Error(t, err)
	assert.Empty(t, f.sender.sent, "nothing may be broadcast after a failed join")
}

func TestMessageHub_OnOpenThreadFailureUndoesJoin(t *testing.T) {
	f := newHubFixture(t, "alice", "bob")
	ctx := context.Background()

	f.store.FailGetMessageThread = errors.New("disk full")
	err := f.hub.OnOpen(ctx, "bob", "alice", "conn-b1")
	require.Error(t, err)

	members, err := f.store.GroupConnections(ctx, GroupKey("alice", "bob"))
	require.NoError(t, err)
	assert.Empty(t, members, "failed open must not leave a membership row behind")

	// A message sent to bob now must not be stamped read on his behalf.
	f.store.FailGetMessageThread = nil
	msg, err := f.hub.SendMessage(ctx, "alice", SendRequest{Recipient: "bob", Content: "hey"})
	require.NoError(t, err)
	assert.Nil(t, msg.ReadAt)
}

func TestMessageHub_OnCloseIsIdempotent(t *testing.T) {
	f := newHubFixture(t, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, f.hub.OnOpen(ctx, "alice", "bob", "conn-a1"))

	f.hub.OnClose(ctx, "conn-a1")
	closed := len(f.sender.byEvent(EventUpdatedGroup))

	// Second close and a close for a connection that never joined
	f.hub.OnClose(ctx, "conn-a1")
	f.hub.OnClose(ctx, "conn-ghost")
	assert.Len(t, f.sender.byEvent(EventUpdatedGroup), closed, "duplicate leave must be quiet")
}

func TestMessageHub_SendToRecipientInGroupStampsRead(t *testing.T) {
	f := newHubFixture(t, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, f.hub.OnOpen(ctx, "alice", "bob", "conn-a1"))
	require.NoError(t, f.hub.OnOpen(ctx, "bob", "alice", "conn-b1"))

	msg, err := f.hub.SendMessage(ctx, "alice", SendRequest{Recipient: "bob", Content: "hey"})
	require.NoError(t, err)

	require.NotNil(t, msg.ReadAt)
	assert.True(t, msg.ReadAt.Equal(msg.CreatedAt), "read timestamp equals send time")

	assert.Empty(t, f.sender.byEvent(EventNewMessageReceived), "no fallback notification when recipient is viewing")

	deliveries := f.sender.byEvent(EventNewMessage)
	require.Len(t, deliveries, 2, "both joined connections receive the message")
	conns := []string{deliveries[0].connectionID, deliveries[1].connectionID}
	assert.ElementsMatch(t, []string{"conn-a1", "conn-b1"}, conns)
}

func TestMessageHub_SendToRecipientElsewhereNotifies(t *testing.T) {
	f := newHubFixture(t, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, f.hub.OnOpen(ctx, "alice", "bob", "conn-a1"))

	// Bob is online with two tabs, neither viewing this conversation
	f.tracker.Connect("bob", "conn-b1")
	f.tracker.Connect("bob", "conn-b2")

	msg, err := f.hub.SendMessage(ctx, "alice", SendRequest{Recipient: "bob", Content: "hey"})
	require.NoError(t, err)
	assert.Nil(t, msg.ReadAt, "message stays unread until bob opens the thread")

	notices := f.sender.byEvent(EventNewMessageReceived)
	require.Len(t, notices, 2)
	notifiedConns := []string{notices[0].connectionID, notices[1].connectionID}
	assert.ElementsMatch(t, []string{"conn-b1", "conn-b2"}, notifiedConns)
	assert.Equal(t, NewMessageNotice{Username: "alice"}, notices[0].payload)
}

func TestMessageHub_SendToOfflineRecipient(t *testing.T) {
	f := newHubFixture(t, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, f.hub.OnOpen(ctx, "alice", "bob", "conn-a1"))

	msg, err := f.hub.SendMessage(ctx, "alice", SendRequest{Recipient: "bob", Content: "hey"})
	require.NoError(t, err)
	assert.Nil(t, msg.ReadAt)
	assert.Empty(t, f.sender.byEvent(EventNewMessageReceived), "offline recipients get nothing pushed")

	// The sender's own joined connection still sees the message live
	deliveries := f.sender.byEvent(EventNewMessage)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "conn-a1", deliveries[0].connectionID)
}

func TestMessageHub_SendRejectsSelfMessage(t *testing.T) {
	f := newHubFixture(t, "alice")

	_, err := f.hub.SendMessage(context.Background(), "alice", SendRequest{Recipient: "Alice", Content: "hi me"})
	assert.ErrorIs(t, err, ErrSelfMessage)
	assert.Empty(t, f.sender.sent)
}

func TestMessageHub_SendRejectsUnknownRecipient(t *testing.T) {
	f := newHubFixture(t, "alice")

	_, err := f.hub.SendMessage(context.Background(), "alice", SendRequest{Recipient: "ghost", Content: "hi"})
	assert.ErrorIs(t, err, ErrRecipientNotFound)
	assert.Empty(t, f.sender.sent)
}

func TestMessageHub_SendPersistFailureSkipsBroadcast(t *testing.T) {
	f := newHubFixture(t, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, f.hub.OnOpen(ctx, "alice", "bob", "conn-a1"))
	f.sender.sent = nil
	f.store.FailCreateMessage = errors.New("disk full")

	_, err := f.hub.SendMessage(ctx, "alice", SendRequest{Recipient: "bob", Content: "hey"})
	require.Error(t, err)
	assert.Empty(t, f.sender.sent, "a failed save must not be broadcast")
}

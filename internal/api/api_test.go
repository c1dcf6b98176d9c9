// ABOUTME: Tests for the REST API: accounts, user directory, message history
// ABOUTME: Drives handlers through httptest with the in-memory store

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetline/meetline/internal/auth"
	"github.com/meetline/meetline/internal/store"
)

type apiHarness struct {
	ts       *httptest.Server
	store    *store.MockStore
	verifier *auth.JWTVerifier
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier := auth.NewJWTVerifier([]byte("test-secret"))
	mockStore := store.NewMockStore()

	handler := New(mockStore, verifier, time.Hour, logger)
	router := mux.NewRouter()
	handler.Register(router)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &apiHarness{ts: ts, store: mockStore, verifier: verifier}
}

func (h *apiHarness) seedUser(t *testing.T, username, password string) {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	err = h.store.CreateUser(context.Background(), &store.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	})
	require.NoError(t, err)
}

func (h *apiHarness) seedMessage(t *testing.T, sender, recipient, content string) string {
	t.Helper()
	msg := &store.Message{
		ID:        uuid.New().String(),
		Sender:    sender,
		Recipient: recipient,
		Content:   content,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	_, err := h.store.CreateMessage(context.Background(), msg, "")
	require.NoError(t, err)
	return msg.ID
}

func (h *apiHarness) request(t *testing.T, method, path, username string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, h.ts.URL+path, reader)
	require.NoError(t, err)

	if username != "" {
		token, err := h.verifier.Generate(username, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestRegister_CreatesAccountAndIssuesToken(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.request(t, http.MethodPost, "/api/account/register", "",
		credentials{Username: "Alice", Password: "hunter2"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	session := decodeBody[sessionResponse](t, resp)
	assert.Equal(t, "alice", session.Username, "usernames are lowercased")

	username, err := h.verifier.Verify(session.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestRegister_Validation(t *testing.T) {
	h := newAPIHarness(t)

	tests := []struct {
		name  string
		creds credentials
	}{
		{"empty username", credentials{Username: "", Password: "hunter2"}},
		{"bad characters", credentials{Username: "al ice!", Password: "hunter2"}},
		{"one character", credentials{Username: "a", Password: "hunter2"}},
		{"short password", credentials{Username: "alice", Password: "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.request(t, http.MethodPost, "/api/account/register", "", tt.creds)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	h := newAPIHarness(t)
	h.seedUser(t, "alice", "hunter2")

	resp := h.request(t, http.MethodPost, "/api/account/register", "",
		credentials{Username: "alice", Password: "hunter2"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[map[string]string](t, resp)
	assert.Contains(t, body["error"], "taken")
}

func TestLogin(t *testing.T) {
	h := newAPIHarness(t)
	h.seedUser(t, "alice", "hunter2")

	resp := h.request(t, http.MethodPost, "/api/account/login", "",
		credentials{Username: "Alice", Password: "hunter2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	session := decodeBody[sessionResponse](t, resp)
	assert.Equal(t, "alice", session.Username)
	assert.NotEmpty(t, session.Token)

	resp = h.request(t, http.MethodPost, "/api/account/login", "",
		credentials{Username: "alice", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.request(t, http.MethodPost, "/api/account/login", "",
		credentials{Username: "nobody", Password: "hunter2"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListUsers(t *testing.T) {
	h := newAPIHarness(t)
	h.seedUser(t, "alice", "pw")
	h.seedUser(t, "bob", "pw")
	h.seedUser(t, "carol", "pw")

	resp := h.request(t, http.MethodGet, "/api/users", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.request(t, http.MethodGet, "/api/users?page=1&pageSize=2", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	users := decodeBody[[]userResponse](t, resp)
	assert.Len(t, users, 2)

	var pagination store.Pagination
	require.NoError(t, json.Unmarshal([]byte(resp.Header.Get("Pagination")), &pagination))
	assert.Equal(t, 1, pagination.CurrentPage)
	assert.Equal(t, 2, pagination.PageSize)
	assert.Equal(t, 3, pagination.TotalCount)
	assert.Equal(t, 2, pagination.TotalPages)
}

func TestGetUser(t *testing.T) {
	h := newAPIHarness(t)
	h.seedUser(t, "alice", "pw")
	h.seedUser(t, "bob", "pw")

	resp := h.request(t, http.MethodGet, "/api/users/Bob", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	user := decodeBody[userResponse](t, resp)
	assert.Equal(t, "bob", user.Username)
	assert.False(t, user.CreatedAt.IsZero())

	resp = h.request(t, http.MethodGet, "/api/users/nobody", "alice", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.request(t, http.MethodGet, "/api/users/bob", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListMessages_Containers(t *testing.T) {
	h := newAPIHarness(t)
	h.seedUser(t, "alice", "pw")
	h.seedUser(t, "bob", "pw")
	h.seedMessage(t, "bob", "alice", "to alice")
	h.seedMessage(t, "alice", "bob", "from alice")

	resp := h.request(t, http.MethodGet, "/api/messages?container=inbox", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	inbox := decodeBody[[]messageResponse](t, resp)
	require.Len(t, inbox, 1)
	assert.Equal(t, "to alice", inbox[0].Content)
	assert.NotEmpty(t, resp.Header.Get("Pagination"))

	resp = h.request(t, http.MethodGet, "/api/messages?container=outbox", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	outbox := decodeBody[[]messageResponse](t, resp)
	require.Len(t, outbox, 1)
	assert.Equal(t, "from alice", outbox[0].Content)

	// Default container is unread.
	resp = h.request(t, http.MethodGet, "/api/messages", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	unread := decodeBody[[]messageResponse](t, resp)
	require.Len(t, unread, 1)
	assert.Equal(t, "to alice", unread[0].Content)
	assert.Nil(t, unread[0].ReadAt)
}

func TestThread_MarksUnreadRead(t *testing.T) {
	h := newAPIHarness(t)
	h.seedUser(t, "alice", "pw")
	h.seedUser(t, "bob", "pw")
	h.seedMessage(t, "bob", "alice", "hello")

	resp := h.request(t, http.MethodGet, "/api/messages/thread/Bob", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	thread := decodeBody[[]messageResponse](t, resp)
	require.Len(t, thread, 1)
	assert.NotNil(t, thread[0].ReadAt)

	// The unread container is now empty.
	resp = h.request(t, http.MethodGet, "/api/messages", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	unread := decodeBody[[]messageResponse](t, resp)
	assert.Empty(t, unread)
}

func TestDeleteMessage(t *testing.T) {
	h := newAPIHarness(t)
	h.seedUser(t, "alice", "pw")
	h.seedUser(t, "bob", "pw")
	id := h.seedMessage(t, "alice", "bob", "delete me")

	resp := h.request(t, http.MethodDelete, "/api/messages/"+id, "carol", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.request(t, http.MethodDelete, "/api/messages/"+id, "alice", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Sender deletion hides it from the sender's outbox only.
	resp = h.request(t, http.MethodGet, "/api/messages?container=outbox", "alice", nil)
	assert.Empty(t, decodeBody[[]messageResponse](t, resp))

	resp = h.request(t, http.MethodGet, "/api/messages?container=inbox", "bob", nil)
	assert.Len(t, decodeBody[[]messageResponse](t, resp), 1)

	// Both sides deleted removes the row for good.
	resp = h.request(t, http.MethodDelete, "/api/messages/"+id, "bob", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err := h.store.GetMessage(context.Background(), id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	resp = h.request(t, http.MethodDelete, "/api/messages/"+id, "alice", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

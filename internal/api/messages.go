// ABOUTME: Message history handlers: container listing, thread view, deletion
// ABOUTME: Thread reads mark the caller's unread backlog; deletes honor the two-sided flag rule

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/meetline/meetline/internal/auth"
	"github.com/meetline/meetline/internal/store"
)

type messageResponse struct {
	ID        string     `json:"id"`
	Sender    string     `json:"sender"`
	Recipient string     `json:"recipient"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}

func messageResponses(msgs []*store.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, messageResponse{
			ID:        msg.ID,
			Sender:    msg.Sender,
			Recipient: msg.Recipient,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
			ReadAt:    msg.ReadAt,
		})
	}
	return out
}

// handleListMessages returns one page of the caller's inbox, outbox, or
// unread messages. Anything other than inbox or outbox selects unread.
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	username := auth.FromContext(r.Context())
	page, pageSize := pageParams(r)

	result, err := h.store.ListMessages(r.Context(), store.MessageParams{
		Username:  username,
		Container: r.URL.Query().Get("container"),
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		h.logger.Error("failed to list messages", "username", username, "error", err)
		respondError(w, http.StatusInternalServerError, "could not load messages")
		return
	}

	writePaginationHeader(w, result.Pagination)
	respondJSON(w, http.StatusOK, messageResponses(result.Messages))
}

// handleThread returns the full conversation with the named user, oldest
// first, marking any unread messages addressed to the caller as read.
func (h *Handler) handleThread(w http.ResponseWriter, r *http.Request) {
	username := auth.FromContext(r.Context())
	otherUser := strings.ToLower(mux.Vars(r)["username"])

	thread, err := h.store.GetMessageThread(r.Context(), username, otherUser)
	if err != nil {
		h.logger.Error("failed to load thread",
			"username", username,
			"other_user", otherUser,
			"error", err,
		)
		respondError(w, http.StatusInternalServerError, "could not load thread")
		return
	}

	respondJSON(w, http.StatusOK, messageResponses(thread))
}

// handleDeleteMessage flags the message deleted for the caller's side. The
// row disappears for good once both participants have deleted it.
func (h *Handler) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	username := auth.FromContext(r.Context())
	id := mux.Vars(r)["id"]

	err := h.store.DeleteMessage(r.Context(), id, username)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "message not found")
	case errors.Is(err, store.ErrNotParticipant):
		respondError(w, http.StatusUnauthorized, "you cannot delete this message")
	case err != nil:
		h.logger.Error("failed to delete message", "id", id, "username", username, "error", err)
		respondError(w, http.StatusInternalServerError, "could not delete message")
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// ABOUTME: User directory handlers
// ABOUTME: Serves the paged member list clients pick conversation partners from

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/meetline/meetline/internal/store"
)

type userResponse struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	result, err := h.store.ListUsers(r.Context(), page, pageSize)
	if err != nil {
		h.logger.Error("failed to list users", "error", err)
		respondError(w, http.StatusInternalServerError, "could not load users")
		return
	}

	users := make([]userResponse, 0, len(result.Users))
	for _, user := range result.Users {
		users = append(users, userResponse{
			Username:  user.Username,
			CreatedAt: user.CreatedAt,
		})
	}

	writePaginationHeader(w, result.Pagination)
	respondJSON(w, http.StatusOK, users)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	username := strings.ToLower(mux.Vars(r)["username"])

	user, err := h.store.GetUserByName(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("failed to load user", "username", username, "error", err)
		respondError(w, http.StatusInternalServerError, "could not load user")
		return
	}

	respondJSON(w, http.StatusOK, userResponse{
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
	})
}

// ABOUTME: Account registration and login handlers
// ABOUTME: Validates usernames, hashes credentials, and issues session tokens

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meetline/meetline/internal/auth"
	"github.com/meetline/meetline/internal/store"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,31}$`)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	username := strings.ToLower(strings.TrimSpace(creds.Username))
	if !usernamePattern.MatchString(username) {
		respondError(w, http.StatusBadRequest, "username must be 2-32 characters: lowercase letters, digits, dot, dash, underscore")
		return
	}
	if len(creds.Password) < 4 {
		respondError(w, http.StatusBadRequest, "password must be at least 4 characters")
		return
	}

	hash, err := auth.HashPassword(creds.Password)
	if err != nil {
		h.logger.Error("failed to hash password", "error", err)
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	user := &store.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			respondError(w, http.StatusBadRequest, "username is taken")
			return
		}
		h.logger.Error("failed to create user", "username", username, "error", err)
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	token, err := h.tokens.Generate(username, h.tokenTTL)
	if err != nil {
		h.logger.Error("failed to issue token", "username", username, "error", err)
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	h.logger.Info("user registered", "username", username)
	respondJSON(w, http.StatusCreated, sessionResponse{Username: username, Token: token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	username := strings.ToLower(strings.TrimSpace(creds.Username))

	user, err := h.store.GetUserByName(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		h.logger.Error("failed to load user", "username", username, "error", err)
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, creds.Password); err != nil {
		respondError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, err := h.tokens.Generate(username, h.tokenTTL)
	if err != nil {
		h.logger.Error("failed to issue token", "username", username, "error", err)
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}

	h.logger.Info("user logged in", "username", username)
	respondJSON(w, http.StatusOK, sessionResponse{Username: username, Token: token})
}

// ABOUTME: REST API handler wiring and shared response helpers
// ABOUTME: Mounts account, user, and message routes with token middleware on the protected set

// Package api serves the REST surface: account registration and login, the
// user directory, and message history. Live conversation traffic goes over
// the WebSocket endpoints instead.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/meetline/meetline/internal/auth"
	"github.com/meetline/meetline/internal/store"
)

// Store defines what the API handlers need from persistence.
type Store interface {
	CreateUser(ctx context.Context, user *store.User) error
	GetUserByName(ctx context.Context, username string) (*store.User, error)
	ListUsers(ctx context.Context, page, pageSize int) (*store.UserPage, error)
	ListMessages(ctx context.Context, params store.MessageParams) (*store.MessagePage, error)
	GetMessageThread(ctx context.Context, currentUser, otherUser string) ([]*store.Message, error)
	DeleteMessage(ctx context.Context, id, username string) error
}

// TokenIssuer mints session tokens for authenticated users.
type TokenIssuer interface {
	auth.TokenVerifier
	Generate(username string, expiresIn time.Duration) (string, error)
}

// Handler holds the REST API dependencies.
type Handler struct {
	store    Store
	tokens   TokenIssuer
	tokenTTL time.Duration
	logger   *slog.Logger
}

// New creates an API handler. Pass nil logger for default.
func New(apiStore Store, tokens TokenIssuer, tokenTTL time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:    apiStore,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		logger:   logger.With("component", "api"),
	}
}

// Register mounts the API routes on the router. Account endpoints are open;
// everything else requires a valid token.
func (h *Handler) Register(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/account/register", h.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/account/login", h.handleLogin).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(auth.Middleware(h.tokens))
	protected.HandleFunc("/users", h.handleListUsers).Methods(http.MethodGet)
	protected.HandleFunc("/users/{username}", h.handleGetUser).Methods(http.MethodGet)
	protected.HandleFunc("/messages", h.handleListMessages).Methods(http.MethodGet)
	protected.HandleFunc("/messages/thread/{username}", h.handleThread).Methods(http.MethodGet)
	protected.HandleFunc("/messages/{id}", h.handleDeleteMessage).Methods(http.MethodDelete)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// writePaginationHeader serializes page metadata into the Pagination header
// so list bodies stay plain arrays.
func writePaginationHeader(w http.ResponseWriter, p store.Pagination) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	w.Header().Set("Pagination", string(raw))
	w.Header().Set("Access-Control-Expose-Headers", "Pagination")
}

func pageParams(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("pageSize"))
	return page, pageSize
}

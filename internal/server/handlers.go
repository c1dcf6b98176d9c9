// ABOUTME: WebSocket endpoint handlers and route registration
// ABOUTME: Drives the presence and conversation session lifecycles around the connection pumps

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/meetline/meetline/internal/auth"
	"github.com/meetline/meetline/internal/chat"
)

// Register mounts the WebSocket endpoints and the health check on the router.
// Both endpoints require a valid token, via the Authorization header or the
// access_token query parameter.
func (s *Server) Register(router *mux.Router) {
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	ws := router.PathPrefix("/ws").Subrouter()
	ws.Use(auth.Middleware(s.verifier))
	ws.HandleFunc("/presence", s.handlePresence).Methods(http.MethodGet)
	ws.HandleFunc("/messages", s.handleMessages).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handlePresence runs a presence session. The connection carries no client
// frames; it exists so the server can track who is online and push
// transitions and notifications.
func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	username := auth.FromContext(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "username", username, "error", err)
		return
	}

	client := s.newClient(conn, username)
	s.register(client)
	go client.writePump(s.cfg.PingInterval)

	s.presenceHub.OnConnect(username, client.ID)

	client.readPump(nil)

	s.unregister(client)
	s.presenceHub.OnDisconnect(username, client.ID)
}

// handleMessages runs a conversation session with the user named in the
// "user" query parameter. The session joins the pair's group, replays the
// thread, then accepts SendMessage frames until the connection closes.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	username := auth.FromContext(r.Context())

	otherUser := strings.ToLower(r.URL.Query().Get("user"))
	if otherUser == "" {
		http.Error(w, `{"error":"missing user parameter"}`, http.StatusBadRequest)
		return
	}
	if otherUser == username {
		http.Error(w, `{"error":"cannot open a conversation with yourself"}`, http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "username", username, "error", err)
		return
	}

	client := s.newClient(conn, username)
	s.register(client)
	go client.writePump(s.cfg.PingInterval)

	if err := s.messageHub.OnOpen(r.Context(), username, otherUser, client.ID); err != nil {
		s.logger.Error("failed to open conversation",
			"username", username,
			"other_user", otherUser,
			"error", err,
		)
		s.SendToConnection(client.ID, EventError, ErrorPayload{Message: "could not open conversation"})
		s.unregister(client)
		return
	}

	client.readPump(func(frame Frame) {
		s.handleClientFrame(r.Context(), client, frame)
	})

	s.unregister(client)

	// The request context may already be cancelled at teardown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.messageHub.OnClose(ctx, client.ID)
}

func (s *Server) handleClientFrame(ctx context.Context, client *Client, frame Frame) {
	switch frame.Type {
	case EventSendMessage:
		var req chat.SendRequest
		if err := json.Unmarshal(frame.Payload, &req); err != nil {
			s.SendToConnection(client.ID, EventError, ErrorPayload{Message: "malformed SendMessage payload"})
			return
		}
		if _, err := s.messageHub.SendMessage(ctx, client.Username, req); err != nil {
			s.SendToConnection(client.ID, EventError, ErrorPayload{Message: err.Error()})
		}
	default:
		s.SendToConnection(client.ID, EventError, ErrorPayload{Message: "unknown event type: " + frame.Type})
	}
}

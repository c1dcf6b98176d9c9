// ABOUTME: WebSocket transport server: connection registry, event delivery, HTTP lifecycle
// ABOUTME: Implements the Sender interfaces the presence and chat hubs deliver through

// Package server is the WebSocket transport layer. It upgrades authenticated
// HTTP requests, keeps the registry of live connections, and delivers hub
// events to them. All delivery is best-effort and non-blocking; a slow client
// loses events rather than stalling a hub.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/meetline/meetline/internal/auth"
	"github.com/meetline/meetline/internal/chat"
	"github.com/meetline/meetline/internal/config"
	"github.com/meetline/meetline/internal/presence"
)

// Server owns the live connection registry and the HTTP listener.
type Server struct {
	cfg      config.ServerConfig
	verifier auth.TokenVerifier
	upgrader websocket.Upgrader
	logger   *slog.Logger

	presenceHub *presence.Hub
	messageHub  *chat.MessageHub

	mu      sync.RWMutex
	clients map[string]*Client
}

// New creates a Server. Hubs are attached afterwards with SetHubs because
// they deliver events through the server itself. Pass nil logger for default.
func New(cfg config.ServerConfig, verifier auth.TokenVerifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Token auth gates the upgrade; origin is not checked.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger.With("component", "server"),
		clients: make(map[string]*Client),
	}
}

// SetHubs attaches the session handlers. Must be called before Run.
func (s *Server) SetHubs(presenceHub *presence.Hub, messageHub *chat.MessageHub) {
	s.presenceHub = presenceHub
	s.messageHub = messageHub
}

// SendToConnection delivers an event to a single connection. Unknown
// connection IDs are ignored; a full send buffer drops the event.
func (s *Server) SendToConnection(connectionID, event string, payload any) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[connectionID]
	if !ok {
		return
	}
	s.deliver(client, Event{Type: event, Payload: payload})
}

// BroadcastExceptUser delivers an event to every connection not owned by the
// given user.
func (s *Server) BroadcastExceptUser(username, event string, payload any) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, client := range s.clients {
		if client.Username == username {
			continue
		}
		s.deliver(client, Event{Type: event, Payload: payload})
	}
}

// deliver queues an event without blocking. Callers hold at least a read
// lock, which keeps the send channel open for the duration of the send.
func (s *Server) deliver(client *Client, evt Event) {
	select {
	case client.send <- evt:
	default:
		s.logger.Warn("send buffer full, dropping event",
			"connection_id", client.ID,
			"username", client.Username,
			"event", evt.Type,
		)
	}
}

// ConnectionCount reports the number of live connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) newClient(conn *websocket.Conn, username string) *Client {
	return &Client{
		ID:             uuid.New().String(),
		Username:       username,
		conn:           conn,
		send:           make(chan Event, sendBufferSize),
		maxMessageSize: s.cfg.MaxMessageSize,
		pongTimeout:    s.cfg.PongTimeout,
		logger:         s.logger,
	}
}

func (s *Server) register(client *Client) {
	s.mu.Lock()
	s.clients[client.ID] = client
	s.mu.Unlock()
}

// unregister removes the client from the registry and closes its send
// channel. The write lock guarantees no deliver is mid-send when the channel
// closes. Safe to call more than once.
func (s *Server) unregister(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client.ID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, client.ID)
	s.mu.Unlock()

	close(client.send)
}

// closeConnections closes every live connection's underlying socket. Each
// connection handler then runs its normal teardown: unregister, hub
// notification, pump shutdown.
func (s *Server) closeConnections() {
	s.mu.RLock()
	snapshot := make([]*Client, 0, len(s.clients))
	for _, client := range s.clients {
		snapshot = append(snapshot, client)
	}
	s.mu.RUnlock()

	for _, client := range snapshot {
		client.conn.Close() //nolint:errcheck
	}
}

// Run serves the given handler on the configured address until ctx is
// cancelled, then closes live connections and shuts the listener down.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.Info("server listening", "addr", s.cfg.HTTPAddr)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "connections", s.ConnectionCount())
	s.closeConnections()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

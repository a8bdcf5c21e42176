package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/coachly/coachly/internal/auth"
	"github.com/coachly/coachly/internal/domain"
)

const (
	// writeWait is the time allowed to write a frame.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxFrameSize caps inbound frames.
	maxFrameSize = 64 * 1024
)

// UserLoader loads the account behind a verified token.
type UserLoader interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// Handler upgrades authenticated HTTP requests to websocket connections.
type Handler struct {
	relay    *Relay
	verifier *auth.Verifier
	users    UserLoader
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a Handler. An empty allowedOrigins accepts only
// same-host origins.
func NewHandler(relay *Relay, verifier *auth.Verifier, users UserLoader, allowedOrigins []string, logger *slog.Logger) *Handler {
	h := &Handler{
		relay:    relay,
		verifier: verifier,
		users:    users,
		logger:   logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil // gorilla's default same-origin check
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser client
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// ServeHTTP authenticates the request and runs the connection until it
// closes. Authentication fails before the upgrade, so an unauthenticated
// client never gets an open connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r)
	}
	if token == "" {
		writeAuthError(w, "Authentication required")
		return
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		h.logger.Warn("relay authentication failed", "error", err)
		writeAuthError(w, "Authentication failed")
		return
	}

	user, err := h.users.GetUser(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Warn("relay user rejected", "user_id", identity.UserID, "error", err)
		writeAuthError(w, "Authentication failed")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error.
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	client := h.relay.Connect(user)
	go h.writePump(conn, client)
	h.readPump(conn, client)
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// readPump handles inbound frames sequentially, which keeps one
// connection's events in order.
func (h *Handler) readPump(conn *websocket.Conn, client *Client) {
	defer func() {
		h.relay.Disconnect(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := context.Background()
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("relay read error", "user_id", client.user.ID, "error", err)
			}
			return
		}
		h.relay.Handle(ctx, client, frame)
	}
}

// writePump is the only writer on conn.
func (h *Handler) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

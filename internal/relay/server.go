package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"cryptochat/internal/crypto"
	"cryptochat/internal/database"
	"cryptochat/internal/transport"
)

// Server bundles the websocket endpoint and the directory API.
type Server struct {
	ctx      context.Context
	hub      *Hub
	store    *database.Store
	upgrader websocket.Upgrader
}

func NewServer(ctx context.Context, hub *Hub, store *database.Store) *Server {
	return &Server{
		ctx:   ctx,
		hub:   hub,
		store: store,
		upgrader: websocket.Upgrader{
			// The relay fronts browser and terminal clients alike; origin
			// restrictions belong in the deployment's reverse proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the relay's HTTP routes with CORS applied to the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("GET /api/users/online", s.handleOnlineUsers)
	mux.HandleFunc("GET /api/users/public-key/{username}", s.handlePublicKey)
	mux.HandleFunc("GET /api/chats/{chat_id}/messages", s.handleChatHistory)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return cors.AllowAll().Handler(mux)
}

// handleWS upgrades the connection and waits for the opening user_login event
// before admitting the client to the hub.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	_, frame, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return
	}
	var ev transport.Event
	if err := json.Unmarshal(frame, &ev); err != nil || ev.Type != transport.EventUserLogin {
		slog.Warn("connection did not open with user_login", "error", err)
		_ = conn.Close()
		return
	}
	var login transport.UserLogin
	if err := ev.Decode(&login); err != nil || login.Username == "" {
		slog.Warn("malformed user_login", "error", err)
		_ = conn.Close()
		return
	}
	if _, err := s.store.UserByName(login.Username); err != nil {
		slog.Warn("login for unknown user", "username", login.Username)
		_ = conn.Close()
		return
	}

	client := newClient(s.ctx, conn, s.hub, login.Username)
	s.hub.Register(client)
	go client.writePump()
	go client.readPump()
}

// handleChatHistory replays a room's stored envelopes. The relay only ever
// held ciphertext, so decryption and verification stay client side.
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chat_id")
	msgs, err := s.store.MessagesByChat(chatID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "History unavailable", err)
		return
	}
	envelopes := make([]transport.MessageEnvelope, 0, len(msgs))
	for _, m := range msgs {
		envelopes = append(envelopes, transport.MessageEnvelope{
			ChatID:           m.ChatID,
			Sender:           m.Sender,
			EncryptedMessage: m.Ciphertext,
			Signature:        m.Signature,
			SignatureType:    crypto.Scheme(m.Scheme),
			Timestamp:        m.Timestamp,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"messages": envelopes})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write json response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		slog.Error(message, "error", err)
	}
	s.writeJSON(w, status, map[string]any{"success": false, "message": message})
}

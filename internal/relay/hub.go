// Package relay implements the central event relay: it fans chat events out to
// room members, tracks presence, and serves the user directory API. The relay
// never sees a room key in the clear; it only forwards wrapped envelopes.
package relay

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"cryptochat/internal/database"
	"cryptochat/internal/transport"
)

// Hub routes events between connected clients. A single select loop owns the
// client and room tables, so per-sender event order is preserved end to end:
// each client's read pump feeds the loop in arrival order, and each recipient
// drains its own ordered send queue.
type Hub struct {
	ctx   context.Context
	store *database.Store

	clients    map[string]*Client              // username -> connection
	rooms      map[string]map[string]struct{}  // chat id -> member set
	inbound    chan inboundEvent
	register   chan *Client
	unregister chan *Client
}

type inboundEvent struct {
	from *Client
	ev   transport.Event
}

func NewHub(ctx context.Context, store *database.Store) *Hub {
	return &Hub{
		ctx:        ctx,
		store:      store,
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]struct{}),
		inbound:    make(chan inboundEvent),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run processes registrations and inbound events until the context ends.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			slog.Info("hub shutting down")
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.dropClient(c)
		case in := <-h.inbound:
			h.dispatch(in)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	if old, ok := h.clients[c.username]; ok {
		old.Close()
	}
	h.clients[c.username] = c
	if err := h.store.SetOnline(c.username, true); err != nil {
		slog.Error("mark user online", "username", c.username, "error", err)
	}
	h.broadcastExcept(c.username, transport.EventUserOnline, transport.Presence{Username: c.username})
	slog.Info("client connected", "username", c.username, "total_clients", len(h.clients))
}

func (h *Hub) dropClient(c *Client) {
	cur, ok := h.clients[c.username]
	if !ok || cur != c {
		return
	}
	delete(h.clients, c.username)
	c.Close()
	for chatID, members := range h.rooms {
		if _, in := members[c.username]; in {
			delete(members, c.username)
			h.broadcastRoom(chatID, c.username, transport.EventUserLeft, transport.Membership{
				Username: c.username,
				ChatID:   chatID,
			})
			h.pruneRoom(chatID)
		}
	}
	if err := h.store.SetOnline(c.username, false); err != nil {
		slog.Error("mark user offline", "username", c.username, "error", err)
	}
	h.broadcastExcept(c.username, transport.EventUserOffline, transport.Presence{Username: c.username})
	slog.Info("client disconnected", "username", c.username, "total_clients", len(h.clients))
}

func (h *Hub) dispatch(in inboundEvent) {
	switch in.ev.Type {
	case transport.EventInitiateChat:
		h.handleInitiateChat(in)
	case transport.EventJoinChat:
		h.handleJoinChat(in)
	case transport.EventSendMessage:
		h.handleSendMessage(in)
	case transport.EventLeaveChat:
		h.handleLeaveChat(in)
	default:
		slog.Warn("unhandled event", "event", in.ev.Type, "from", in.from.username)
	}
}

// handleInitiateChat creates a room for the reachable participants and hands
// each one its key envelope. Offline invitees do not abort the room; they are
// reported back to the initiator in a chat_error.
func (h *Hub) handleInitiateChat(in inboundEvent) {
	var req transport.InitiateChat
	if err := in.ev.Decode(&req); err != nil {
		slog.Warn("malformed initiate_chat", "from", in.from.username, "error", err)
		return
	}

	chatID := "chat_" + uuid.NewString()
	members := make(map[string]struct{})
	var offline []string

	for _, participant := range req.Participants {
		envelope, hasKey := req.KeyEnvelopes[participant]
		peer, online := h.clients[participant]
		if !hasKey || !online {
			if participant != req.Initiator {
				offline = append(offline, participant)
			}
			continue
		}
		members[participant] = struct{}{}
		h.sendTo(peer, transport.EventChatInvitation, transport.ChatInvitation{
			ChatID:       chatID,
			Initiator:    req.Initiator,
			Participants: req.Participants,
			EncryptedKey: envelope,
		})
	}

	if len(members) > 0 {
		h.rooms[chatID] = members
	}
	if len(offline) > 0 {
		h.sendTo(in.from, transport.EventChatError, transport.ChatError{
			ChatID:       chatID,
			Message:      "some users are offline",
			OfflineUsers: offline,
		})
	}
	slog.Info("chat initiated", "chat_id", chatID, "initiator", req.Initiator,
		"members", len(members), "offline", len(offline))
}

func (h *Hub) handleJoinChat(in inboundEvent) {
	var req transport.JoinChat
	if err := in.ev.Decode(&req); err != nil {
		slog.Warn("malformed join_chat", "from", in.from.username, "error", err)
		return
	}
	members, ok := h.rooms[req.ChatID]
	if !ok {
		return
	}
	members[req.Username] = struct{}{}
	h.broadcastRoom(req.ChatID, req.Username, transport.EventUserJoined, transport.Membership{
		Username: req.Username,
		ChatID:   req.ChatID,
	})
}

func (h *Hub) handleSendMessage(in inboundEvent) {
	var env transport.MessageEnvelope
	if err := in.ev.Decode(&env); err != nil {
		slog.Warn("malformed send_message", "from", in.from.username, "error", err)
		return
	}
	if _, ok := h.rooms[env.ChatID]; !ok {
		slog.Warn("message for unknown chat", "chat_id", env.ChatID, "from", in.from.username)
		return
	}
	if err := h.store.SaveMessage(&database.Message{
		ChatID:     env.ChatID,
		Sender:     env.Sender,
		Ciphertext: env.EncryptedMessage,
		Signature:  env.Signature,
		Scheme:     string(env.SignatureType),
		Timestamp:  env.Timestamp,
	}); err != nil {
		slog.Error("persist message", "chat_id", env.ChatID, "error", err)
	}
	// Fan out to every room member, the sender included, matching the
	// reference relay's room broadcast.
	h.broadcastRoom(env.ChatID, "", transport.EventNewMessage, env)
}

func (h *Hub) handleLeaveChat(in inboundEvent) {
	var req transport.LeaveChat
	if err := in.ev.Decode(&req); err != nil {
		slog.Warn("malformed leave_chat", "from", in.from.username, "error", err)
		return
	}
	members, ok := h.rooms[req.ChatID]
	if !ok {
		return
	}
	delete(members, req.Username)
	h.broadcastRoom(req.ChatID, req.Username, transport.EventUserLeft, transport.Membership{
		Username: req.Username,
		ChatID:   req.ChatID,
	})
	h.pruneRoom(req.ChatID)
}

func (h *Hub) pruneRoom(chatID string) {
	if members, ok := h.rooms[chatID]; ok && len(members) == 0 {
		delete(h.rooms, chatID)
	}
}

func (h *Hub) sendTo(c *Client, t transport.EventType, payload any) {
	ev, err := transport.NewEvent(t, payload)
	if err != nil {
		slog.Error("encode event", "event", t, "error", err)
		return
	}
	c.Deliver(ev)
}

// broadcastRoom sends to every member of chatID except skip (empty skip means
// everyone).
func (h *Hub) broadcastRoom(chatID, skip string, t transport.EventType, payload any) {
	members, ok := h.rooms[chatID]
	if !ok {
		return
	}
	for username := range members {
		if username == skip {
			continue
		}
		if c, online := h.clients[username]; online {
			h.sendTo(c, t, payload)
		}
	}
}

func (h *Hub) broadcastExcept(skip string, t transport.EventType, payload any) {
	for username, c := range h.clients {
		if username == skip {
			continue
		}
		h.sendTo(c, t, payload)
	}
}

// Register hands a logged-in connection to the hub loop.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.ctx.Done():
	}
}

// Unregister removes a connection, marking its user offline.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

func (h *Hub) deliverInbound(c *Client, ev transport.Event) {
	select {
	case h.inbound <- inboundEvent{from: c, ev: ev}:
	case <-h.ctx.Done():
	}
}

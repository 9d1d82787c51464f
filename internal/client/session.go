package client

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"time"

	"cryptochat/internal/codec"
	"cryptochat/internal/crypto"
	"cryptochat/internal/identity"
	"cryptochat/internal/keydist"
	"cryptochat/internal/presence"
	"cryptochat/internal/room"
	"cryptochat/internal/transport"
)

// Message is a decoded inbound chat message. Unverified messages are still
// delivered; the flag tells the consumer to mark them.
type Message struct {
	ChatID    string
	Sender    string
	Text      string
	Verified  bool
	Timestamp time.Time
}

// Session is one user's connection to the chat system. A single event-loop
// goroutine consumes transport events in arrival order and drives the room
// manager and presence tracker; the public methods only read state or emit
// outbound events, so the loop stays the sole writer.
type Session struct {
	ident    *identity.Identity
	dir      *Directory
	conn     *transport.Conn
	rooms    *room.Manager
	presence *presence.Tracker

	inbox chan Message
	joins chan string
	errs  chan error
	done  chan struct{}

	pubkeys map[string]*rsa.PublicKey // event-loop confined cache
}

// NewSession wires a logged-in identity to the directory. Connect establishes
// the event channel.
func NewSession(ident *identity.Identity, dir *Directory, inviteTimeout time.Duration) *Session {
	s := &Session{
		ident:    ident,
		dir:      dir,
		rooms:    room.NewManager(ident, inviteTimeout),
		presence: presence.NewTracker(),
		inbox:    make(chan Message, 64),
		joins:    make(chan string, 8),
		errs:     make(chan error, 16),
		done:     make(chan struct{}),
		pubkeys:  make(map[string]*rsa.PublicKey),
	}
	s.rooms.OnFailure = func(chatID string, err error) {
		s.reportError(fmt.Errorf("chat %s: %w", chatID, err))
	}
	return s
}

// Connect dials the relay, announces the user, seeds presence from the
// directory snapshot and starts the event loop.
func (s *Session) Connect(ctx context.Context, wsURL string) error {
	conn, err := transport.Dial(ctx, wsURL)
	if err != nil {
		return err
	}
	s.conn = conn
	if err := conn.Emit(transport.EventUserLogin, transport.UserLogin{Username: s.ident.Username}); err != nil {
		return err
	}
	if online, err := s.dir.OnlineUsers(); err == nil {
		s.presence.Seed(online)
	} else {
		slog.Warn("presence snapshot unavailable", "error", err)
	}
	go s.run()
	return nil
}

// InitiateChat generates and distributes a room key for the invitees and asks
// the relay to create the room. Invitees whose keys could not be resolved are
// surfaced as a partial-delivery error without aborting the invitation.
func (s *Session) InitiateChat(invitees []string) error {
	if s.conn == nil {
		return transport.ErrNotConnected
	}
	offer, err := keydist.InitiateRoom(s.ident, invitees, s.dir.PublicKey)
	if err != nil {
		return err
	}
	s.rooms.BeginOffer(offer)

	envelopes := make(map[string][]byte, len(offer.Envelopes))
	for _, env := range offer.Envelopes {
		envelopes[env.Recipient] = env.WrappedKey
	}
	if err := s.conn.Emit(transport.EventInitiateChat, transport.InitiateChat{
		Initiator:    offer.Initiator,
		Participants: offer.Participants,
		KeyEnvelopes: envelopes,
	}); err != nil {
		return err
	}
	if len(offer.Unresolved) > 0 {
		return &room.PartialDeliveryError{
			Offline: offer.Unresolved,
			Reason:  "no public key for some invitees",
		}
	}
	return nil
}

// Send encrypts, signs and dispatches a message to an active room.
func (s *Session) Send(chatID, text string, scheme crypto.Scheme) error {
	if s.conn == nil {
		return transport.ErrNotConnected
	}
	key, err := s.rooms.Key(chatID)
	if err != nil {
		return err
	}
	env, err := codec.Encode(text, chatID, key, s.ident, scheme)
	if err != nil {
		return err
	}
	return s.conn.Emit(transport.EventSendMessage, env)
}

// History fetches and decodes a room's persisted messages. Sender keys come
// from fresh directory lookups rather than the event loop's cache, so History
// is safe to call from any goroutine holding an active room.
func (s *Session) History(chatID string) ([]Message, error) {
	key, err := s.rooms.Key(chatID)
	if err != nil {
		return nil, err
	}
	envelopes, err := s.dir.History(chatID)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(envelopes))
	for _, env := range envelopes {
		pub, err := s.dir.PublicKey(env.Sender)
		if err != nil {
			pub = nil // verification fails closed
		}
		text, verified, err := codec.Decode(&env, key, pub)
		if err != nil {
			return nil, fmt.Errorf("history for chat %s: %w", chatID, err)
		}
		out = append(out, Message{
			ChatID:    env.ChatID,
			Sender:    env.Sender,
			Text:      text,
			Verified:  verified,
			Timestamp: env.Timestamp,
		})
	}
	return out, nil
}

// Leave departs a room, discarding its key material locally.
func (s *Session) Leave(chatID string) error {
	if err := s.rooms.Leave(chatID); err != nil {
		return err
	}
	return s.conn.Emit(transport.EventLeaveChat, transport.LeaveChat{
		Username: s.ident.Username,
		ChatID:   chatID,
	})
}

// Inbox streams decoded inbound messages.
func (s *Session) Inbox() <-chan Message { return s.inbox }

// Joins streams the chat ids of rooms this session has joined.
func (s *Session) Joins() <-chan string { return s.joins }

// Errors streams recoverable protocol errors (partial delivery, unreadable
// messages, failed invitations).
func (s *Session) Errors() <-chan error { return s.errs }

// Room exposes the local view of one room.
func (s *Session) Room(chatID string) (*room.Room, bool) { return s.rooms.Room(chatID) }

// Presence exposes the live online-user set.
func (s *Session) Presence() *presence.Tracker { return s.presence }

// Username returns the local user's name.
func (s *Session) Username() string { return s.ident.Username }

// Done closes when the event loop has drained.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close tears down the transport and clears the directory online flag.
func (s *Session) Close() error {
	if err := s.dir.Logout(s.ident.Username); err != nil {
		slog.Warn("logout failed", "error", err)
	}
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Session) run() {
	defer func() {
		close(s.inbox)
		close(s.done)
	}()
	for ev := range s.conn.Events() {
		s.handle(ev)
	}
}

func (s *Session) handle(ev transport.Event) {
	switch ev.Type {
	case transport.EventUserOnline:
		var p transport.Presence
		if err := ev.Decode(&p); err == nil {
			s.presence.SetOnline(p.Username)
		}
	case transport.EventUserOffline:
		var p transport.Presence
		if err := ev.Decode(&p); err == nil {
			s.presence.SetOffline(p.Username)
		}
	case transport.EventChatInvitation:
		s.handleInvitation(ev)
	case transport.EventUserJoined:
		var m transport.Membership
		if err := ev.Decode(&m); err == nil {
			s.rooms.HandleJoined(m.ChatID, m.Username)
		}
	case transport.EventUserLeft:
		var m transport.Membership
		if err := ev.Decode(&m); err == nil {
			s.rooms.HandleLeft(m.ChatID, m.Username)
		}
	case transport.EventNewMessage:
		s.handleNewMessage(ev)
	case transport.EventChatError:
		s.handleChatError(ev)
	default:
		slog.Debug("ignoring event", "event", ev.Type)
	}
}

// handleInvitation runs the join side: unwrap the room key, confirm with a
// join event, and flag any participants the presence tracker reports offline.
func (s *Session) handleInvitation(ev transport.Event) {
	var inv transport.ChatInvitation
	if err := ev.Decode(&inv); err != nil {
		s.reportError(err)
		return
	}
	r, err := s.rooms.HandleInvitation(inv)
	if err != nil {
		s.reportError(err)
		return
	}
	if err := s.conn.Emit(transport.EventJoinChat, transport.JoinChat{
		Username: s.ident.Username,
		ChatID:   inv.ChatID,
	}); err != nil {
		s.reportError(err)
		return
	}
	slog.Info("joined chat", "chat_id", r.ID, "initiator", inv.Initiator)
	select {
	case s.joins <- inv.ChatID:
	default:
	}

	var offline []string
	for _, participant := range inv.Participants {
		if participant != s.ident.Username && !s.presence.Online(participant) {
			offline = append(offline, participant)
		}
	}
	if len(offline) > 0 {
		s.reportError(&room.PartialDeliveryError{
			ChatID:  inv.ChatID,
			Offline: offline,
			Reason:  "participants currently offline",
		})
	}
}

func (s *Session) handleNewMessage(ev transport.Event) {
	var env transport.MessageEnvelope
	if err := ev.Decode(&env); err != nil {
		s.reportError(err)
		return
	}
	key, err := s.rooms.Key(env.ChatID)
	if err != nil {
		s.reportError(fmt.Errorf("message for chat %s: %w", env.ChatID, err))
		return
	}
	pub, err := s.senderKey(env.Sender)
	if err != nil {
		s.reportError(fmt.Errorf("no public key for %s: %w", env.Sender, err))
		pub = nil // decode still runs; verification fails closed
	}
	text, verified, err := codec.Decode(&env, key, pub)
	if err != nil {
		s.reportError(err)
		return
	}
	s.inbox <- Message{
		ChatID:    env.ChatID,
		Sender:    env.Sender,
		Text:      text,
		Verified:  verified,
		Timestamp: env.Timestamp,
	}
}

func (s *Session) handleChatError(ev transport.Event) {
	var ce transport.ChatError
	if err := ev.Decode(&ce); err != nil {
		s.reportError(err)
		return
	}
	s.reportError(&room.PartialDeliveryError{
		ChatID:  ce.ChatID,
		Offline: ce.OfflineUsers,
		Reason:  ce.Message,
	})
}

// senderKey resolves and caches sender public keys. Confined to the event
// loop, so no locking.
func (s *Session) senderKey(username string) (*rsa.PublicKey, error) {
	if pub, ok := s.pubkeys[username]; ok {
		return pub, nil
	}
	pub, err := s.dir.PublicKey(username)
	if err != nil {
		return nil, err
	}
	s.pubkeys[username] = pub
	return pub, nil
}

func (s *Session) reportError(err error) {
	select {
	case s.errs <- err:
	default:
		slog.Warn("error channel full, dropping", "error", err)
	}
}

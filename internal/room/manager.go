package room

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"cryptochat/internal/identity"
	"cryptochat/internal/keydist"
	"cryptochat/internal/transport"
)

var (
	ErrUnknownRoom = errors.New("unknown room")
	ErrNotActive   = errors.New("room is not active")
	ErrExpired     = errors.New("invitation expired")
)

// DefaultInviteTimeout bounds how long a room may sit in Pending or Joining
// before it is failed and reported to the initiator.
const DefaultInviteTimeout = 30 * time.Second

// Manager is the single writer of room state and room keys. It holds one key
// per room id so concurrent rooms never share or leak key material. Methods
// are safe for concurrent use, though in practice the session event loop is
// the only caller mutating state.
type Manager struct {
	ident   *identity.Identity
	timeout time.Duration

	mu      sync.Mutex
	rooms   map[string]*Room
	keyring map[string][]byte
	pending []*Room // offers sent, chat id not yet assigned by the relay

	// OnFailure is invoked (off the caller's goroutine) when a Pending or
	// Joining room expires or fails; chatID may be empty for unassigned offers.
	OnFailure func(chatID string, err error)
}

func NewManager(ident *identity.Identity, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultInviteTimeout
	}
	return &Manager{
		ident:   ident,
		timeout: timeout,
		rooms:   make(map[string]*Room),
		keyring: make(map[string][]byte),
	}
}

// BeginOffer records a sent invitation as a Pending room. The relay has not
// assigned a chat id yet; HandleInvitation resolves the placeholder when the
// initiator's own envelope comes back.
func (m *Manager) BeginOffer(offer *keydist.Offer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &Room{
		Initiator:    offer.Initiator,
		mu:           &m.mu,
		state:        StatePending,
		participants: memberSet(offer.Participants),
		createdAt:    time.Now(),
	}
	r.deadline = time.AfterFunc(m.timeout, func() { m.expire(r) })
	m.pending = append(m.pending, r)
}

// HandleInvitation runs the invitee side of the state machine: none → Joining
// on receipt, Joining → Active once the key envelope unwraps. For the
// initiator it resolves the oldest matching Pending placeholder instead of
// creating a new room. The returned room is Active; the caller emits the join
// event. An unwrap failure leaves the room Failed and is never converted into
// a usable key.
func (m *Manager) HandleInvitation(inv transport.ChatInvitation) (*Room, error) {
	m.mu.Lock()
	r := m.takePending(inv)
	if r == nil {
		r = &Room{Initiator: inv.Initiator, mu: &m.mu, createdAt: time.Now()}
	}
	r.ID = inv.ChatID
	r.state = StateJoining
	r.participants = memberSet(inv.Participants)
	m.rooms[inv.ChatID] = r
	m.mu.Unlock()

	roomKey, err := keydist.AcceptInvitation(inv.EncryptedKey, m.ident)

	m.mu.Lock()
	defer m.mu.Unlock()
	if r.deadline != nil {
		r.deadline.Stop()
	}
	if err != nil {
		r.state = StateFailed
		return nil, fmt.Errorf("join chat %s: %w", inv.ChatID, err)
	}
	r.state = StateActive
	r.key = roomKey
	m.keyring[inv.ChatID] = roomKey
	return r, nil
}

// HandleJoined applies a user_joined broadcast to the local membership view.
func (m *Manager) HandleJoined(chatID, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[chatID]; ok {
		r.participants[username] = struct{}{}
	}
}

// HandleLeft applies a user_left broadcast: the departed username is removed
// from the membership view without touching the local user's own state.
func (m *Manager) HandleLeft(chatID, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[chatID]; ok {
		delete(r.participants, username)
	}
}

// Leave transitions Active → Left and discards the room's key material.
func (m *Manager) Leave(chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[chatID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRoom, chatID)
	}
	if r.state != StateActive {
		return fmt.Errorf("%w: %s is %s", ErrNotActive, chatID, r.state)
	}
	r.state = StateLeft
	delete(r.participants, m.ident.Username)
	zero(r.key)
	r.key = nil
	zero(m.keyring[chatID])
	delete(m.keyring, chatID)
	return nil
}

// Key returns the room key for an active room.
func (m *Manager) Key(chatID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keyring[chatID]
	if !ok {
		return nil, fmt.Errorf("%w: no key for %s", ErrNotActive, chatID)
	}
	return key, nil
}

// Room returns the room for chatID, if known.
func (m *Manager) Room(chatID string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[chatID]
	return r, ok
}

// takePending pops the oldest Pending placeholder matching the invitation's
// initiator. Caller holds m.mu.
func (m *Manager) takePending(inv transport.ChatInvitation) *Room {
	if inv.Initiator != m.ident.Username {
		return nil
	}
	for i, r := range m.pending {
		if r.state == StatePending {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return r
		}
	}
	return nil
}

func (m *Manager) expire(r *Room) {
	m.mu.Lock()
	if r.state != StatePending && r.state != StateJoining {
		m.mu.Unlock()
		return
	}
	r.state = StateFailed
	chatID := r.ID
	cb := m.OnFailure
	m.mu.Unlock()
	if cb != nil {
		cb(chatID, fmt.Errorf("%w after %s", ErrExpired, m.timeout))
	}
}

func memberSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Package room owns the chat-room lifecycle: invitation, key recovery,
// membership tracking and teardown, one state machine per room id.
package room

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// State is a room's position in the invite → join → active → leave lifecycle.
type State int

const (
	StatePending State = iota // invitations sent, no invitation received back yet
	StateJoining              // invitation received, key unwrap in progress
	StateActive               // room key held, can send and receive
	StateLeft                 // terminal, local user departed
	StateFailed               // terminal, unwrap failure or invitation expiry
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateLeft:
		return "left"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Room is the local view of one chat room. All mutation goes through the
// Manager, which holds mu while it writes; the read accessors take the same
// lock so a room handed out to another goroutine stays safe to poll while
// membership broadcasts are applied.
type Room struct {
	ID        string
	Initiator string

	mu           *sync.Mutex // the owning manager's lock
	state        State
	participants map[string]struct{}
	key          []byte
	deadline     *time.Timer
	createdAt    time.Time
}

// State returns the room's lifecycle state.
func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Participants returns a copy of the current membership view.
func (r *Room) Participants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.participants))
	for name := range r.participants {
		out = append(out, name)
	}
	return out
}

// Has reports whether username is in the local membership view.
func (r *Room) Has(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.participants[username]
	return ok
}

// PartialDeliveryError reports that some invitees were unreachable. The room
// stays active for everyone else; the initiator may retry or proceed.
type PartialDeliveryError struct {
	ChatID  string
	Offline []string
	Reason  string
}

func (e *PartialDeliveryError) Error() string {
	return fmt.Sprintf("partial delivery for chat %s: %s (offline: %s)",
		e.ChatID, e.Reason, strings.Join(e.Offline, ", "))
}

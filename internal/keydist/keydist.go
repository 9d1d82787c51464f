// Package keydist implements hybrid key distribution for a chat room: a fresh
// symmetric room key is wrapped with each participant's public key so only the
// invited set can ever read the room.
package keydist

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"slices"

	"cryptochat/internal/crypto"
	"cryptochat/internal/identity"
)

var (
	// ErrInvalidInvite signals an empty or self-only invitee list.
	ErrInvalidInvite = errors.New("invalid invitation")

	// ErrKeyDistribution signals a failed room-key unwrap. The caller must
	// surface it; an invitation without a recoverable key is not joinable.
	ErrKeyDistribution = errors.New("key distribution failed")
)

// PublicKeyLookup resolves a username's current public key via the directory.
type PublicKeyLookup func(username string) (*rsa.PublicKey, error)

// KeyEnvelope carries the room key wrapped for exactly one recipient. It is
// produced once at invitation time and consumed once by its recipient.
type KeyEnvelope struct {
	Recipient  string
	WrappedKey []byte
}

// Offer is the initiator's side of a new room before the relay assigns an id.
type Offer struct {
	Initiator    string
	Participants []string
	Envelopes    []KeyEnvelope
	// Unresolved lists invitees whose public key could not be looked up.
	// They get no envelope; the room proceeds without them.
	Unresolved []string
}

// InitiateRoom generates a fresh 256-bit room key and wraps it for every
// participant, the initiator included, so the join path is uniform: everyone
// recovers the key from their own envelope. Individual lookup failures are
// collected in Offer.Unresolved instead of aborting the room.
func InitiateRoom(initiator *identity.Identity, invitees []string, lookup PublicKeyLookup) (*Offer, error) {
	members := dedupe(initiator.Username, invitees)
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: no invitees", ErrInvalidInvite)
	}

	roomKey, err := crypto.GenerateRoomKey()
	if err != nil {
		return nil, err
	}

	offer := &Offer{
		Initiator:    initiator.Username,
		Participants: append([]string{initiator.Username}, members...),
	}

	selfWrapped, err := crypto.WrapKey(roomKey, initiator.Public)
	if err != nil {
		return nil, fmt.Errorf("wrap room key for initiator: %w", err)
	}
	offer.Envelopes = append(offer.Envelopes, KeyEnvelope{Recipient: initiator.Username, WrappedKey: selfWrapped})

	for _, invitee := range members {
		pub, err := lookup(invitee)
		if err != nil {
			offer.Unresolved = append(offer.Unresolved, invitee)
			continue
		}
		wrapped, err := crypto.WrapKey(roomKey, pub)
		if err != nil {
			offer.Unresolved = append(offer.Unresolved, invitee)
			continue
		}
		offer.Envelopes = append(offer.Envelopes, KeyEnvelope{Recipient: invitee, WrappedKey: wrapped})
	}
	return offer, nil
}

// AcceptInvitation unwraps an incoming key envelope with the local private
// key. Failures are never masked with a substitute key.
func AcceptInvitation(wrappedKey []byte, ident *identity.Identity) ([]byte, error) {
	roomKey, err := crypto.UnwrapKey(wrappedKey, ident.Private)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDistribution, err)
	}
	return roomKey, nil
}

// dedupe drops duplicates and the initiator from the invitee list while
// keeping invitation order.
func dedupe(initiator string, invitees []string) []string {
	var out []string
	for _, name := range invitees {
		if name == "" || name == initiator || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

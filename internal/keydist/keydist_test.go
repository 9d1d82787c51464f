package keydist

import (
	"crypto/rsa"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"cryptochat/internal/identity"
)

func testLookup(idents map[string]*identity.Identity) PublicKeyLookup {
	return func(username string) (*rsa.PublicKey, error) {
		ident, ok := idents[username]
		if !ok {
			return nil, fmt.Errorf("no such user %s", username)
		}
		return ident.Public, nil
	}
}

func TestInitiateRoomWrapsForEveryParticipant(t *testing.T) {
	alice, err := identity.New("alice")
	require.NoError(t, err)
	bob, err := identity.New("bob")
	require.NoError(t, err)
	carol, err := identity.New("carol")
	require.NoError(t, err)
	lookup := testLookup(map[string]*identity.Identity{"bob": bob, "carol": carol})

	offer, err := InitiateRoom(alice, []string{"bob", "carol"}, lookup)
	require.NoError(t, err)
	require.Equal(t, "alice", offer.Initiator)
	require.ElementsMatch(t, []string{"alice", "bob", "carol"}, offer.Participants)
	require.Empty(t, offer.Unresolved)

	// Exactly one envelope per participant, each unwrapping to the same key.
	require.Len(t, offer.Envelopes, 3)
	seen := map[string]int{}
	var firstKey []byte
	for _, env := range offer.Envelopes {
		seen[env.Recipient]++
		recipient := map[string]*identity.Identity{"alice": alice, "bob": bob, "carol": carol}[env.Recipient]
		key, err := AcceptInvitation(env.WrappedKey, recipient)
		require.NoError(t, err)
		require.Len(t, key, 32)
		if firstKey == nil {
			firstKey = key
		} else {
			require.Equal(t, firstKey, key)
		}
	}
	require.Equal(t, map[string]int{"alice": 1, "bob": 1, "carol": 1}, seen)
}

func TestInitiateRoomEmptyInvitees(t *testing.T) {
	alice, err := identity.New("alice")
	require.NoError(t, err)
	lookup := testLookup(nil)

	_, err = InitiateRoom(alice, nil, lookup)
	require.ErrorIs(t, err, ErrInvalidInvite)

	// Self-invitations and blanks collapse to an empty list too.
	_, err = InitiateRoom(alice, []string{"alice", ""}, lookup)
	require.ErrorIs(t, err, ErrInvalidInvite)
}

func TestInitiateRoomDeduplicatesInvitees(t *testing.T) {
	alice, err := identity.New("alice")
	require.NoError(t, err)
	bob, err := identity.New("bob")
	require.NoError(t, err)
	lookup := testLookup(map[string]*identity.Identity{"bob": bob})

	offer, err := InitiateRoom(alice, []string{"bob", "bob", "alice"}, lookup)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alice", "bob"}, offer.Participants)
	require.Len(t, offer.Envelopes, 2)
}

func TestInitiateRoomUnresolvedInviteeDoesNotAbort(t *testing.T) {
	alice, err := identity.New("alice")
	require.NoError(t, err)
	bob, err := identity.New("bob")
	require.NoError(t, err)
	lookup := testLookup(map[string]*identity.Identity{"bob": bob})

	offer, err := InitiateRoom(alice, []string{"bob", "ghost"}, lookup)
	require.NoError(t, err)
	require.Equal(t, []string{"ghost"}, offer.Unresolved)

	recipients := make([]string, 0, len(offer.Envelopes))
	for _, env := range offer.Envelopes {
		recipients = append(recipients, env.Recipient)
	}
	require.ElementsMatch(t, []string{"alice", "bob"}, recipients)
}

func TestAcceptInvitationWrongRecipient(t *testing.T) {
	alice, err := identity.New("alice")
	require.NoError(t, err)
	bob, err := identity.New("bob")
	require.NoError(t, err)
	eve, err := identity.New("eve")
	require.NoError(t, err)
	lookup := testLookup(map[string]*identity.Identity{"bob": bob})

	offer, err := InitiateRoom(alice, []string{"bob"}, lookup)
	require.NoError(t, err)

	var bobEnvelope KeyEnvelope
	for _, env := range offer.Envelopes {
		if env.Recipient == "bob" {
			bobEnvelope = env
		}
	}
	require.NotEmpty(t, bobEnvelope.WrappedKey)

	// Eve holds the ciphertext but not bob's private key.
	_, err = AcceptInvitation(bobEnvelope.WrappedKey, eve)
	require.ErrorIs(t, err, ErrKeyDistribution)
}

package room

import (
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cryptochat/internal/crypto"
	"cryptochat/internal/identity"
	"cryptochat/internal/keydist"
	"cryptochat/internal/transport"
)

func invitationFor(t *testing.T, recipient *identity.Identity, initiator string, participants []string) transport.ChatInvitation {
	t.Helper()
	key, err := crypto.GenerateRoomKey()
	require.NoError(t, err)
	wrapped, err := crypto.WrapKey(key, recipient.Public)
	require.NoError(t, err)
	return transport.ChatInvitation{
		ChatID:       "chat_test",
		Initiator:    initiator,
		Participants: participants,
		EncryptedKey: wrapped,
	}
}

func TestInviteeLifecycle(t *testing.T) {
	bob, err := identity.New("bob")
	require.NoError(t, err)
	m := NewManager(bob, 0)

	inv := invitationFor(t, bob, "alice", []string{"alice", "bob", "carol"})
	r, err := m.HandleInvitation(inv)
	require.NoError(t, err)
	require.Equal(t, StateActive, r.State())
	require.ElementsMatch(t, []string{"alice", "bob", "carol"}, r.Participants())

	key, err := m.Key("chat_test")
	require.NoError(t, err)
	require.Len(t, key, crypto.RoomKeyBytes)

	// Remote membership changes only touch the membership view.
	m.HandleJoined("chat_test", "dave")
	require.True(t, r.Has("dave"))
	m.HandleLeft("chat_test", "carol")
	require.False(t, r.Has("carol"))
	require.Equal(t, StateActive, r.State())

	// Local leave is terminal and discards the key.
	require.NoError(t, m.Leave("chat_test"))
	require.Equal(t, StateLeft, r.State())
	require.False(t, r.Has("bob"))
	_, err = m.Key("chat_test")
	require.ErrorIs(t, err, ErrNotActive)

	require.ErrorIs(t, m.Leave("chat_test"), ErrNotActive)
	require.ErrorIs(t, m.Leave("chat_nope"), ErrUnknownRoom)
}

func TestInitiatorOfferResolvesPending(t *testing.T) {
	alice, err := identity.New("alice")
	require.NoError(t, err)
	bob, err := identity.New("bob")
	require.NoError(t, err)
	m := NewManager(alice, 0)

	offer, err := keydist.InitiateRoom(alice, []string{"bob"}, func(name string) (*rsa.PublicKey, error) {
		require.Equal(t, "bob", name)
		return bob.Public, nil
	})
	require.NoError(t, err)
	m.BeginOffer(offer)

	var selfWrapped []byte
	for _, env := range offer.Envelopes {
		if env.Recipient == "alice" {
			selfWrapped = env.WrappedKey
		}
	}
	require.NotNil(t, selfWrapped)

	// The relay assigns the id and echoes the invitation back to the initiator.
	r, err := m.HandleInvitation(transport.ChatInvitation{
		ChatID:       "chat_echo",
		Initiator:    "alice",
		Participants: offer.Participants,
		EncryptedKey: selfWrapped,
	})
	require.NoError(t, err)
	require.Equal(t, StateActive, r.State())
	require.Equal(t, "chat_echo", r.ID)

	got, ok := m.Room("chat_echo")
	require.True(t, ok)
	require.Same(t, r, got)

	_, err = m.Key("chat_echo")
	require.NoError(t, err)
}

func TestInvitationBadEnvelopeFails(t *testing.T) {
	bob, err := identity.New("bob")
	require.NoError(t, err)
	m := NewManager(bob, 0)

	_, err = m.HandleInvitation(transport.ChatInvitation{
		ChatID:       "chat_bad",
		Initiator:    "alice",
		Participants: []string{"alice", "bob"},
		EncryptedKey: []byte("not an envelope"),
	})
	require.ErrorIs(t, err, keydist.ErrKeyDistribution)

	r, ok := m.Room("chat_bad")
	require.True(t, ok)
	require.Equal(t, StateFailed, r.State())
	_, err = m.Key("chat_bad")
	require.ErrorIs(t, err, ErrNotActive)
}

func TestMembershipReadsDuringBroadcasts(t *testing.T) {
	bob, err := identity.New("bob")
	require.NoError(t, err)
	m := NewManager(bob, 0)

	inv := invitationFor(t, bob, "alice", []string{"alice", "bob"})
	r, err := m.HandleInvitation(inv)
	require.NoError(t, err)

	// Poll the room while another goroutine applies membership broadcasts,
	// the way a caller holding a Session.Room result would.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 500 {
			m.HandleJoined("chat_test", "carol")
			m.HandleLeft("chat_test", "carol")
		}
	}()
	for range 500 {
		_ = r.Has("alice")
		_ = r.Participants()
		_ = r.State()
	}
	<-done

	require.True(t, r.Has("alice"))
	require.False(t, r.Has("carol"))
}

func TestOfferExpiryReportsFailure(t *testing.T) {
	alice, err := identity.New("alice")
	require.NoError(t, err)
	m := NewManager(alice, 20*time.Millisecond)

	failures := make(chan error, 1)
	m.OnFailure = func(chatID string, err error) {
		failures <- err
	}

	offer, err := keydist.InitiateRoom(alice, []string{"bob"}, func(string) (*rsa.PublicKey, error) {
		return alice.Public, nil
	})
	require.NoError(t, err)
	m.BeginOffer(offer)

	select {
	case err := <-failures:
		require.ErrorIs(t, err, ErrExpired)
	case <-time.After(2 * time.Second):
		t.Fatal("expiry never reported")
	}
}

package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cryptochat/internal/crypto"
	"cryptochat/internal/identity"
)

func newTestIdentity(t *testing.T, name string) *identity.Identity {
	t.Helper()
	ident, err := identity.New(name)
	require.NoError(t, err)
	return ident
}

func TestEncodeDecodeConsistency(t *testing.T) {
	alice := newTestIdentity(t, "alice")
	key, err := crypto.GenerateRoomKey()
	require.NoError(t, err)

	for _, scheme := range []crypto.Scheme{crypto.SchemeRSA, crypto.SchemeDSA} {
		env, err := Encode("hello", "chat_1", key, alice, scheme)
		require.NoError(t, err)
		require.Equal(t, "alice", env.Sender)
		require.Equal(t, scheme, env.SignatureType)
		require.False(t, env.Timestamp.IsZero())

		text, verified, err := Decode(env, key, alice.Public)
		require.NoError(t, err)
		require.Equal(t, "hello", text)
		require.True(t, verified)
	}
}

func TestDecodeWrongSenderKeyUnverified(t *testing.T) {
	alice := newTestIdentity(t, "alice")
	mallory := newTestIdentity(t, "mallory")
	key, err := crypto.GenerateRoomKey()
	require.NoError(t, err)

	env, err := Encode("hello", "chat_1", key, alice, crypto.SchemeRSA)
	require.NoError(t, err)

	// The message is still readable, just not authentic.
	text, verified, err := Decode(env, key, mallory.Public)
	require.NoError(t, err)
	require.Equal(t, "hello", text)
	require.False(t, verified)
}

func TestDecodeTamperedCiphertext(t *testing.T) {
	alice := newTestIdentity(t, "alice")
	key, err := crypto.GenerateRoomKey()
	require.NoError(t, err)

	env, err := Encode("hello", "chat_1", key, alice, crypto.SchemeRSA)
	require.NoError(t, err)

	// One flipped bit must never come back as a verified message: with an
	// AEAD it surfaces as unreadable.
	env.EncryptedMessage[len(env.EncryptedMessage)-1] ^= 0x01
	_, verified, err := Decode(env, key, alice.Public)
	require.ErrorIs(t, err, ErrUnreadable)
	require.False(t, verified)
}

func TestDecodeWrongRoomKey(t *testing.T) {
	alice := newTestIdentity(t, "alice")
	key, err := crypto.GenerateRoomKey()
	require.NoError(t, err)
	otherKey, err := crypto.GenerateRoomKey()
	require.NoError(t, err)

	env, err := Encode("hello", "chat_1", key, alice, crypto.SchemeDSA)
	require.NoError(t, err)

	_, _, err = Decode(env, otherKey, alice.Public)
	require.ErrorIs(t, err, ErrUnreadable)
}

func TestDecodeNilSenderKeyFailsClosed(t *testing.T) {
	alice := newTestIdentity(t, "alice")
	key, err := crypto.GenerateRoomKey()
	require.NoError(t, err)

	env, err := Encode("hello", "chat_1", key, alice, crypto.SchemeRSA)
	require.NoError(t, err)

	text, verified, err := Decode(env, key, nil)
	require.NoError(t, err)
	require.Equal(t, "hello", text)
	require.False(t, verified)
}

package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSymmetricRoundTrip(t *testing.T) {
	key, err := GenerateRoomKey()
	require.NoError(t, err)

	for _, plaintext := range []string{"", "hi", "a longer message with spaces and ünicode ☺"} {
		ct, err := Encrypt([]byte(plaintext), key)
		require.NoError(t, err)

		pt, err := Decrypt(ct, key)
		require.NoError(t, err)
		require.Equal(t, plaintext, string(pt))
	}
}

func TestSymmetricFreshNonce(t *testing.T) {
	key, err := GenerateRoomKey()
	require.NoError(t, err)

	// Identical plaintexts must never produce identical ciphertexts.
	a, err := Encrypt([]byte("same message"), key)
	require.NoError(t, err)
	b, err := Encrypt([]byte("same message"), key)
	require.NoError(t, err)
	require.False(t, bytes.Equal(a, b))
}

func TestSymmetricTamperDetected(t *testing.T) {
	key, err := GenerateRoomKey()
	require.NoError(t, err)
	ct, err := Encrypt([]byte("authentic"), key)
	require.NoError(t, err)

	ct[len(ct)-1] ^= 0x01
	_, err = Decrypt(ct, key)
	require.ErrorIs(t, err, ErrDecryption)
}

func TestSymmetricBadKeySize(t *testing.T) {
	_, err := Encrypt([]byte("x"), []byte("short"))
	require.ErrorIs(t, err, ErrKeyFormat)
}

func TestWrapRoundTrip(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)
	key, err := GenerateRoomKey()
	require.NoError(t, err)

	wrapped, err := WrapKey(key, &priv.PublicKey)
	require.NoError(t, err)
	require.NotEqual(t, key, wrapped)

	unwrapped, err := UnwrapKey(wrapped, priv)
	require.NoError(t, err)
	require.Equal(t, key, unwrapped)
}

func TestUnwrapWrongKeyFails(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	mallory, err := GenerateKeyPair()
	require.NoError(t, err)
	key, err := GenerateRoomKey()
	require.NoError(t, err)

	wrapped, err := WrapKey(key, &alice.PublicKey)
	require.NoError(t, err)

	// The wrong private key must error out, never yield a substitute key.
	_, err = UnwrapKey(wrapped, mallory)
	require.ErrorIs(t, err, ErrDecryption)
}

func TestWrapRejectsBadRoomKey(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)
	_, err = WrapKey([]byte("too short"), &priv.PublicKey)
	require.ErrorIs(t, err, ErrKeyFormat)
}

func TestSignVerifyBothSchemes(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)
	msg := []byte("attack at dawn")

	for _, scheme := range []Scheme{SchemeRSA, SchemeDSA} {
		sig, err := Sign(msg, priv, scheme)
		require.NoError(t, err)
		require.True(t, Verify(msg, sig, &priv.PublicKey, scheme))

		// Tampered message.
		require.False(t, Verify([]byte("attack at dusk"), sig, &priv.PublicKey, scheme))

		// Mismatched key pair.
		other, err := GenerateKeyPair()
		require.NoError(t, err)
		require.False(t, Verify(msg, sig, &other.PublicKey, scheme))

		// Signatures are not interchangeable across schemes.
		otherScheme := SchemeDSA
		if scheme == SchemeDSA {
			otherScheme = SchemeRSA
		}
		require.False(t, Verify(msg, sig, &priv.PublicKey, otherScheme))
	}
}

func TestVerifyNeverPanics(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)

	require.False(t, Verify([]byte("m"), nil, &priv.PublicKey, SchemeRSA))
	require.False(t, Verify([]byte("m"), []byte("garbage"), &priv.PublicKey, SchemeDSA))
	require.False(t, Verify([]byte("m"), []byte("garbage"), nil, SchemeRSA))
	require.False(t, Verify([]byte("m"), []byte("garbage"), &priv.PublicKey, Scheme("ECDSA")))
}

func TestUnknownSchemeRejectedOnSign(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)
	_, err = Sign([]byte("m"), priv, Scheme("ECDSA"))
	require.ErrorIs(t, err, ErrUnknownScheme)
}

func TestPEMRoundTrip(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)

	privPEM, err := MarshalPrivateKey(priv)
	require.NoError(t, err)
	pubPEM, err := MarshalPublicKey(&priv.PublicKey)
	require.NoError(t, err)

	parsedPriv, err := ParsePrivateKey(privPEM)
	require.NoError(t, err)
	require.True(t, priv.Equal(parsedPriv))

	parsedPub, err := ParsePublicKey(pubPEM)
	require.NoError(t, err)
	require.True(t, priv.PublicKey.Equal(parsedPub))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := ParsePrivateKey([]byte("not pem"))
	require.ErrorIs(t, err, ErrKeyFormat)
	_, err = ParsePublicKey([]byte("not pem"))
	require.ErrorIs(t, err, ErrKeyFormat)
}

package identity

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cryptochat/internal/crypto"
)

func TestSealUnsealRoundTrip(t *testing.T) {
	ident, err := New("alice")
	require.NoError(t, err)
	privPEM, err := crypto.MarshalPrivateKey(ident.Private)
	require.NoError(t, err)

	sealed, salt, err := SealPrivateKey(privPEM, "s3cret!pass")
	require.NoError(t, err)
	require.Len(t, salt, sealSaltBytes)
	require.NotEqual(t, privPEM, sealed)

	got, err := UnsealPrivateKey(sealed, salt, "s3cret!pass")
	require.NoError(t, err)
	require.Equal(t, privPEM, got)
}

func TestUnsealWrongPasswordFails(t *testing.T) {
	ident, err := New("alice")
	require.NoError(t, err)
	privPEM, err := crypto.MarshalPrivateKey(ident.Private)
	require.NoError(t, err)

	sealed, salt, err := SealPrivateKey(privPEM, "s3cret!pass")
	require.NoError(t, err)

	_, err = UnsealPrivateKey(sealed, salt, "wrong!password")
	require.ErrorIs(t, err, crypto.ErrDecryption)
}

func TestJWKRoundTrip(t *testing.T) {
	ident, err := New("bob")
	require.NoError(t, err)

	raw, err := PublicKeyToJWK("bob", ident.Public)
	require.NoError(t, err)

	pub, err := PublicKeyFromJWK(raw)
	require.NoError(t, err)
	require.True(t, pub.Equal(ident.Public))
}

func TestFromPEM(t *testing.T) {
	ident, err := New("carol")
	require.NoError(t, err)

	privPEM, err := crypto.MarshalPrivateKey(ident.Private)
	require.NoError(t, err)
	pubPEM, err := crypto.MarshalPublicKey(ident.Public)
	require.NoError(t, err)

	got, err := FromPEM("carol", privPEM, pubPEM)
	require.NoError(t, err)
	require.Equal(t, "carol", got.Username)
	require.True(t, got.Private.Equal(ident.Private))

	_, err = FromPEM("carol", []byte("garbage"), pubPEM)
	require.ErrorIs(t, err, crypto.ErrKeyFormat)
}

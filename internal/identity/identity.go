// Package identity holds a participant's key material and the codecs used to
// move it between the directory, the wire and at-rest storage.
package identity

import (
	"crypto/rsa"
	"fmt"

	"cryptochat/internal/crypto"
)

// Identity is the local user's key material for one session. The private key
// never leaves the client except sealed under the account password.
type Identity struct {
	Username string
	Private  *rsa.PrivateKey
	Public   *rsa.PublicKey
}

// New generates a fresh identity for username.
func New(username string) (*Identity, error) {
	priv, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &Identity{Username: username, Private: priv, Public: &priv.PublicKey}, nil
}

// FromPEM rebuilds an identity from login material.
func FromPEM(username string, privatePEM, publicPEM []byte) (*Identity, error) {
	priv, err := crypto.ParsePrivateKey(privatePEM)
	if err != nil {
		return nil, fmt.Errorf("identity private key: %w", err)
	}
	pub, err := crypto.ParsePublicKey(publicPEM)
	if err != nil {
		return nil, fmt.Errorf("identity public key: %w", err)
	}
	return &Identity{Username: username, Private: priv, Public: pub}, nil
}

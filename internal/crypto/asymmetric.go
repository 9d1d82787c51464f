package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// WrapKey encrypts a room key for a recipient using RSA-OAEP with SHA-256.
func WrapKey(key []byte, pub *rsa.PublicKey) ([]byte, error) {
	if pub == nil || pub.N == nil {
		return nil, fmt.Errorf("%w: nil public key", ErrKeyFormat)
	}
	if len(key) != RoomKeyBytes {
		return nil, fmt.Errorf("%w: room key must be %d bytes, got %d", ErrKeyFormat, RoomKeyBytes, len(key))
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return nil, fmt.Errorf("wrap room key: %w", err)
	}
	return wrapped, nil
}

// UnwrapKey decrypts a wrapped room key with the local private key. A padding
// mismatch or malformed key yields ErrDecryption; the caller must abort rather
// than proceed with a substitute key.
func UnwrapKey(wrapped []byte, priv *rsa.PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: nil private key", ErrKeyFormat)
	}
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if len(key) != RoomKeyBytes {
		return nil, fmt.Errorf("%w: unwrapped key has %d bytes", ErrDecryption, len(key))
	}
	return key, nil
}

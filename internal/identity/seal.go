package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"cryptochat/internal/crypto"
)

const (
	sealSaltBytes  = 16
	sealIterations = 100_000
	sealKeyBytes   = 32
)

// SealPrivateKey encrypts a PEM private key under a password-derived key so
// the directory can store it without ever holding it in the clear. PBKDF2 with
// SHA-256 feeds an AES-256-GCM seal.
func SealPrivateKey(privatePEM []byte, password string) (sealed, salt []byte, err error) {
	salt = make([]byte, sealSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("generate salt: %w", err)
	}
	kek := pbkdf2.Key([]byte(password), salt, sealIterations, sealKeyBytes, sha256.New)
	sealed, err = crypto.Encrypt(privatePEM, kek)
	if err != nil {
		return nil, nil, fmt.Errorf("seal private key: %w", err)
	}
	return sealed, salt, nil
}

// UnsealPrivateKey reverses SealPrivateKey. A wrong password surfaces as
// crypto.ErrDecryption.
func UnsealPrivateKey(sealed, salt []byte, password string) ([]byte, error) {
	kek := pbkdf2.Key([]byte(password), salt, sealIterations, sealKeyBytes, sha256.New)
	pemBytes, err := crypto.Decrypt(sealed, kek)
	if err != nil {
		return nil, fmt.Errorf("unseal private key: %w", err)
	}
	return pemBytes, nil
}

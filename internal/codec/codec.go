// Package codec turns plaintext into signed ciphertext envelopes and back.
package codec

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"cryptochat/internal/crypto"
	"cryptochat/internal/identity"
	"cryptochat/internal/transport"
)

// ErrUnreadable signals that the envelope could not be decrypted at all. It is
// distinct from a failed signature: an unreadable message has no plaintext to
// show, an unverified one is shown but flagged.
var ErrUnreadable = errors.New("message unreadable")

// Encode encrypts plaintext under the room key and signs the plaintext with
// the chosen scheme. Signing the plaintext rather than the ciphertext means
// authenticity survives re-encryption, and any ciphertext tampering surfaces
// as a verification failure after decryption.
func Encode(plaintext string, chatID string, roomKey []byte, sender *identity.Identity, scheme crypto.Scheme) (*transport.MessageEnvelope, error) {
	ciphertext, err := crypto.Encrypt([]byte(plaintext), roomKey)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	sig, err := crypto.Sign([]byte(plaintext), sender.Private, scheme)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return &transport.MessageEnvelope{
		ChatID:           chatID,
		Sender:           sender.Username,
		EncryptedMessage: ciphertext,
		Signature:        sig,
		SignatureType:    scheme,
		Timestamp:        time.Now().UTC(),
	}, nil
}

// Decode decrypts the envelope and verifies the recovered plaintext against
// the sender's public key. A decryption failure yields ErrUnreadable; a bad
// signature yields the plaintext with verified == false, never a silent drop.
func Decode(env *transport.MessageEnvelope, roomKey []byte, senderPub *rsa.PublicKey) (plaintext string, verified bool, err error) {
	raw, err := crypto.Decrypt(env.EncryptedMessage, roomKey)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	verified = crypto.Verify(raw, env.Signature, senderPub, env.SignatureType)
	return string(raw), verified, nil
}

package crypto

import "errors"

var (
	// ErrKeyFormat signals key material that could not be parsed or has the
	// wrong size. Fatal to the operation, never to the session.
	ErrKeyFormat = errors.New("malformed key material")

	// ErrDecryption signals an OAEP padding or AEAD tag mismatch. Callers must
	// surface it; substituting a placeholder key is forbidden.
	ErrDecryption = errors.New("decryption failed")

	ErrSigning       = errors.New("signing failed")
	ErrUnknownScheme = errors.New("unknown signature scheme")
)

package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// Scheme selects the per-message signature variant. Both reduce to
// hash-then-sign over SHA-256 with the sender's RSA key pair; SchemeDSA keeps
// the wire label of the reference protocol but is RSASSA-PSS rather than FIPS
// DSA, which would need a second key pair per identity.
type Scheme string

const (
	SchemeRSA Scheme = "RSA" // RSASSA-PKCS1v15
	SchemeDSA Scheme = "DSA" // RSASSA-PSS
)

// Valid reports whether s names a known scheme.
func (s Scheme) Valid() bool { return s == SchemeRSA || s == SchemeDSA }

var pssOpts = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}

// Sign signs message with the scheme's variant.
func Sign(message []byte, priv *rsa.PrivateKey, scheme Scheme) ([]byte, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: nil private key", ErrKeyFormat)
	}
	digest := sha256.Sum256(message)
	switch scheme {
	case SchemeRSA:
		sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSigning, err)
		}
		return sig, nil
	case SchemeDSA:
		sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], pssOpts)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSigning, err)
		}
		return sig, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
}

// Verify reports whether sig is a valid signature over message. It never
// panics or returns an error; any malformed input verifies as false.
func Verify(message, sig []byte, pub *rsa.PublicKey, scheme Scheme) bool {
	if pub == nil || pub.N == nil || len(sig) == 0 {
		return false
	}
	digest := sha256.Sum256(message)
	switch scheme {
	case SchemeRSA:
		return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig) == nil
	case SchemeDSA:
		return rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, pssOpts) == nil
	default:
		return false
	}
}

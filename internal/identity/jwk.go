package identity

import (
	"crypto/rsa"
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

// PublicKeyToJWK serializes an RSA public key as a JWK for the directory API.
func PublicKeyToJWK(username string, pub *rsa.PublicKey) ([]byte, error) {
	jwk := jose.JSONWebKey{Key: pub, KeyID: username, Use: "enc"}
	out, err := jwk.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal public jwk: %w", err)
	}
	return out, nil
}

// PublicKeyFromJWK parses a directory JWK back into an RSA public key.
func PublicKeyFromJWK(jwkBytes []byte) (*rsa.PublicKey, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(jwkBytes); err != nil {
		return nil, fmt.Errorf("parse jwk: %w", err)
	}
	if !jwk.IsPublic() {
		return nil, fmt.Errorf("jwk is not a public key")
	}
	pub, ok := jwk.Key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unsupported jwk key type: %T", jwk.Key)
	}
	return pub, nil
}

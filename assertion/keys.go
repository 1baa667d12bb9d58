// Package assertion mints signed identity assertions and exchanges them for
// OAuth access tokens. An assertion bundle pairs a short-lived certificate,
// strongly bound to the account's current state, with a long-lived bearer
// assertion that tolerates client clock skew.
package assertion

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// JWK represents a JSON Web Key.
type JWK struct {
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// PublicKeyToJWK converts an RSA public key to a JWK.
func PublicKeyToJWK(key *rsa.PublicKey, kid string) JWK {
	n := base64.RawURLEncoding.EncodeToString(key.N.Bytes())

	// Encode E as base64url per RFC 7518
	eBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(eBytes, uint32(key.E))

	// Trim leading zeros
	start := 0
	for start < len(eBytes) && eBytes[start] == 0 {
		start++
	}
	eStr := base64.RawURLEncoding.EncodeToString(eBytes[start:])

	return JWK{
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		Kid: kid,
		N:   n,
		E:   eStr,
	}
}

// LoadSigningKey reads an RSA private key from a PEM file.
func LoadSigningKey(path string) (*rsa.PrivateKey, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("assertion: read signing key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("assertion: parse signing key: %w", err)
	}
	return key, nil
}

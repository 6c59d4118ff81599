// Package cryptox holds the random and password primitives: stream key
// generation, state secrets and bcrypt password hashes.
package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// KeySize is the number of random bytes in a generated stream key.
const KeySize = 12

// SecretSize is the length of the signing secret stored with the state.
const SecretSize = 32

var urlSafe = strings.NewReplacer("+", "-", "/", "_")

// EncodeKey encodes raw key bytes as base64 with '+' and '/' replaced by
// '-' and '_' so the key can be used in a publish URL unescaped.
func EncodeKey(b []byte) string {
	return urlSafe.Replace(base64.StdEncoding.EncodeToString(b))
}

// NewKey reads KeySize bytes from r and encodes them.
func NewKey(r io.Reader) (string, error) {
	b := make([]byte, KeySize)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("read random key: %w", err)
	}
	return EncodeKey(b), nil
}

// GenerateKey returns a fresh stream key from crypto/rand.
func GenerateKey() (string, error) {
	return NewKey(rand.Reader)
}

// GenerateSecret returns size random bytes.
func GenerateSecret(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read random secret: %w", err)
	}
	return b, nil
}

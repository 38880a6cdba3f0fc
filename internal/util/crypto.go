package util

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const tokenBytes = 16

// GenerateToken returns a fresh random hex token, used for idempotency keys
// and correlation ids.
func GenerateToken() (string, error) {
	bytes := make([]byte, tokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func HmacSHA256(secret, data string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// DeriveEncryptionKey stretches a configured secret into a 32-byte AES key
// via scrypt. The salt scopes the key, so per-record salts give every record
// its own key from one secret.
func DeriveEncryptionKey(secret, salt string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("derive encryption key: secret is empty")
	}
	key, err := scrypt.Key([]byte(secret), []byte(salt), 1<<15, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}
	return key, nil
}

// MaskKey renders key material safe for logs.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:8] + "****"
}

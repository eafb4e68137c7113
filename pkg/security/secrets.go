package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// SecretsEqual compares two secrets without leaking their length or the
// position of the first mismatch. Both inputs are reduced to fixed-size
// digests before the constant-time comparison runs. Empty values never match.
func SecretsEqual(provided, expected string) bool {
	if provided == "" || expected == "" {
		return false
	}
	a := blake2b.Sum256([]byte(provided))
	b := blake2b.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// HMACSHA256 returns the raw HMAC-SHA256 of message under key.
func HMACSHA256(key []byte, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}

// HMACSHA256Hex returns the lowercase hex HMAC-SHA256 of message under key.
func HMACSHA256Hex(key, message string) string {
	return hex.EncodeToString(HMACSHA256([]byte(key), []byte(message)))
}

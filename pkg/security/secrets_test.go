package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSecretsEqual(t *testing.T) {
	secret := "internal-shared-secret-value"

	require.True(t, SecretsEqual(secret, secret))
	require.False(t, SecretsEqual(secret+"x", secret), "length mismatch must be rejected")
	require.False(t, SecretsEqual("internal", secret), "prefix must be rejected")
	require.False(t, SecretsEqual("internal-shared-secret-valuE", secret), "last byte mismatch must be rejected")
	require.False(t, SecretsEqual("", secret))
	require.False(t, SecretsEqual("", ""), "empty configured secret must never authorize")
}

func TestHMACSHA256Hex(t *testing.T) {
	// RFC 4231 test case 2
	got := HMACSHA256Hex("Jefe", "what do ya want for nothing?")
	require.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", got)
}

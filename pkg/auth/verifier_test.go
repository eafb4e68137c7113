package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/lessongate-backend/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://clerk.lessongate.test"

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func publicPEM(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims SessionClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func validClaims(now time.Time) SessionClaims {
	return SessionClaims{
		Email:           "learner@example.com",
		AuthorizedParty: "https://app.lessongate.test",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "user_123",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
}

func TestPEMVerifier(t *testing.T) {
	key := newKey(t)
	verifier, err := NewPEMVerifier(publicPEM(t, key), testIssuer, []string{"https://app.lessongate.test"})
	require.NoError(t, err)

	claims, err := verifier.Verify(context.Background(), signToken(t, key, validClaims(time.Now())))
	require.NoError(t, err)
	require.Equal(t, "user_123", claims.ExternalSubject())
	require.Equal(t, "learner@example.com", claims.Email)

	expired := validClaims(time.Now().Add(-time.Hour))
	_, err = verifier.Verify(context.Background(), signToken(t, key, expired))
	require.ErrorIs(t, err, ErrTokenInvalid)

	wrongIssuer := validClaims(time.Now())
	wrongIssuer.Issuer = "https://evil.test"
	_, err = verifier.Verify(context.Background(), signToken(t, key, wrongIssuer))
	require.ErrorIs(t, err, ErrTokenInvalid)

	otherKey := newKey(t)
	_, err = verifier.Verify(context.Background(), signToken(t, otherKey, validClaims(time.Now())))
	require.ErrorIs(t, err, ErrTokenInvalid)

	wrongParty := validClaims(time.Now())
	wrongParty.AuthorizedParty = "https://phish.test"
	_, err = verifier.Verify(context.Background(), signToken(t, key, wrongParty))
	require.True(t, errors.Is(err, ErrPartyMismatch))
}

func TestPEMVerifierRejectsHMACTokens(t *testing.T) {
	key := newKey(t)
	verifier, err := NewPEMVerifier(publicPEM(t, key), testIssuer, nil)
	require.NoError(t, err)

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims(time.Now()))
	signed, err := hs.SignedString([]byte(publicPEM(t, key)))
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), signed)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestJWKSVerifier(t *testing.T) {
	key := newKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "test-key",
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	}))
	defer srv.Close()

	verifier, err := NewVerifier(context.Background(), config.AuthConfig{Issuer: testIssuer, JWKSURL: srv.URL})
	require.NoError(t, err)

	claims, err := verifier.Verify(context.Background(), signToken(t, key, validClaims(time.Now())))
	require.NoError(t, err)
	require.Equal(t, "user_123", claims.ExternalSubject())

	_, err = verifier.Verify(context.Background(), signToken(t, newKey(t), validClaims(time.Now())))
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestNewVerifierRequiresKeyMaterial(t *testing.T) {
	_, err := NewVerifier(context.Background(), config.AuthConfig{Issuer: testIssuer})
	require.Error(t, err)
	_, err = NewVerifier(context.Background(), config.AuthConfig{})
	require.Error(t, err)
}

package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/angelmondragon/lessongate-backend/pkg/config"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

const clockLeeway = 5 * time.Second

var (
	ErrTokenInvalid   = errors.New("session token invalid")
	ErrPartyMismatch  = errors.New("session token authorized party not allowed")
	errNoVerification = errors.New("either a JWKS url or a public key pem is required")
)

// Verifier validates bearer session tokens.
type Verifier interface {
	Verify(ctx context.Context, raw string) (*SessionClaims, error)
}

// NewVerifier picks the networkless PEM verifier when a key is configured and
// falls back to fetching the issuer's JWKS.
func NewVerifier(ctx context.Context, cfg config.AuthConfig) (Verifier, error) {
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, fmt.Errorf("auth issuer is required")
	}
	if pem := strings.TrimSpace(cfg.PublicKeyPEM); pem != "" {
		return NewPEMVerifier(pem, cfg.Issuer, cfg.AuthorizedParty)
	}
	if jwks := strings.TrimSpace(cfg.JWKSURL); jwks != "" {
		return NewJWKSVerifier(ctx, jwks, cfg.Issuer, cfg.AuthorizedParty), nil
	}
	return nil, errNoVerification
}

// JWKSVerifier checks tokens against the issuer's remote key set.
type JWKSVerifier struct {
	verifier *oidc.IDTokenVerifier
	parties  []string
}

// NewJWKSVerifier builds a verifier backed by a cached remote key set.
func NewJWKSVerifier(ctx context.Context, jwksURL, issuer string, parties []string) *JWKSVerifier {
	keySet := oidc.NewRemoteKeySet(ctx, jwksURL)
	verifier := oidc.NewVerifier(issuer, keySet, &oidc.Config{
		SkipClientIDCheck: true,
	})
	return &JWKSVerifier{verifier: verifier, parties: parties}
}

func (v *JWKSVerifier) Verify(ctx context.Context, raw string) (*SessionClaims, error) {
	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	claims := &SessionClaims{}
	if err := token.Claims(claims); err != nil {
		return nil, fmt.Errorf("%w: decoding claims: %v", ErrTokenInvalid, err)
	}
	if claims.ExternalSubject() == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if err := checkParty(claims, v.parties); err != nil {
		return nil, err
	}
	return claims, nil
}

// PEMVerifier checks RS256 tokens against a static public key.
type PEMVerifier struct {
	key     *rsa.PublicKey
	issuer  string
	parties []string
}

// NewPEMVerifier parses the PEM encoded RSA public key.
func NewPEMVerifier(pem, issuer string, parties []string) (*PEMVerifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(strings.ReplaceAll(pem, `\n`, "\n")))
	if err != nil {
		return nil, fmt.Errorf("parsing session public key: %w", err)
	}
	return &PEMVerifier{key: key, issuer: issuer, parties: parties}, nil
}

func (v *PEMVerifier) Verify(_ context.Context, raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(
		raw,
		claims,
		func(token *jwt.Token) (any, error) {
			return v.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockLeeway),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.ExternalSubject() == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if err := checkParty(claims, v.parties); err != nil {
		return nil, err
	}
	return claims, nil
}

func checkParty(claims *SessionClaims, parties []string) error {
	if len(parties) == 0 || claims.AuthorizedParty == "" {
		return nil
	}
	if slices.Contains(parties, claims.AuthorizedParty) {
		return nil
	}
	return ErrPartyMismatch
}

package auth

import "github.com/golang-jwt/jwt/v5"

// SessionClaims are the claims read from an identity-provider session token.
type SessionClaims struct {
	Email           string `json:"email,omitempty"`
	EmailVerified   bool   `json:"email_verified,omitempty"`
	Name            string `json:"name,omitempty"`
	ImageURL        string `json:"image_url,omitempty"`
	AuthorizedParty string `json:"azp,omitempty"`
	jwt.RegisteredClaims
}

// VerifiedEmail returns the email claim only when the provider marked it verified.
func (c *SessionClaims) VerifiedEmail() string {
	if c == nil || !c.EmailVerified {
		return ""
	}
	return c.Email
}

// ExternalSubject returns the auth provider subject.
func (c *SessionClaims) ExternalSubject() string {
	if c == nil {
		return ""
	}
	return c.RegisteredClaims.Subject
}

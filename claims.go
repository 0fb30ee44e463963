package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the payload of both token kinds. Session tokens always carry
// the authorities claim, reset tokens never do and declare their purpose.
type TokenClaims struct {
	jwt.RegisteredClaims
	Authorities *string `json:"authorities,omitempty"`
	Email       string  `json:"email,omitempty"`
	Purpose     string  `json:"purpose,omitempty"`
}

// Kind infers the token kind from the claims present in the payload. It
// returns an empty kind when the payload matches neither shape.
func (c *TokenClaims) Kind() TokenKind {
	switch {
	case c.Authorities != nil && c.Purpose == "":
		return TokenKindSession
	case c.Authorities == nil && c.Purpose == string(TokenKindReset) && c.Email != "":
		return TokenKindReset
	default:
		return ""
	}
}

// AuthorityList returns the decoded authorities claim
func (c *TokenClaims) AuthorityList() []string {
	if c.Authorities == nil {
		return nil
	}
	return SplitAuthorities(*c.Authorities)
}

// Expires returns the expiration time
func (c *TokenClaims) Expires() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}

// Issued returns the issued at time
func (c *TokenClaims) Issued() time.Time {
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

// Principal reconstructs the identity embedded in the claims
func (c *TokenClaims) Principal() *Principal {
	p := &Principal{
		Username:              c.Subject,
		Email:                 c.Email,
		Active:                true,
		AccountNonLocked:      true,
		CredentialsNonExpired: true,
		AccountNonExpired:     true,
	}
	if c.Authorities != nil {
		p.Authorities = c.AuthorityList()
	}
	return p
}

package auth

import (
	"slices"
	"time"
)

// TokenKind distinguishes the purpose of a signed token
type TokenKind string

const (
	// TokenKindSession proves a prior login and carries authorities
	TokenKindSession TokenKind = "session"
	// TokenKindReset binds a password reset request to an email
	TokenKindReset TokenKind = "password_reset"
)

// Principal is the identity resolved during authentication. It is a snapshot
// taken when the token is issued.
type Principal struct {
	Username              string   `json:"username"`
	Email                 string   `json:"email,omitempty"`
	Authorities           []string `json:"authorities"`
	Active                bool     `json:"active"`
	AccountNonLocked      bool     `json:"account_non_locked"`
	CredentialsNonExpired bool     `json:"credentials_non_expired"`
	AccountNonExpired     bool     `json:"account_non_expired"`
}

// HasAuthority checks if the principal was granted authority
func (p *Principal) HasAuthority(authority string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Authorities, authority)
}

// HasAnyAuthority checks if the principal holds at least one of authorities
func (p *Principal) HasAnyAuthority(authorities ...string) bool {
	for _, a := range authorities {
		if p.HasAuthority(a) {
			return true
		}
	}
	return false
}

// HasAllAuthorities checks if the principal holds every one of authorities
func (p *Principal) HasAllAuthorities(authorities ...string) bool {
	for _, a := range authorities {
		if !p.HasAuthority(a) {
			return false
		}
	}
	return true
}

// Account is the directory record for a user as seen by the core
type Account struct {
	ID        string
	Username  string
	Email     string
	Role      string
	Active    bool
	NonLocked bool
}

// IssuedToken is a signed token plus the metadata it was issued with
type IssuedToken struct {
	Value     string
	Kind      TokenKind
	ID        string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

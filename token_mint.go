package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Issue signs a token of the given kind for principal. Session tokens use
// the username as subject and embed the authority list; reset tokens use the
// email as subject. Authorities are trusted as produced by an AuthorityTable.
func (c *TokenCodec) Issue(principal Principal, kind TokenKind) (IssuedToken, error) {
	switch kind {
	case TokenKindSession:
		return c.IssueSession(principal)
	case TokenKindReset:
		return c.IssueReset(principal.Email)
	default:
		return IssuedToken{}, goerrors.New("unknown token kind", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"kind": string(kind)})
	}
}

// IssueSession signs a session token for principal
func (c *TokenCodec) IssueSession(principal Principal) (IssuedToken, error) {
	username := strings.TrimSpace(principal.Username)
	if username == "" {
		return IssuedToken{}, goerrors.New("session token requires a username", goerrors.CategoryBadInput)
	}

	authorities := JoinAuthorities(principal.Authorities)
	claims := c.baseClaims(username, c.sessionTTL)
	claims.Authorities = &authorities

	return c.mint(claims, TokenKindSession)
}

// IssueReset signs a single purpose reset token bound to email
func (c *TokenCodec) IssueReset(email string) (IssuedToken, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return IssuedToken{}, goerrors.New("reset token requires an email", goerrors.CategoryBadInput)
	}

	claims := c.baseClaims(email, c.resetTTL)
	claims.Email = email
	claims.Purpose = string(TokenKindReset)

	return c.mint(claims, TokenKindReset)
}

func (c *TokenCodec) baseClaims(subject string, ttl time.Duration) *TokenClaims {
	now := c.now()
	return &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    c.issuer,
			Audience:  c.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func (c *TokenCodec) mint(claims *TokenClaims, kind TokenKind) (IssuedToken, error) {
	value, err := c.sign(claims)
	if err != nil {
		return IssuedToken{}, err
	}

	c.logger.Debug("token codec issued token", "kind", kind, "sub", claims.Subject, "jti", claims.ID)

	return IssuedToken{
		Value:     value,
		Kind:      kind,
		ID:        claims.ID,
		Subject:   claims.Subject,
		IssuedAt:  claims.Issued(),
		ExpiresAt: claims.Expires(),
	}, nil
}

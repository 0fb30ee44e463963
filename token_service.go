package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

const (
	// DefaultSessionTTL is the validity window of session tokens
	DefaultSessionTTL = 5 * 24 * time.Hour
	// DefaultResetTTL is the validity window of reset tokens
	DefaultResetTTL = 60 * time.Minute
	// MinSigningKeyLength is the shortest accepted HMAC secret
	MinSigningKeyLength = 32
)

// TokenCodec signs and verifies compact tokens. The signing key is set once
// at construction and never changes, so a codec is safe for concurrent use.
type TokenCodec struct {
	signingKey []byte
	sessionTTL time.Duration
	resetTTL   time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	now        Clock
	logger     Logger
}

// CodecOption configures a TokenCodec
type CodecOption func(*TokenCodec)

// WithSessionTTL overrides DefaultSessionTTL
func WithSessionTTL(ttl time.Duration) CodecOption {
	return func(c *TokenCodec) {
		if ttl > 0 {
			c.sessionTTL = ttl
		}
	}
}

// WithResetTTL overrides DefaultResetTTL
func WithResetTTL(ttl time.Duration) CodecOption {
	return func(c *TokenCodec) {
		if ttl > 0 {
			c.resetTTL = ttl
		}
	}
}

// WithIssuer sets the iss claim and requires it on verification
func WithIssuer(issuer string) CodecOption {
	return func(c *TokenCodec) {
		c.issuer = issuer
	}
}

// WithAudience sets the aud claim and requires it on verification
func WithAudience(audience ...string) CodecOption {
	return func(c *TokenCodec) {
		if len(audience) > 0 {
			c.audience = append(jwt.ClaimStrings(nil), audience...)
		}
	}
}

// WithCodecClock injects the time source, mostly for tests
func WithCodecClock(clock Clock) CodecOption {
	return func(c *TokenCodec) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithCodecLogger sets the logger
func WithCodecLogger(logger Logger) CodecOption {
	return func(c *TokenCodec) {
		c.logger = normalizeLogger(logger)
	}
}

// NewTokenCodec creates a codec using HS256 with signingKey
func NewTokenCodec(signingKey []byte, opts ...CodecOption) (*TokenCodec, error) {
	if len(signingKey) < MinSigningKeyLength {
		return nil, goerrors.New(
			fmt.Sprintf("signing key must be at least %d bytes", MinSigningKeyLength),
			goerrors.CategoryValidation,
		)
	}

	c := &TokenCodec{
		signingKey: append([]byte(nil), signingKey...),
		sessionTTL: DefaultSessionTTL,
		resetTTL:   DefaultResetTTL,
		now:        time.Now,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

// SessionTTL returns the configured session validity window
func (c *TokenCodec) SessionTTL() time.Duration {
	return c.sessionTTL
}

// ResetTTL returns the configured reset validity window
func (c *TokenCodec) ResetTTL() time.Duration {
	return c.resetTTL
}

// Verify checks signature, expiry and kind, and returns the embedded principal
func (c *TokenCodec) Verify(raw string, expected TokenKind) (*Principal, error) {
	claims, err := c.Decode(raw, expected)
	if err != nil {
		return nil, err
	}
	return claims.Principal(), nil
}

// Decode is Verify returning the full claim set
func (c *TokenCodec) Decode(raw string, expected TokenKind) (*TokenClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(c.issuer))
	}
	if len(c.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(c.audience[0]))
	}

	token, err := jwt.ParseWithClaims(raw, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			c.logger.Warn("token codec unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.signingKey, nil
	}, parserOptions...)

	if err != nil {
		return nil, c.mapParseError(err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid.Clone()
	}

	if kind := claims.Kind(); kind != expected {
		c.logger.Debug("token codec kind mismatch", "expected", expected, "actual", kind)
		return nil, withMetadata(ErrTokenInvalid, map[string]any{
			"expected_kind": string(expected),
			"actual_kind":   string(kind),
		})
	}

	return claims, nil
}

func (c *TokenCodec) mapParseError(err error) error {
	clone := ErrTokenInvalid.Clone()
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		clone = ErrTokenMalformed.Clone()
	case errors.Is(err, jwt.ErrTokenExpired):
		clone = ErrTokenExpired.Clone()
	}

	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"cause": err.Error(),
	})
}

func (c *TokenCodec) sign(claims *TokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign token")
	}

	return signed, nil
}

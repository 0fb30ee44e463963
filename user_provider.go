package auth

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// PasswordHashSource returns the stored password hash for a username
type PasswordHashSource interface {
	PasswordHash(ctx context.Context, username string) (string, error)
}

// PasswordVerifier is a CredentialVerifier that compares bcrypt hashes
type PasswordVerifier struct {
	store  PasswordHashSource
	logger Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewPasswordVerifier creates a verifier reading hashes from store
func NewPasswordVerifier(store PasswordHashSource) *PasswordVerifier {
	return &PasswordVerifier{
		store:  store,
		logger: defLogger{},
	}
}

// WithLogger sets the logger
func (v *PasswordVerifier) WithLogger(l Logger) *PasswordVerifier {
	v.logger = normalizeLogger(l)
	return v
}

// Verify implements CredentialVerifier. Unknown usernames still pay for a
// hash comparison so response time does not reveal which accounts exist.
func (v *PasswordVerifier) Verify(ctx context.Context, username, password string) error {
	hash, err := v.store.PasswordHash(ctx, username)
	if err != nil {
		if IsAccountNotFoundError(err) {
			_ = ComparePasswordAndHash(password, v.dummy())
			return ErrBadCredentials.Clone()
		}
		v.logger.Error("password verifier failed to load hash", "error", err)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load password hash")
	}

	if hash == "" {
		return ErrBadCredentials.Clone()
	}

	return ComparePasswordAndHash(password, hash)
}

func (v *PasswordVerifier) dummy() string {
	v.dummyOnce.Do(func() {
		v.dummyHash, _ = HashPassword("not-a-real-password")
	})
	return v.dummyHash
}

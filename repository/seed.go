package repository

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-portal-auth"
	"github.com/goliatone/go-repository-bun"
)

// AdminSeed describes the account created on first start
type AdminSeed struct {
	Username  string
	Email     string
	Password  string
	Role      string
	FirstName string
	LastName  string
}

// SeedAdmin creates the admin account unless the username is taken. It
// reports whether a new account was created.
func SeedAdmin(ctx context.Context, users auth.Users, seed AdminSeed, hasher auth.PasswordHasher) (*auth.User, bool, error) {
	if seed.Username == "" || seed.Password == "" {
		return nil, false, goerrors.New("admin seed requires username and password", goerrors.CategoryValidation).
			WithTextCode("ADMIN_SEED_INVALID")
	}

	existing, err := users.GetByUsername(ctx, seed.Username)
	if err == nil {
		return existing, false, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up admin account")
	}

	if hasher == nil {
		hasher = auth.HashPassword
	}

	hash, err := hasher(seed.Password)
	if err != nil {
		return nil, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash admin password")
	}

	role := seed.Role
	if role == "" {
		role = auth.RoleSuperAdmin
	}

	firstName, lastName := seed.FirstName, seed.LastName
	if firstName == "" {
		firstName = "Portal"
	}
	if lastName == "" {
		lastName = "Administrator"
	}

	user, err := users.Register(ctx, &auth.User{
		Username:     seed.Username,
		Email:        seed.Email,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         role,
		PasswordHash: hash,
		Active:       true,
		NonLocked:    true,
	})
	if err != nil {
		return nil, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create admin account")
	}

	return user, true, nil
}

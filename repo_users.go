package auth

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var UpdateCredentialsSQL = `UPDATE "users"
SET
	"password_hash" = ?,
	"password_changed_at" = ?,
	"updated_at" = ?
WHERE
	"deleted_at" IS NULL
AND
	"email" = ?
RETURNING *;`

// Users is the bun backed user store. It implements UserDirectory and
// PasswordHashSource.
type Users interface {
	repository.Repository[*User]
	UserDirectory
	PasswordHashSource

	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	UpdateCredentialsTx(ctx context.Context, tx bun.IDB, email, passwordHash string) error
	TrackSuccessfulLogin(ctx context.Context, username string) error
}

type users struct {
	repository.Repository[*User]
	db  *bun.DB
	now Clock
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

// UsersOption configures the users repository
type UsersOption func(*users)

// WithUsersClock injects the time source used for timestamps
func WithUsersClock(clock Clock) UsersOption {
	return func(u *users) {
		if clock != nil {
			u.now = clock
		}
	}
}

// NewUsersRepository creates the users repository
func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	repoUsers := &users{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}

	return repoUsers
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)
	return a.Repository.CreateTx(ctx, tx, user)
}

func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	return a.GetByUsernameTx(ctx, a.db, username)
}

func (a *users) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error) {
	return a.getByColumn(ctx, tx, "username", username)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.getByColumn(ctx, tx, "email", email)
}

func (a *users) getByColumn(ctx context.Context, tx bun.IDB, column, value string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), NormalizeKey(value)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					column: value,
				})
		}
		return nil, err
	}

	return record, nil
}

// FindByUsername implements UserDirectory
func (a *users) FindByUsername(ctx context.Context, username string) (*Account, error) {
	user, err := a.GetByUsername(ctx, username)
	if err != nil {
		return nil, directoryError(err, "username", username)
	}
	return user.Account(), nil
}

// FindByEmail implements UserDirectory
func (a *users) FindByEmail(ctx context.Context, email string) (*Account, error) {
	user, err := a.GetByEmail(ctx, email)
	if err != nil {
		return nil, directoryError(err, "email", email)
	}
	return user.Account(), nil
}

// PasswordHash implements PasswordHashSource
func (a *users) PasswordHash(ctx context.Context, username string) (string, error) {
	user, err := a.GetByUsername(ctx, username)
	if err != nil {
		return "", directoryError(err, "username", username)
	}
	return user.PasswordHash, nil
}

// UpdateCredentials implements UserDirectory
func (a *users) UpdateCredentials(ctx context.Context, email, passwordHash string) error {
	return a.UpdateCredentialsTx(ctx, a.db, email, passwordHash)
}

func (a *users) UpdateCredentialsTx(ctx context.Context, tx bun.IDB, email, passwordHash string) error {
	now := a.now().UTC()
	res, err := a.Repository.RawTx(ctx, tx, UpdateCredentialsSQL, passwordHash, now, now, NormalizeKey(email))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update credentials")
	}

	if len(res) == 0 {
		return withMetadata(ErrAccountNotFound, map[string]any{"email": email})
	}

	return nil
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, username string) error {
	now := a.now().UTC()
	_, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("last_login_at = ?", now).
		Set("updated_at = ?", now).
		Where("?TableAlias.username = ?", NormalizeKey(username)).
		Exec(ctx)
	return err
}

func directoryError(err error, field, value string) error {
	if repository.IsRecordNotFound(err) {
		clone := ErrAccountNotFound.Clone()
		clone.Source = err
		return clone.WithMetadata(map[string]any{field: value})
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to query users")
}

package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PasswordResets is a ResetLedger stored in the password_resets table, so
// every process sharing the database sees the same consumed tokens.
type PasswordResets struct {
	db  bun.IDB
	now Clock
}

var _ ResetLedger = (*PasswordResets)(nil)

// NewPasswordResetsRepository creates the ledger. A nil clock uses time.Now.
func NewPasswordResetsRepository(db bun.IDB, clock Clock) *PasswordResets {
	if clock == nil {
		clock = time.Now
	}
	return &PasswordResets{db: db, now: clock}
}

// Consume implements ResetLedger
func (r *PasswordResets) Consume(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	now := r.now().UTC()

	if err := r.Prune(ctx); err != nil {
		return false, err
	}

	record := &PasswordReset{
		ID:        uuid.New(),
		TokenID:   tokenID,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: &now,
	}

	res, err := r.db.NewInsert().
		Model(record).
		On("CONFLICT (token_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record password reset")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record password reset")
	}

	return n == 1, nil
}

// Release implements ResetLedger
func (r *PasswordResets) Release(ctx context.Context, tokenID string) error {
	_, err := r.db.NewDelete().
		Model((*PasswordReset)(nil)).
		Where("token_id = ?", tokenID).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to release password reset")
	}
	return nil
}

// Prune deletes entries whose token has expired
func (r *PasswordResets) Prune(ctx context.Context) error {
	_, err := r.db.NewDelete().
		Model((*PasswordReset)(nil)).
		Where("expires_at <= ?", r.now().UTC()).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to prune password resets")
	}
	return nil
}

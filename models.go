package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model
type User struct {
	bun.BaseModel     `bun:"table:users,alias:usr"`
	ID                uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role              string     `bun:"user_role,notnull" json:"role,omitempty"`
	FirstName         string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName          string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	Username          string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email             string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash      string     `bun:"password_hash,notnull" json:"-"`
	Active            bool       `bun:"is_active,notnull" json:"is_active"`
	NonLocked         bool       `bun:"is_not_locked,notnull" json:"is_not_locked"`
	LastLoginAt       *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	PasswordChangedAt *time.Time `bun:"password_changed_at,nullzero" json:"password_changed_at,omitempty"`
	CreatedAt         *time.Time `bun:"created_at,nullzero" json:"created_at,omitempty"`
	UpdatedAt         *time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
	DeletedAt         *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Account returns the directory view of the user
func (u *User) Account() *Account {
	if u == nil {
		return nil
	}
	return &Account{
		ID:        u.ID.String(),
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		Active:    u.Active,
		NonLocked: u.NonLocked,
	}
}

// PasswordReset records a consumed reset token until it expires
type PasswordReset struct {
	bun.BaseModel `bun:"table:password_resets,alias:pwdr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	TokenID       string     `bun:"token_id,notnull,unique" json:"token_id,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt     *time.Time `bun:"created_at,nullzero" json:"created_at,omitempty"`
}

func prepareUserDefaults(user *User) {
	if user == nil {
		return
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	user.Username = NormalizeKey(user.Username)
	user.Email = NormalizeKey(user.Email)

	if user.Role == "" {
		user.Role = RoleUser
	}

	if user.CreatedAt == nil {
		now := time.Now().UTC()
		user.CreatedAt = &now
	}
}

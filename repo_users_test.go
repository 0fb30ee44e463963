package auth_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	auth "github.com/goliatone/go-portal-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

func setupRepositories(t *testing.T) (auth.RepositoryManager, *bun.DB) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())
	t.Cleanup(func() {
		_ = bunDB.Close()
	})

	repo := auth.NewRepositoryManager(bunDB)
	require.NoError(t, repo.Validate())
	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.NoError(t, repo.EnsureSchema(context.Background()), "schema is idempotent")

	return repo, bunDB
}

func registerUser(t *testing.T, users auth.Users, username, password string, active bool) *auth.User {
	t.Helper()
	hash, err := auth.HashPasswordWithCost(password, bcrypt.MinCost)
	require.NoError(t, err)

	user, err := users.Register(context.Background(), &auth.User{
		Username:     username,
		Email:        username + "@Example.com",
		FirstName:    "Test",
		LastName:     "User",
		Role:         auth.RoleAdmin,
		PasswordHash: hash,
		Active:       active,
		NonLocked:    true,
	})
	require.NoError(t, err)
	return user
}

func TestUsers_Directory(t *testing.T) {
	repo, _ := setupRepositories(t)
	users := repo.Users()
	ctx := context.Background()

	registered := registerUser(t, users, "Alice", "s3cret", true)
	assert.Equal(t, "alice", registered.Username)
	assert.Equal(t, "alice@example.com", registered.Email)

	account, err := users.FindByUsername(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Username)
	assert.Equal(t, auth.RoleAdmin, account.Role)
	assert.True(t, account.Active)
	assert.True(t, account.NonLocked)
	assert.Equal(t, registered.ID.String(), account.ID)

	account, err = users.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Username)

	_, err = users.FindByUsername(ctx, "nobody")
	require.Error(t, err)
	assert.True(t, auth.IsAccountNotFoundError(err))

	_, err = users.FindByEmail(ctx, "nobody@example.com")
	assert.True(t, auth.IsAccountNotFoundError(err))
}

func TestUsers_UpdateCredentials(t *testing.T) {
	repo, _ := setupRepositories(t)
	users := repo.Users()
	ctx := context.Background()

	registerUser(t, users, "carol", "old-password", true)

	hash, err := auth.HashPasswordWithCost("new-password", bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, users.UpdateCredentials(ctx, "carol@example.com", hash))

	stored, err := users.PasswordHash(ctx, "carol")
	require.NoError(t, err)
	assert.NoError(t, auth.ComparePasswordAndHash("new-password", stored))
	assert.True(t, auth.IsBadCredentialsError(auth.ComparePasswordAndHash("old-password", stored)))

	user, err := users.GetByUsername(ctx, "carol")
	require.NoError(t, err)
	assert.NotNil(t, user.PasswordChangedAt)

	err = users.UpdateCredentials(ctx, "nobody@example.com", hash)
	assert.True(t, auth.IsAccountNotFoundError(err))
}

func TestUsers_TrackSuccessfulLogin(t *testing.T) {
	repo, _ := setupRepositories(t)
	users := repo.Users()
	ctx := context.Background()

	registerUser(t, users, "dave", "pw", true)
	require.NoError(t, auth.TrackLogins(users).Record(ctx, auth.ActivityEvent{
		EventType: auth.ActivityEventLoginSuccess,
		Subject:   "dave",
	}))

	user, err := users.GetByUsername(ctx, "dave")
	require.NoError(t, err)
	require.NotNil(t, user.LastLoginAt)
}

func TestPasswordVerifier(t *testing.T) {
	repo, _ := setupRepositories(t)
	users := repo.Users()
	ctx := context.Background()

	registerUser(t, users, "erin", "correct-horse", true)
	verifier := auth.NewPasswordVerifier(users).WithLogger(nopLogger{})

	assert.NoError(t, verifier.Verify(ctx, "erin", "correct-horse"))
	assert.True(t, auth.IsBadCredentialsError(verifier.Verify(ctx, "erin", "battery-staple")))
	assert.True(t, auth.IsBadCredentialsError(verifier.Verify(ctx, "nobody", "whatever")))
}

func TestPasswordResets_Ledger(t *testing.T) {
	_, db := setupRepositories(t)
	clock := newFakeClock()
	ledger := auth.NewPasswordResetsRepository(db, clock.Now)
	ctx := context.Background()

	ok, err := ledger.Consume(ctx, "jti-1", clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.Consume(ctx, "jti-1", clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ledger.Release(ctx, "jti-1"))

	ok, err = ledger.Consume(ctx, "jti-1", clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGateWithRepositories(t *testing.T) {
	repo, _ := setupRepositories(t)
	users := repo.Users()
	ctx := context.Background()

	registerUser(t, users, "frank", "pw-frank", true)
	registerUser(t, users, "gone", "pw-gone", false)

	clock := newFakeClock()
	codec := newTestCodec(t, clock)
	gate := auth.NewAuthenticationGate(
		users,
		auth.NewPasswordVerifier(users).WithLogger(nopLogger{}),
		auth.NewAttemptTracker(auth.WithTrackerClock(clock.Now)),
		codec,
		nil,
		auth.WithGateLogger(nopLogger{}),
	)

	result, err := gate.Login(ctx, "frank", "pw-frank")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:read", "user:create", "user:update"}, result.Principal.Authorities)

	_, err = gate.Login(ctx, "gone", "pw-gone")
	assert.Equal(t, auth.TextCodeAccountInactive, auth.TextCodeOf(err))
}

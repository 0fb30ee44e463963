package auth_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	auth "github.com/goliatone/go-portal-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type resetFixture struct {
	clock     *fakeClock
	codec     *auth.TokenCodec
	directory *MockDirectory
	mailer    *MockMailer
	sink      *recordingSink
	flow      *auth.ResetTokenFlow
}

func newResetFixture(t *testing.T, opts ...auth.ResetOption) *resetFixture {
	t.Helper()
	fx := &resetFixture{
		clock:     newFakeClock(),
		directory: &MockDirectory{},
		mailer:    &MockMailer{},
		sink:      &recordingSink{},
	}
	fx.codec = newTestCodec(t, fx.clock)
	opts = append([]auth.ResetOption{
		auth.WithFrontendURL("https://portal.example.com/"),
		auth.WithPasswordHasher(fastHasher),
		auth.WithResetLogger(nopLogger{}),
		auth.WithResetActivitySink(fx.sink),
	}, opts...)
	fx.flow = auth.NewResetTokenFlow(fx.codec, fx.directory, fx.mailer, opts...)
	return fx
}

func carol() *auth.Account {
	return &auth.Account{ID: "3", Username: "carol", Email: "carol@example.com", Role: auth.RoleUser, Active: true, NonLocked: true}
}

func TestResetTokenFlow_RequestReset(t *testing.T) {
	fx := newResetFixture(t)
	ctx := context.Background()

	var sent auth.MailMessage
	fx.directory.On("FindByEmail", ctx, "carol@example.com").Return(carol(), nil)
	fx.mailer.On("Send", ctx, mock.AnythingOfType("auth.MailMessage")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(auth.MailMessage) }).
		Return(nil)

	issued, err := fx.flow.RequestReset(ctx, " carol@example.com ")
	require.NoError(t, err)

	assert.Equal(t, auth.TokenKindReset, issued.Kind)
	assert.WithinDuration(t, fx.clock.Now().Add(60*time.Minute), issued.ExpiresAt, 0)

	assert.Equal(t, "carol@example.com", sent.To)
	assert.Equal(t, "Reset your password", sent.Subject)
	assert.Contains(t, sent.Body, "https://portal.example.com/reset-password?token="+url.QueryEscape(issued.Value))
	assert.Contains(t, sent.Body, "expire in 60 minutes")

	_, err = fx.codec.Verify(issued.Value, auth.TokenKindSession)
	assert.True(t, auth.IsTokenInvalidError(err), "reset token must not authenticate")

	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventPasswordResetRequest}, fx.sink.Types())
	fx.directory.AssertExpectations(t)
	fx.mailer.AssertExpectations(t)
}

func TestResetTokenFlow_RequestResetUnknownEmail(t *testing.T) {
	fx := newResetFixture(t)
	ctx := context.Background()

	fx.directory.On("FindByEmail", ctx, "nobody@example.com").Return(nil, auth.ErrAccountNotFound)

	_, err := fx.flow.RequestReset(ctx, "nobody@example.com")
	require.Error(t, err)
	assert.Equal(t, auth.TextCodeEmailNotFound, auth.TextCodeOf(err))
	fx.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestResetTokenFlow_RequestResetDirectoryFailure(t *testing.T) {
	fx := newResetFixture(t)
	ctx := context.Background()

	fx.directory.On("FindByEmail", ctx, "carol@example.com").Return(nil, errors.New("connection reset"))

	_, err := fx.flow.RequestReset(ctx, "carol@example.com")
	require.Error(t, err)
	assert.NotEqual(t, auth.TextCodeEmailNotFound, auth.TextCodeOf(err))
}

func TestResetTokenFlow_RequestResetEmptyEmail(t *testing.T) {
	fx := newResetFixture(t)

	_, err := fx.flow.RequestReset(context.Background(), "  ")
	require.Error(t, err)
	fx.directory.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything)
}

func TestResetTokenFlow_DeliveryFailedKeepsToken(t *testing.T) {
	fx := newResetFixture(t)
	ctx := context.Background()

	fx.directory.On("FindByEmail", ctx, "carol@example.com").Return(carol(), nil)
	fx.mailer.On("Send", ctx, mock.Anything).Return(errors.New("smtp: 421 service not available"))

	issued, err := fx.flow.RequestReset(ctx, "carol@example.com")
	require.Error(t, err)
	assert.True(t, auth.IsDeliveryFailedError(err))
	assert.False(t, auth.IsTokenInvalidError(err))

	require.NotEmpty(t, issued.Value)
	_, verifyErr := fx.codec.Verify(issued.Value, auth.TokenKindReset)
	assert.NoError(t, verifyErr, "token stays valid when delivery fails")

	assert.Equal(t, []auth.ActivityEventType{
		auth.ActivityEventPasswordResetRequest,
		auth.ActivityEventPasswordResetDelivery,
	}, fx.sink.Types())
}

func TestResetTokenFlow_ComposerFailureIsDeliveryFailure(t *testing.T) {
	composer := auth.ResetComposerFunc(func(context.Context, auth.ResetMessageData) (auth.MailMessage, error) {
		return auth.MailMessage{}, errors.New("template missing")
	})
	fx := newResetFixture(t, auth.WithComposer(composer))
	ctx := context.Background()

	fx.directory.On("FindByEmail", ctx, "carol@example.com").Return(carol(), nil)

	_, err := fx.flow.RequestReset(ctx, "carol@example.com")
	assert.True(t, auth.IsDeliveryFailedError(err))
	fx.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestResetTokenFlow_ConsumeReset(t *testing.T) {
	fx := newResetFixture(t)
	ctx := context.Background()

	issued, err := fx.codec.IssueReset("carol@example.com")
	require.NoError(t, err)

	var storedHash string
	fx.directory.On("UpdateCredentials", ctx, "carol@example.com", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { storedHash = args.String(2) }).
		Return(nil)

	err = fx.flow.ConsumeReset(ctx, issued.Value, "n3w-Passw0rd", "n3w-Passw0rd")
	require.NoError(t, err)

	require.NotEmpty(t, storedHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(storedHash), []byte("n3w-Passw0rd")))
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventPasswordResetSuccess}, fx.sink.Types())
}

func TestResetTokenFlow_ConsumeResetExpired(t *testing.T) {
	fx := newResetFixture(t)
	ctx := context.Background()

	fx.directory.On("FindByEmail", ctx, "carol@example.com").Return(carol(), nil)
	fx.mailer.On("Send", ctx, mock.Anything).Return(nil)

	issued, err := fx.flow.RequestReset(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, fx.clock.Now().Add(60*time.Minute), issued.ExpiresAt, 0)

	fx.clock.Advance(61 * time.Minute)

	err = fx.flow.ConsumeReset(ctx, issued.Value, "newpass1", "newpass1")
	require.Error(t, err)
	assert.True(t, auth.IsTokenExpiredError(err))
	fx.directory.AssertNotCalled(t, "UpdateCredentials", mock.Anything, mock.Anything, mock.Anything)
}

func TestResetTokenFlow_PasswordMismatchOrdering(t *testing.T) {
	fx := newResetFixture(t)
	ctx := context.Background()

	valid, err := fx.codec.IssueReset("carol@example.com")
	require.NoError(t, err)

	expired, err := fx.codec.IssueReset("carol@example.com")
	require.NoError(t, err)

	tests := []struct {
		name     string
		token    string
		advance  time.Duration
		password string
		confirm  string
		textCode string
	}{
		{name: "mismatch with valid token", token: valid.Value, password: "newpass1", confirm: "newpass2", textCode: auth.TextCodePasswordMismatch},
		{name: "mismatch with expired token", token: expired.Value, advance: 61 * time.Minute, password: "newpass1", confirm: "newpass2", textCode: auth.TextCodePasswordMismatch},
		{name: "mismatch with malformed token", token: "garbage", password: "newpass1", confirm: "newpass2", textCode: auth.TextCodePasswordMismatch},
		{name: "empty password with different confirmation", token: "a.b.c", password: "", confirm: "newpass2", textCode: auth.TextCodePasswordMismatch},
		{name: "empty confirmation", token: valid.Value, password: "newpass1", confirm: "", textCode: auth.TextCodePasswordMismatch},
		{name: "matching with expired token", token: expired.Value, password: "newpass1", confirm: "newpass1", textCode: auth.TextCodeTokenExpired},
		{name: "matching with malformed token", token: "garbage", password: "newpass1", confirm: "newpass1", textCode: auth.TextCodeTokenMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx.clock.Advance(tt.advance)

			err := fx.flow.ConsumeReset(ctx, tt.token, tt.password, tt.confirm)
			require.Error(t, err)
			assert.Equal(t, tt.textCode, auth.TextCodeOf(err))
		})
	}

	fx.directory.AssertNotCalled(t, "UpdateCredentials", mock.Anything, mock.Anything, mock.Anything)
}

func TestResetTokenFlow_ConsumeResetRejectsSessionToken(t *testing.T) {
	fx := newResetFixture(t)

	session, err := fx.codec.IssueSession(auth.Principal{Username: "carol", Authorities: []string{"user:read"}})
	require.NoError(t, err)

	err = fx.flow.ConsumeReset(context.Background(), session.Value, "newpass1", "newpass1")
	assert.True(t, auth.IsTokenInvalidError(err))
}

func TestResetTokenFlow_ConsumeResetEmptyPassword(t *testing.T) {
	fx := newResetFixture(t)

	err := fx.flow.ConsumeReset(context.Background(), "whatever", "", "")
	require.Error(t, err)
	assert.NotEqual(t, auth.TextCodePasswordMismatch, auth.TextCodeOf(err))
}

func TestResetTokenFlow_ReplayWithoutLedger(t *testing.T) {
	fx := newResetFixture(t)
	ctx := context.Background()

	issued, err := fx.codec.IssueReset("carol@example.com")
	require.NoError(t, err)
	fx.directory.On("UpdateCredentials", ctx, "carol@example.com", mock.Anything).Return(nil)

	require.NoError(t, fx.flow.ConsumeReset(ctx, issued.Value, "newpass1", "newpass1"))
	require.NoError(t, fx.flow.ConsumeReset(ctx, issued.Value, "newpass2", "newpass2"))
	fx.directory.AssertNumberOfCalls(t, "UpdateCredentials", 2)
}

func TestResetTokenFlow_ReplayWithLedger(t *testing.T) {
	clock := newFakeClock()
	fx := newResetFixture(t, auth.WithLedger(auth.NewMemoryResetLedger(clock.Now)))
	ctx := context.Background()

	issued, err := fx.codec.IssueReset("carol@example.com")
	require.NoError(t, err)
	fx.directory.On("UpdateCredentials", ctx, "carol@example.com", mock.Anything).Return(nil)

	require.NoError(t, fx.flow.ConsumeReset(ctx, issued.Value, "newpass1", "newpass1"))

	err = fx.flow.ConsumeReset(ctx, issued.Value, "newpass2", "newpass2")
	require.Error(t, err)
	assert.Equal(t, auth.TextCodeTokenReplayed, auth.TextCodeOf(err))
	fx.directory.AssertNumberOfCalls(t, "UpdateCredentials", 1)
}

func TestResetTokenFlow_LedgerReleasedOnUpdateFailure(t *testing.T) {
	clock := newFakeClock()
	fx := newResetFixture(t, auth.WithLedger(auth.NewMemoryResetLedger(clock.Now)))
	ctx := context.Background()

	issued, err := fx.codec.IssueReset("carol@example.com")
	require.NoError(t, err)

	fx.directory.On("UpdateCredentials", ctx, "carol@example.com", mock.Anything).
		Return(errors.New("database is locked")).Once()
	fx.directory.On("UpdateCredentials", ctx, "carol@example.com", mock.Anything).
		Return(nil).Once()

	err = fx.flow.ConsumeReset(ctx, issued.Value, "newpass1", "newpass1")
	require.Error(t, err)

	assert.NoError(t, fx.flow.ConsumeReset(ctx, issued.Value, "newpass1", "newpass1"))
}

func TestResetTokenFlow_ResetLink(t *testing.T) {
	fx := newResetFixture(t)

	link := fx.flow.ResetLink("a.b+c/d")
	assert.True(t, strings.HasPrefix(link, "https://portal.example.com/reset-password?token="))
	assert.Equal(t, "https://portal.example.com/reset-password?token=a.b%2Bc%2Fd", link)
}

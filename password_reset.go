package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ResetMessageData is what a composer needs to render a reset email
type ResetMessageData struct {
	Email     string
	Link      string
	ExpiresAt time.Time
	TTL       time.Duration
}

// ResetMessageComposer renders the reset email for a request
type ResetMessageComposer interface {
	ComposeReset(ctx context.Context, data ResetMessageData) (MailMessage, error)
}

// ResetComposerFunc adapts a function to ResetMessageComposer
type ResetComposerFunc func(ctx context.Context, data ResetMessageData) (MailMessage, error)

// ComposeReset implements ResetMessageComposer
func (f ResetComposerFunc) ComposeReset(ctx context.Context, data ResetMessageData) (MailMessage, error) {
	return f(ctx, data)
}

// PlainResetComposer renders a text only reset email
type PlainResetComposer struct {
	Subject string
	CC      string
}

// ComposeReset implements ResetMessageComposer
func (c PlainResetComposer) ComposeReset(_ context.Context, data ResetMessageData) (MailMessage, error) {
	subject := c.Subject
	if subject == "" {
		subject = "Reset your password"
	}

	var b strings.Builder
	b.WriteString("Hello!\n\n")
	b.WriteString("You are receiving this email because we received a password reset request for your account.\n\n")
	fmt.Fprintf(&b, "Reset your password: %s\n\n", data.Link)
	fmt.Fprintf(&b, "This password reset link will expire in %d minutes.\n\n", int(data.TTL.Minutes()))
	b.WriteString("If you did not request a password reset, no further action is required.\n")

	return MailMessage{
		To:      data.Email,
		CC:      c.CC,
		Subject: subject,
		Body:    b.String(),
	}, nil
}

// ResetTokenFlow issues reset tokens, mails the link and consumes tokens
// to update credentials.
type ResetTokenFlow struct {
	codec       *TokenCodec
	directory   UserDirectory
	mailer      Mailer
	composer    ResetMessageComposer
	ledger      ResetLedger
	hasher      PasswordHasher
	frontendURL string
	logger      Logger
	activity    ActivitySink
}

// ResetOption configures a ResetTokenFlow
type ResetOption func(*ResetTokenFlow)

// WithFrontendURL sets the base URL of the reset link
func WithFrontendURL(frontendURL string) ResetOption {
	return func(f *ResetTokenFlow) {
		f.frontendURL = strings.TrimRight(frontendURL, "/")
	}
}

// WithLedger enables single use enforcement of reset tokens
func WithLedger(ledger ResetLedger) ResetOption {
	return func(f *ResetTokenFlow) {
		if ledger != nil {
			f.ledger = ledger
		}
	}
}

// WithComposer sets the reset email composer
func WithComposer(composer ResetMessageComposer) ResetOption {
	return func(f *ResetTokenFlow) {
		if composer != nil {
			f.composer = composer
		}
	}
}

// WithPasswordHasher overrides HashPassword
func WithPasswordHasher(hasher PasswordHasher) ResetOption {
	return func(f *ResetTokenFlow) {
		if hasher != nil {
			f.hasher = hasher
		}
	}
}

// WithResetLogger sets the logger
func WithResetLogger(logger Logger) ResetOption {
	return func(f *ResetTokenFlow) {
		f.logger = normalizeLogger(logger)
	}
}

// WithResetActivitySink sets the activity sink
func WithResetActivitySink(sink ActivitySink) ResetOption {
	return func(f *ResetTokenFlow) {
		f.activity = normalizeActivitySink(sink)
	}
}

// NewResetTokenFlow creates a flow. Without WithLedger reset tokens can be
// used repeatedly until they expire.
func NewResetTokenFlow(codec *TokenCodec, directory UserDirectory, mailer Mailer, opts ...ResetOption) *ResetTokenFlow {
	f := &ResetTokenFlow{
		codec:     codec,
		directory: directory,
		mailer:    mailer,
		composer:  PlainResetComposer{},
		ledger:    noopResetLedger{},
		hasher:    HashPassword,
		logger:    defLogger{},
		activity:  noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// ResetLink builds the link mailed to the user
func (f *ResetTokenFlow) ResetLink(token string) string {
	return f.frontendURL + "/reset-password?token=" + url.QueryEscape(token)
}

// RequestReset issues a reset token for email and mails the link. When the
// mail transport fails the issued token is still returned together with
// ErrDeliveryFailed.
func (f *ResetTokenFlow) RequestReset(ctx context.Context, email string) (IssuedToken, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return IssuedToken{}, goerrors.New("email is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	account, err := f.directory.FindByEmail(ctx, email)
	if err != nil {
		if IsAccountNotFoundError(err) {
			f.logger.Debug("password reset for unknown email")
			return IssuedToken{}, ErrEmailNotFound.Clone()
		}
		return IssuedToken{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password reset")
	}

	issued, err := f.codec.IssueReset(account.Email)
	if err != nil {
		return IssuedToken{}, err
	}

	recordActivity(ctx, f.activity, f.logger, ActivityEvent{
		EventType:  ActivityEventPasswordResetRequest,
		Subject:    account.Email,
		OccurredAt: issued.IssuedAt,
		Metadata:   map[string]any{"jti": issued.ID},
	})

	msg, err := f.composer.ComposeReset(ctx, ResetMessageData{
		Email:     account.Email,
		Link:      f.ResetLink(issued.Value),
		ExpiresAt: issued.ExpiresAt,
		TTL:       f.codec.ResetTTL(),
	})
	if err == nil {
		err = f.mailer.Send(ctx, msg)
	}

	if err != nil {
		f.logger.Error("password reset delivery failed", "jti", issued.ID, "error", err)
		recordActivity(ctx, f.activity, f.logger, ActivityEvent{
			EventType: ActivityEventPasswordResetDelivery,
			Subject:   account.Email,
			Reason:    err.Error(),
			Metadata:  map[string]any{"jti": issued.ID},
		})
		return issued, goerrors.Wrap(err, ErrDeliveryFailed.Category, ErrDeliveryFailed.Message).
			WithTextCode(ErrDeliveryFailed.TextCode).
			WithCode(goerrors.CodeInternal)
	}

	f.logger.Info("password reset link sent", "jti", issued.ID)

	return issued, nil
}

// ConsumeReset validates token and stores the new password. The password
// pair is checked before the token so a mismatch is always reported as such.
func (f *ResetTokenFlow) ConsumeReset(ctx context.Context, token, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch.Clone()
	}

	if newPassword == "" {
		return goerrors.New("new password is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	claims, err := f.codec.Decode(token, TokenKindReset)
	if err != nil {
		return err
	}

	fresh, err := f.ledger.Consume(ctx, claims.ID, claims.Expires())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check reset token ledger")
	}
	if !fresh {
		f.logger.Warn("password reset token replayed", "jti", claims.ID)
		return withMetadata(ErrTokenReplayed, map[string]any{"jti": claims.ID})
	}

	if err := f.updateCredentials(ctx, claims.Email, newPassword); err != nil {
		if releaseErr := f.ledger.Release(ctx, claims.ID); releaseErr != nil {
			f.logger.Error("failed to release reset token", "jti", claims.ID, "error", releaseErr)
		}
		return err
	}

	recordActivity(ctx, f.activity, f.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Subject:   claims.Email,
		Metadata:  map[string]any{"jti": claims.ID},
	})

	return nil
}

func (f *ResetTokenFlow) updateCredentials(ctx context.Context, email, password string) error {
	hash, err := f.hasher(password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash new password")
	}

	if err := f.directory.UpdateCredentials(ctx, email, hash); err != nil {
		if IsAccountNotFoundError(err) {
			return ErrEmailNotFound.Clone()
		}
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update credentials")
	}

	return nil
}

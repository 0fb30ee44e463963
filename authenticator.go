package auth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// LoginResult is returned by a successful login
type LoginResult struct {
	Principal *Principal
	Token     IssuedToken
}

// AuthenticationGate runs the login state machine and authenticates
// session tokens on later requests.
type AuthenticationGate struct {
	directory   UserDirectory
	verifier    CredentialVerifier
	tracker     *AttemptTracker
	codec       *TokenCodec
	authorities *AuthorityTable
	logger      Logger
	activity    ActivitySink
	now         Clock
}

// GateOption configures an AuthenticationGate
type GateOption func(*AuthenticationGate)

// WithGateLogger sets the logger
func WithGateLogger(logger Logger) GateOption {
	return func(g *AuthenticationGate) {
		g.logger = normalizeLogger(logger)
	}
}

// WithGateActivitySink sets the activity sink
func WithGateActivitySink(sink ActivitySink) GateOption {
	return func(g *AuthenticationGate) {
		g.activity = normalizeActivitySink(sink)
	}
}

// WithGateClock injects the time source used for activity timestamps
func WithGateClock(clock Clock) GateOption {
	return func(g *AuthenticationGate) {
		if clock != nil {
			g.now = clock
		}
	}
}

// NewAuthenticationGate creates a gate. A nil authority table uses
// DefaultAuthorityTable.
func NewAuthenticationGate(
	directory UserDirectory,
	verifier CredentialVerifier,
	tracker *AttemptTracker,
	codec *TokenCodec,
	authorities *AuthorityTable,
	opts ...GateOption,
) *AuthenticationGate {
	if authorities == nil {
		authorities = DefaultAuthorityTable()
	}

	g := &AuthenticationGate{
		directory:   directory,
		verifier:    verifier,
		tracker:     tracker,
		codec:       codec,
		authorities: authorities,
		logger:      defLogger{},
		activity:    noopActivitySink{},
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Tracker returns the attempt tracker
func (g *AuthenticationGate) Tracker() *AttemptTracker {
	return g.tracker
}

// Login checks the account state and lockout, verifies credentials and
// issues a session token carrying the account's current authorities.
// Unknown usernames walk the same lockout and verification path as real
// accounts and always end in ErrBadCredentials.
func (g *AuthenticationGate) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	key := NormalizeKey(username)
	if key == "" {
		return nil, ErrBadCredentials.Clone()
	}

	username = strings.TrimSpace(username)

	account, err := g.directory.FindByUsername(ctx, username)
	if err != nil {
		if !IsAccountNotFoundError(err) {
			g.logger.Error("Login failed to retrieve account", "error", err)
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account")
		}
		account = nil
	}

	if account != nil && !account.Active {
		g.logger.Warn("Login blocked, account inactive", "username", key)
		g.emit(ctx, ActivityEventLoginInactive, key, "inactive", nil)
		return nil, ErrAccountInactive.Clone()
	}

	if g.tracker.IsLocked(key) || (account != nil && !account.NonLocked) {
		retryAfter := g.tracker.LockedFor(key)
		g.logger.Warn("Login blocked, account locked", "username", key, "retry_after", retryAfter)
		g.emit(ctx, ActivityEventLoginLocked, key, "locked", map[string]any{
			"retry_after": retryAfter.String(),
		})
		return nil, withMetadata(ErrAccountLocked, map[string]any{
			"retry_after_seconds": int(retryAfter.Seconds()),
		})
	}

	if account == nil {
		if err := g.verifier.Verify(ctx, username, password); err != nil && !IsBadCredentialsError(err) {
			g.logger.Error("Login credential verifier error", "error", err)
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to verify credentials")
		}
		g.fail(ctx, key, "unknown username")
		return nil, ErrBadCredentials.Clone()
	}

	if err := g.verifier.Verify(ctx, account.Username, password); err != nil {
		if IsBadCredentialsError(err) {
			g.fail(ctx, key, "bad credentials")
			return nil, ErrBadCredentials.Clone()
		}
		g.logger.Error("Login credential verifier error", "error", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to verify credentials")
	}

	g.tracker.Clear(key)

	authorities, ok := g.authorities.Resolve(account.Role)
	if !ok {
		g.logger.Warn("Login unknown role, issuing no authorities", "username", key, "role", account.Role)
		authorities = []string{}
	}

	principal := &Principal{
		Username:              account.Username,
		Email:                 account.Email,
		Authorities:           authorities,
		Active:                account.Active,
		AccountNonLocked:      account.NonLocked,
		CredentialsNonExpired: true,
		AccountNonExpired:     true,
	}

	issued, err := g.codec.IssueSession(*principal)
	if err != nil {
		g.logger.Error("Login failed to issue session token", "error", err)
		return nil, err
	}

	g.emit(ctx, ActivityEventLoginSuccess, key, "", map[string]any{
		"jti":  issued.ID,
		"role": account.Role,
	})

	return &LoginResult{Principal: principal, Token: issued}, nil
}

// Authenticate verifies a session token and returns its principal. Any
// token failure is reported as ErrUnauthenticated with the cause attached.
func (g *AuthenticationGate) Authenticate(_ context.Context, token string) (*Principal, error) {
	principal, err := g.codec.Verify(strings.TrimSpace(token), TokenKindSession)
	if err != nil {
		g.logger.Debug("Authenticate rejected token", "reason", TextCodeOf(err))
		clone := ErrUnauthenticated.Clone()
		clone.Source = err
		return nil, clone.WithMetadata(map[string]any{
			"reason": TextCodeOf(err),
		})
	}
	return principal, nil
}

func (g *AuthenticationGate) fail(ctx context.Context, key, reason string) {
	attempts := g.tracker.RecordFailure(key)
	g.logger.Info("Login failed", "username", key, "reason", reason, "attempts", attempts)
	g.emit(ctx, ActivityEventLoginFailure, key, reason, map[string]any{
		"attempts": attempts,
	})
}

func (g *AuthenticationGate) emit(ctx context.Context, eventType ActivityEventType, subject, reason string, metadata map[string]any) {
	recordActivity(ctx, g.activity, g.logger, ActivityEvent{
		EventType:  eventType,
		Subject:    subject,
		Reason:     reason,
		Metadata:   metadata,
		OccurredAt: g.now(),
	})
}

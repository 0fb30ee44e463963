// Package redis provides a reset token ledger shared by every instance
// pointing at the same redis.
package redis

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-portal-auth"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces ledger keys
const DefaultPrefix = "auth:reset:"

// ResetLedger implements auth.ResetLedger with SET NX and a TTL matching
// the token expiry.
type ResetLedger struct {
	client goredis.UniversalClient
	prefix string
	now    auth.Clock
}

var _ auth.ResetLedger = (*ResetLedger)(nil)

type Option func(*ResetLedger)

func WithPrefix(prefix string) Option {
	return func(l *ResetLedger) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

func WithClock(clock auth.Clock) Option {
	return func(l *ResetLedger) {
		if clock != nil {
			l.now = clock
		}
	}
}

func NewResetLedger(client goredis.UniversalClient, opts ...Option) *ResetLedger {
	l := &ResetLedger{
		client: client,
		prefix: DefaultPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Consume implements auth.ResetLedger
func (l *ResetLedger) Consume(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(l.now())
	if ttl < time.Second {
		ttl = time.Second
	}

	ok, err := l.client.SetNX(ctx, l.key(tokenID), l.now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record reset token").
			WithMetadata(map[string]any{"jti": tokenID})
	}
	return ok, nil
}

// Release implements auth.ResetLedger
func (l *ResetLedger) Release(ctx context.Context, tokenID string) error {
	if err := l.client.Del(ctx, l.key(tokenID)).Err(); err != nil && err != goredis.Nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to release reset token").
			WithMetadata(map[string]any{"jti": tokenID})
	}
	return nil
}

func (l *ResetLedger) key(tokenID string) string {
	return l.prefix + tokenID
}

// Connect creates a client and pings it
func Connect(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "redis ping failed").
			WithMetadata(map[string]any{"addr": addr})
	}
	return client, nil
}

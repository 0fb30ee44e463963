package auth

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// ResetLedger records consumed reset tokens so each one is accepted once.
// Entries only need to outlive the token they guard.
type ResetLedger interface {
	// Consume marks tokenID as used. It returns false when it was already used.
	Consume(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error)
	// Release forgets tokenID so the token can be used again
	Release(ctx context.Context, tokenID string) error
}

// MemoryResetLedger is a process local ResetLedger
type MemoryResetLedger struct {
	entries *xsync.MapOf[string, time.Time]
	now     Clock
}

// NewMemoryResetLedger creates an empty ledger. A nil clock uses time.Now.
func NewMemoryResetLedger(clock Clock) *MemoryResetLedger {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryResetLedger{
		entries: xsync.NewMapOf[string, time.Time](),
		now:     clock,
	}
}

// Consume implements ResetLedger
func (l *MemoryResetLedger) Consume(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	now := l.now()
	l.prune(now)

	consumed := false
	l.entries.Compute(tokenID, func(old time.Time, loaded bool) (time.Time, bool) {
		if loaded && now.Before(old) {
			return old, false
		}
		consumed = true
		return expiresAt, false
	})

	return consumed, nil
}

// Release implements ResetLedger
func (l *MemoryResetLedger) Release(ctx context.Context, tokenID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.entries.Delete(tokenID)
	return nil
}

// Len returns the number of tracked tokens
func (l *MemoryResetLedger) Len() int {
	return l.entries.Size()
}

func (l *MemoryResetLedger) prune(now time.Time) {
	l.entries.Range(func(key string, expiresAt time.Time) bool {
		if !now.Before(expiresAt) {
			l.entries.Compute(key, func(old time.Time, loaded bool) (time.Time, bool) {
				return old, !loaded || !now.Before(old)
			})
		}
		return true
	})
}

type noopResetLedger struct{}

func (noopResetLedger) Consume(context.Context, string, time.Time) (bool, error) {
	return true, nil
}

func (noopResetLedger) Release(context.Context, string) error {
	return nil
}

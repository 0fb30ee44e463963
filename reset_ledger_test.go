package auth_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	auth "github.com/goliatone/go-portal-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryResetLedger_ConsumeOnce(t *testing.T) {
	clock := newFakeClock()
	ledger := auth.NewMemoryResetLedger(clock.Now)
	ctx := context.Background()
	expires := clock.Now().Add(time.Hour)

	ok, err := ledger.Consume(ctx, "jti-1", expires)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.Consume(ctx, "jti-1", expires)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ledger.Consume(ctx, "jti-2", expires)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryResetLedger_Release(t *testing.T) {
	clock := newFakeClock()
	ledger := auth.NewMemoryResetLedger(clock.Now)
	ctx := context.Background()

	_, err := ledger.Consume(ctx, "jti-1", clock.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, ledger.Release(ctx, "jti-1"))

	ok, err := ledger.Consume(ctx, "jti-1", clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryResetLedger_EntriesExpire(t *testing.T) {
	clock := newFakeClock()
	ledger := auth.NewMemoryResetLedger(clock.Now)
	ctx := context.Background()

	_, err := ledger.Consume(ctx, "jti-1", clock.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.Len())

	clock.Advance(2 * time.Minute)

	_, err = ledger.Consume(ctx, "jti-2", clock.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.Len())
}

func TestMemoryResetLedger_ConcurrentConsume(t *testing.T) {
	clock := newFakeClock()
	ledger := auth.NewMemoryResetLedger(clock.Now)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.Consume(context.Background(), "jti", clock.Now().Add(time.Hour))
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryResetLedger_CancelledContext(t *testing.T) {
	ledger := auth.NewMemoryResetLedger(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ledger.Consume(ctx, "jti", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
}

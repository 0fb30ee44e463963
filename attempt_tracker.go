package auth

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

const (
	// DefaultLockoutThreshold is the failure count at which a key is locked
	DefaultLockoutThreshold = 5
	// DefaultAttemptTTL is how long a record lives after its last failure
	DefaultAttemptTTL = 15 * time.Minute
	// DefaultAttemptCapacity bounds the number of tracked keys
	DefaultAttemptCapacity = 10000
)

type attemptRecord struct {
	count   int
	created time.Time
	updated time.Time
}

// AttemptTracker counts failed logins per key and decides lockout.
// Mutations are atomic per key and never block other keys.
type AttemptTracker struct {
	records   *xsync.MapOf[string, attemptRecord]
	threshold int
	ttl       time.Duration
	capacity  int
	now       Clock
	logger    Logger

	evictMu        sync.Mutex
	saturatedUntil time.Time
}

// TrackerOption configures an AttemptTracker
type TrackerOption func(*AttemptTracker)

// WithThreshold sets the number of failures that locks a key
func WithThreshold(threshold int) TrackerOption {
	return func(t *AttemptTracker) {
		if threshold > 0 {
			t.threshold = threshold
		}
	}
}

// WithAttemptTTL sets how long a record survives without a new failure
func WithAttemptTTL(ttl time.Duration) TrackerOption {
	return func(t *AttemptTracker) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithCapacity bounds the number of records kept in memory
func WithCapacity(capacity int) TrackerOption {
	return func(t *AttemptTracker) {
		if capacity > 0 {
			t.capacity = capacity
		}
	}
}

// WithTrackerClock injects the time source
func WithTrackerClock(clock Clock) TrackerOption {
	return func(t *AttemptTracker) {
		if clock != nil {
			t.now = clock
		}
	}
}

// WithTrackerLogger sets the logger
func WithTrackerLogger(logger Logger) TrackerOption {
	return func(t *AttemptTracker) {
		t.logger = normalizeLogger(logger)
	}
}

// NewAttemptTracker creates a tracker with the default threshold, TTL and capacity
func NewAttemptTracker(opts ...TrackerOption) *AttemptTracker {
	t := &AttemptTracker{
		records:   xsync.NewMapOf[string, attemptRecord](),
		threshold: DefaultLockoutThreshold,
		ttl:       DefaultAttemptTTL,
		capacity:  DefaultAttemptCapacity,
		now:       time.Now,
		logger:    defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Threshold returns the configured lockout threshold
func (t *AttemptTracker) Threshold() int {
	return t.threshold
}

// RecordFailure increments the count for key, starting a new record at 1 when
// none is live, and returns the new count. Every call restarts the record TTL.
// When the tracker is at capacity and every record is locked, a new key is
// not tracked and 0 is returned.
func (t *AttemptTracker) RecordFailure(key string) int {
	key = NormalizeKey(key)
	if key == "" {
		return 0
	}

	now := t.now()
	if _, ok := t.records.Load(key); !ok && t.records.Size() >= t.capacity {
		if !t.makeRoom(now) {
			t.logger.Warn("attempt tracker full of locked records, failure not tracked", "key", key)
			return 0
		}
	}

	var count int
	t.records.Compute(key, func(old attemptRecord, loaded bool) (attemptRecord, bool) {
		if !loaded || t.expired(old, now) {
			old = attemptRecord{created: now}
		}
		old.count++
		old.updated = now
		count = old.count
		return old, false
	})

	if count == t.threshold {
		t.logger.Warn("attempt tracker key locked", "key", key, "attempts", count)
	}

	return count
}

// Clear removes the record for key. Clearing an absent key is a no-op.
func (t *AttemptTracker) Clear(key string) {
	key = NormalizeKey(key)
	if key == "" {
		return
	}
	t.records.Delete(key)
}

// IsLocked reports whether key has a live record at or above the threshold.
// Reads never extend a record's lifetime.
func (t *AttemptTracker) IsLocked(key string) bool {
	return t.Attempts(key) >= t.threshold
}

// Attempts returns the live failure count for key
func (t *AttemptTracker) Attempts(key string) int {
	record, ok := t.live(NormalizeKey(key))
	if !ok {
		return 0
	}
	return record.count
}

// LockedFor returns how long key stays locked, zero if it is not locked
func (t *AttemptTracker) LockedFor(key string) time.Duration {
	record, ok := t.live(NormalizeKey(key))
	if !ok || record.count < t.threshold {
		return 0
	}
	return record.updated.Add(t.ttl).Sub(t.now())
}

// Len returns the number of records held, including expired ones not yet swept
func (t *AttemptTracker) Len() int {
	return t.records.Size()
}

// Sweep removes every expired record and returns how many were removed
func (t *AttemptTracker) Sweep() int {
	now := t.now()
	removed := 0

	t.records.Range(func(key string, record attemptRecord) bool {
		if t.expired(record, now) && t.deleteIfExpired(key, now) {
			removed++
		}
		return true
	})

	if removed > 0 {
		t.logger.Debug("attempt tracker sweep", "removed", removed, "remaining", t.records.Size())
	}

	return removed
}

// Run sweeps expired records every interval until ctx is done
func (t *AttemptTracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = t.ttl
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

func (t *AttemptTracker) live(key string) (attemptRecord, bool) {
	if key == "" {
		return attemptRecord{}, false
	}

	record, ok := t.records.Load(key)
	if !ok {
		return attemptRecord{}, false
	}

	now := t.now()
	if t.expired(record, now) {
		t.deleteIfExpired(key, now)
		return attemptRecord{}, false
	}

	return record, true
}

func (t *AttemptTracker) expired(record attemptRecord, now time.Time) bool {
	return !now.Before(record.updated.Add(t.ttl))
}

func (t *AttemptTracker) deleteIfExpired(key string, now time.Time) bool {
	deleted := false
	t.records.Compute(key, func(old attemptRecord, loaded bool) (attemptRecord, bool) {
		if !loaded {
			return old, true
		}
		if t.expired(old, now) {
			deleted = true
			return old, true
		}
		return old, false
	})
	return deleted
}

type evictionCandidate struct {
	key     string
	updated time.Time
}

// makeRoom frees space for a new key. Expired records go first, then the
// oldest records below the threshold, down to a low watermark so the scan
// is not repeated on every new key. Locked records are never evicted; when
// only locked records remain no scan runs again until the first of them
// expires. It reports whether a new record fits.
func (t *AttemptTracker) makeRoom(now time.Time) bool {
	t.evictMu.Lock()
	defer t.evictMu.Unlock()

	if t.records.Size() < t.capacity {
		return true
	}

	if now.Before(t.saturatedUntil) {
		return false
	}

	var (
		candidates []evictionCandidate
		nextExpiry time.Time
	)
	t.records.Range(func(key string, record attemptRecord) bool {
		if t.expired(record, now) {
			t.deleteIfExpired(key, now)
			return true
		}
		if record.count >= t.threshold {
			if expiry := record.updated.Add(t.ttl); nextExpiry.IsZero() || expiry.Before(nextExpiry) {
				nextExpiry = expiry
			}
			return true
		}
		candidates = append(candidates, evictionCandidate{key: key, updated: record.updated})
		return true
	})

	excess := t.records.Size() - t.lowWatermark()
	if excess > 0 && len(candidates) > 0 {
		slices.SortFunc(candidates, func(a, b evictionCandidate) int {
			return a.updated.Compare(b.updated)
		})

		for _, c := range candidates[:min(excess, len(candidates))] {
			t.records.Compute(c.key, func(old attemptRecord, loaded bool) (attemptRecord, bool) {
				return old, !loaded || (old.updated.Equal(c.updated) && old.count < t.threshold)
			})
		}
		t.logger.Debug("attempt tracker evicted unlocked records", "count", min(excess, len(candidates)), "at", now)
	}

	if t.records.Size() < t.capacity {
		t.saturatedUntil = time.Time{}
		return true
	}

	t.saturatedUntil = nextExpiry
	return false
}

func (t *AttemptTracker) lowWatermark() int {
	return min(t.capacity-t.capacity/10, t.capacity-1)
}

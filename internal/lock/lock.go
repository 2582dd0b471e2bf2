// Package lock implements a short-TTL distributed mutual-exclusion
// primitive over a named resource.  The algorithm is the classic
// single-store variant: set-if-absent with expiry to acquire, and a
// check-and-delete on the stored owner token to release, so a caller
// whose TTL already lapsed can never delete a lock someone else now
// holds.  The store is abstracted behind the Store interface so a
// quorum-based backend can be swapped in without changing callers.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotAcquired is returned when the lock could not be obtained
// within the configured retry budget (or, for TryAcquireOnce, on the
// single attempt).  It signals a retryable condition, not a failure
// of the lock backend.
var ErrNotAcquired = errors.New("lock: not acquired")

// Store is the minimal key-value surface the locker needs.  Both
// operations must be atomic on the backend.
type Store interface {
	// SetIfAbsent stores token under key with the given TTL only if
	// the key does not exist.  It reports whether the write happened.
	SetIfAbsent(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// DeleteIfOwner deletes key only if its current value equals
	// token.  It reports whether a deletion happened.
	DeleteIfOwner(ctx context.Context, key, token string) (bool, error)
}

// Lock is a handle to an acquired resource.  The owner token is kept
// private; release goes through Locker.Release.
type Lock struct {
	Resource string
	token    string
}

// Locker acquires and releases locks against a Store.  Attempts and
// delay bound the total wait of Acquire; the zero delay between
// attempts is not meaningful, so both are validated in New.
type Locker struct {
	store    Store
	attempts int
	delay    time.Duration
}

// New constructs a Locker.  attempts is the total number of
// set-if-absent tries Acquire performs; delay is the fixed pause
// between them.  Values below the minimum are clamped.
func New(store Store, attempts int, delay time.Duration) *Locker {
	if attempts < 1 {
		attempts = 1
	}
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}
	return &Locker{store: store, attempts: attempts, delay: delay}
}

// Acquire tries to take the named resource for ttl, retrying a bounded
// number of times with fixed delay.  It returns ErrNotAcquired once
// the budget is exhausted so callers can surface a retryable
// condition rather than crash.
func (l *Locker) Acquire(ctx context.Context, resource string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	for i := 0; i < l.attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(l.delay):
			}
		}
		ok, err := l.store.SetIfAbsent(ctx, resource, token, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lock{Resource: resource, token: token}, nil
		}
	}
	return nil, ErrNotAcquired
}

// TryAcquireOnce is the non-retrying variant used for one-worker-per-
// tick scheduling: a single attempt, immediate ErrNotAcquired on
// contention.
func (l *Locker) TryAcquireOnce(ctx context.Context, resource string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := l.store.SetIfAbsent(ctx, resource, token, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &Lock{Resource: resource, token: token}, nil
}

// Release deletes the lock key only if the stored owner token still
// matches.  Losing ownership to TTL expiry is not an error: the lock
// is simply gone and someone else may legitimately hold the key.
func (l *Locker) Release(ctx context.Context, lk *Lock) error {
	if lk == nil {
		return nil
	}
	_, err := l.store.DeleteIfOwner(ctx, lk.Resource, lk.token)
	return err
}

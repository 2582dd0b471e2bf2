package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinebook/cinebook/internal/lock"
	"github.com/cinebook/cinebook/internal/model"
	"github.com/cinebook/cinebook/internal/repository"
)

type serviceFixture struct {
	svc    *Service
	locker *lock.Locker
	cache  *fakeCache
	ledger *fakeLedger
	seats  *fakeSeats
	bus    *fakeBus
	now    time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	showtime := now.Add(2 * time.Hour)
	f := &serviceFixture{
		locker: lock.New(lock.NewMemoryStore(), 3, time.Millisecond),
		cache:  newFakeCache(),
		ledger: newFakeLedger(),
		seats: &fakeSeats{seats: map[uint64]model.SessionSeat{
			100: {ID: 100, SessionID: 1, SeatID: 10, IsAvailable: true},
			101: {ID: 101, SessionID: 1, SeatID: 11, IsAvailable: false},
		}},
		bus: &fakeBus{},
		now: now,
	}
	sessions := &fakeSessions{sessions: map[uint64]model.Session{
		1: {ID: 1, RoomID: 5, StartsAt: showtime, EndsAt: showtime.Add(2 * time.Hour)},
	}}
	f.svc = NewService(f.locker, f.cache, f.ledger, f.seats, sessions, f.bus,
		ServiceConfig{HoldDuration: 30 * time.Second, LockTTL: time.Second}, nil)
	f.svc.SetNow(func() time.Time { return f.now })
	return f
}

func TestReserveCreatesHold(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	res, err := f.svc.Reserve(ctx, 1, 100, 7)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, uint64(1), res.SessionID)
	assert.Equal(t, uint64(100), res.SessionSeatID)
	assert.Equal(t, uint64(7), res.UserID)
	assert.Equal(t, f.now.Add(30*time.Second), res.ExpiresAt)

	// Ledger row written, hold cache entry set, event published.
	assert.Equal(t, 1, f.ledger.count())
	exp, ok := f.cache.holds[100]
	require.True(t, ok)
	assert.Equal(t, res.ExpiresAt, exp)
	require.Len(t, f.bus.created, 1)
	assert.Equal(t, res.ID, f.bus.created[0].ID)
	assert.NotEmpty(t, f.bus.created[0].EventID)

	// The per-seat lock must be free again after the request.
	lk, err := f.locker.Acquire(ctx, "reservation:100", time.Second)
	require.NoError(t, err)
	require.NotNil(t, lk)
}

func TestReserveSoldSeat(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Reserve(context.Background(), 1, 101, 7)
	assert.ErrorIs(t, err, ErrNotAvailable)
	assert.Zero(t, f.ledger.count())

	// The miss populated the availability cache from the seat store.
	avail, known := f.cache.avail[availKey{1, 101}]
	require.True(t, known)
	assert.False(t, avail)
}

func TestReserveHeldSeatCarriesExpiry(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	// User A holds the seat; the hold reached the ledger but the
	// cache entry was lost.
	holdExpiry := f.now.Add(25 * time.Second)
	require.NoError(t, f.ledger.Insert(ctx, &model.Reservation{
		SessionID: 1, SessionSeatID: 100, UserID: 3, ExpiresAt: holdExpiry,
	}))

	_, err := f.svc.Reserve(ctx, 1, 100, 7)
	var already *AlreadyReservedError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, holdExpiry, already.ExpiresAt)

	// The ledger fallback repopulated the hold cache.
	exp, ok := f.cache.holds[100]
	require.True(t, ok)
	assert.Equal(t, holdExpiry, exp)
}

func TestReserveIgnoresExpiredCachedHold(t *testing.T) {
	f := newServiceFixture(t)

	// A stale hold marker from a previous reservation.
	f.cache.holds[100] = f.now.Add(-time.Second)

	res, err := f.svc.Reserve(context.Background(), 1, 100, 7)
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestReserveLockContention(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	// An in-flight request holds the seat lock.
	lk, err := f.locker.Acquire(ctx, "reservation:100", time.Minute)
	require.NoError(t, err)
	defer func() { _ = f.locker.Release(ctx, lk) }()

	_, err = f.svc.Reserve(ctx, 1, 100, 7)
	assert.ErrorIs(t, err, ErrLockUnavailable)
	assert.Zero(t, f.ledger.count(), "no partial state may be written")
	assert.Empty(t, f.bus.created)
}

func TestReserveCacheHitSkipsStores(t *testing.T) {
	f := newServiceFixture(t)

	// Both answers come from the cache; the seat store has no entry
	// for this seat, so touching it would fail the request.
	f.cache.avail[availKey{1, 999}] = true
	f.cache.holds[999] = f.now.Add(20 * time.Second)

	_, err := f.svc.Reserve(context.Background(), 1, 999, 7)
	var already *AlreadyReservedError
	require.ErrorAs(t, err, &already)
}

func TestReserveUnknownSeat(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Reserve(context.Background(), 1, 999, 7)
	assert.ErrorIs(t, err, repository.ErrSeatNotFound)
}

func TestReserveSeatFromOtherSession(t *testing.T) {
	f := newServiceFixture(t)
	// Seat 100 belongs to session 1, not session 2.
	_, err := f.svc.Reserve(context.Background(), 2, 100, 7)
	assert.ErrorIs(t, err, repository.ErrSeatNotFound)
}

func TestReserveSeatFromOtherSessionWithWarmCache(t *testing.T) {
	f := newServiceFixture(t)
	// The seat's availability is cached under its real session.  A
	// request naming session 2 must not ride that entry past the
	// membership check.
	f.cache.avail[availKey{1, 100}] = true

	_, err := f.svc.Reserve(context.Background(), 2, 100, 7)
	assert.ErrorIs(t, err, repository.ErrSeatNotFound)
	assert.Zero(t, f.ledger.count())
	assert.Empty(t, f.bus.created)
}

func TestReserveSurvivesCacheFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.cache.getAvailErr = errors.New("cache down")
	f.cache.getHoldErr = errors.New("cache down")

	// Reads degrade to the stores; the request still succeeds.
	res, err := f.svc.Reserve(context.Background(), 1, 100, 7)
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestHoldReturnsOwnReservation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	res, err := f.svc.Reserve(ctx, 1, 100, 7)
	require.NoError(t, err)

	got, err := f.svc.Hold(ctx, res.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, res.ID, got.ID)
	assert.Equal(t, res.ExpiresAt, got.ExpiresAt)
	assert.True(t, got.Active(f.now))
}

func TestHoldHidesOtherUsersReservation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	res, err := f.svc.Reserve(ctx, 1, 100, 7)
	require.NoError(t, err)

	_, err = f.svc.Hold(ctx, res.ID, 8)
	assert.ErrorIs(t, err, repository.ErrReservationNotFound)
}

func TestHoldUnknownReservation(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Hold(context.Background(), 999, 7)
	assert.ErrorIs(t, err, repository.ErrReservationNotFound)
}

func TestConcurrentReserveExactlyOneWinner(t *testing.T) {
	f := newServiceFixture(t)
	// Generous retry budget so every caller eventually enters the
	// critical section instead of timing out on the lock.
	f.svc.locker = lock.New(lock.NewMemoryStore(), 200, time.Millisecond)
	ctx := context.Background()

	const callers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		rejected int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(user uint64) {
			defer wg.Done()
			_, err := f.svc.Reserve(ctx, 1, 100, user)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			default:
				var already *AlreadyReservedError
				if errors.As(err, &already) {
					rejected++
				}
			}
		}(uint64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one concurrent caller may win the seat")
	assert.Equal(t, callers-1, rejected, "everyone else sees the existing hold")
	assert.Equal(t, 1, f.ledger.count())
	assert.Len(t, f.bus.created, 1)
}

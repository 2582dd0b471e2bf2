// Package booking holds the seat-reservation core: the reserve-seat
// use case, the expiration reaper and the payment reconciliation
// handlers.  The authoritative mutable state is the seat's
// availability plus the existence of an active hold; the per-seat
// distributed lock is the sole gate for creating a hold, while the
// background components rely on the ledger being authoritative
// rather than on holding that lock.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cinebook/cinebook/internal/lock"
	"github.com/cinebook/cinebook/internal/model"
	"github.com/cinebook/cinebook/internal/queue"
	"github.com/cinebook/cinebook/internal/repository"
)

// SeatCache is the read-through cache consulted before the durable
// stores.  It may be briefly stale; entries self-heal via TTL.
type SeatCache interface {
	GetAvailability(ctx context.Context, sessionID, seatID uint64) (available, known bool, err error)
	SetAvailability(ctx context.Context, sessionID, seatID uint64, available bool, until time.Time) error
	GetHold(ctx context.Context, seatID uint64) (time.Time, bool, error)
	SetHold(ctx context.Context, seatID uint64, expiresAt time.Time) error
}

// ReservationLedger is the durable store of holds.
type ReservationLedger interface {
	Insert(ctx context.Context, res *model.Reservation) error
	FindByID(ctx context.Context, id uint64) (*model.Reservation, error)
	FindActiveBySeat(ctx context.Context, sessionSeatID uint64, now time.Time) (*model.Reservation, error)
	ListExpired(ctx context.Context, now time.Time) ([]model.Reservation, error)
	Delete(ctx context.Context, id uint64) error
}

// SeatStore reads seat-in-a-showing records.
type SeatStore interface {
	FindByID(ctx context.Context, id uint64) (*model.SessionSeat, error)
}

// SessionStore reads showing metadata, used to align availability
// cache TTLs with showtime.
type SessionStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Session, error)
}

// EventBus publishes domain events with at-least-once delivery.
type EventBus interface {
	PublishReservationCreated(ctx context.Context, ev queue.ReservationCreatedEvent) error
	PublishReservationExpired(ctx context.Context, ev queue.ReservationExpiredEvent) error
	PublishSeatReleased(ctx context.Context, ev queue.SeatReleasedEvent) error
	PublishReservationConflict(ctx context.Context, ev queue.ReservationConflictEvent) error
}

// ServiceConfig carries the tunables of the reserve path.
type ServiceConfig struct {
	// HoldDuration is how long a hold lives before the reaper may
	// release it.
	HoldDuration time.Duration
	// LockTTL bounds the per-seat critical section.  It is kept
	// deliberately short; exclusivity is not renewed beyond it.
	LockTTL time.Duration
}

func (c *ServiceConfig) applyDefaults() {
	if c.HoldDuration <= 0 {
		c.HoldDuration = 30 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 500 * time.Millisecond
	}
}

// Service implements the reserve-seat use case.
type Service struct {
	locker   *lock.Locker
	cache    SeatCache
	ledger   ReservationLedger
	seats    SeatStore
	sessions SessionStore
	bus      EventBus
	cfg      ServiceConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires the reserve-seat use case.  All dependencies must
// be non-nil.
func NewService(locker *lock.Locker, cache SeatCache, ledger ReservationLedger, seats SeatStore, sessions SessionStore, bus EventBus, cfg ServiceConfig, logger *zap.Logger) *Service {
	if locker == nil || cache == nil || ledger == nil || seats == nil || sessions == nil || bus == nil {
		panic("nil dependency passed to NewService")
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		locker:   locker,
		cache:    cache,
		ledger:   ledger,
		seats:    seats,
		sessions: sessions,
		bus:      bus,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// SetNow overrides the clock; intended for tests.
func (s *Service) SetNow(now func() time.Time) { s.now = now }

func seatLockResource(sessionSeatID uint64) string {
	return fmt.Sprintf("reservation:%d", sessionSeatID)
}

// Reserve creates a hold on the given session seat for the user.  The
// whole check-then-write sequence runs under the per-seat lock: every
// round-trip to cache and ledger is an interleave point, so the
// individual operations being atomic would not be enough.
//
// Failure modes: ErrLockUnavailable (transient, nothing written),
// ErrNotAvailable (seat sold), *AlreadyReservedError (active hold,
// carries its expiry), repository.ErrSeatNotFound / ErrSessionNotFound
// (bad reference).
func (s *Service) Reserve(ctx context.Context, sessionID, sessionSeatID, userID uint64) (*model.Reservation, error) {
	lk, err := s.locker.Acquire(ctx, seatLockResource(sessionSeatID), s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, ErrLockUnavailable
		}
		return nil, fmt.Errorf("acquire seat lock: %w", err)
	}
	defer func() {
		// Release must run on every exit path, including caller
		// cancellation mid-request.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if rerr := s.locker.Release(rctx, lk); rerr != nil {
			s.logger.Warn("seat lock release failed",
				zap.Uint64("session_seat_id", sessionSeatID), zap.Error(rerr))
		}
	}()

	// Availability and active-hold checks are independent round-trips;
	// run them concurrently under the lock.
	var (
		available  bool
		availErr   error
		holdExpiry time.Time
		holdActive bool
		holdErr    error
		wg         sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		available, availErr = s.seatAvailable(ctx, sessionID, sessionSeatID)
	}()
	go func() {
		defer wg.Done()
		holdExpiry, holdActive, holdErr = s.activeHold(ctx, sessionSeatID)
	}()
	wg.Wait()
	if availErr != nil {
		return nil, availErr
	}
	if holdErr != nil {
		return nil, holdErr
	}
	if !available {
		return nil, ErrNotAvailable
	}
	if holdActive {
		return nil, &AlreadyReservedError{ExpiresAt: holdExpiry}
	}

	now := s.now()
	expiresAt := now.Add(s.cfg.HoldDuration)

	// Hold marker first, then the ledger row.  The cache is not the
	// source of truth, so a failed marker write only costs a ledger
	// lookup on the next check.
	if err := s.cache.SetHold(ctx, sessionSeatID, expiresAt); err != nil {
		s.logger.Warn("hold cache write failed",
			zap.Uint64("session_seat_id", sessionSeatID), zap.Error(err))
	}

	res := &model.Reservation{
		SessionID:     sessionID,
		SessionSeatID: sessionSeatID,
		UserID:        userID,
		ExpiresAt:     expiresAt,
	}
	if err := s.ledger.Insert(ctx, res); err != nil {
		return nil, fmt.Errorf("insert reservation: %w", err)
	}

	ev := queue.ReservationCreatedEvent{
		EventID:       uuid.NewString(),
		SessionID:     res.SessionID,
		ID:            res.ID,
		SessionSeatID: res.SessionSeatID,
		UserID:        res.UserID,
		ExpiresAt:     res.ExpiresAt,
		CreatedAt:     res.CreatedAt,
	}
	if err := s.bus.PublishReservationCreated(ctx, ev); err != nil {
		// The hold exists either way; consumers tolerate the gap.
		s.logger.Warn("publish reservation.created failed",
			zap.Uint64("reservation_id", res.ID), zap.Error(err))
	}
	return res, nil
}

// Hold looks up a reservation for the given user.  A hold that was
// reaped or consumed by a sale is gone, so clients polling their hold
// see repository.ErrReservationNotFound once it no longer exists; a
// hold belonging to someone else is reported the same way.
func (s *Service) Hold(ctx context.Context, id, userID uint64) (*model.Reservation, error) {
	res, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.UserID != userID {
		return nil, repository.ErrReservationNotFound
	}
	return res, nil
}

// seatAvailable answers "can this seat still be sold", cache-first
// with seat-store fallback.  On a miss the cache is populated with a
// TTL ending at showtime.  Cache entries are keyed by (session, seat),
// so a hit already proves the seat belongs to the named session; it
// is the store fallback that establishes that binding.
func (s *Service) seatAvailable(ctx context.Context, sessionID, sessionSeatID uint64) (bool, error) {
	if avail, known, err := s.cache.GetAvailability(ctx, sessionID, sessionSeatID); err != nil {
		s.logger.Warn("availability cache read failed",
			zap.Uint64("session_seat_id", sessionSeatID), zap.Error(err))
	} else if known {
		return avail, nil
	}
	seat, err := s.seats.FindByID(ctx, sessionSeatID)
	if err != nil {
		return false, err
	}
	if seat.SessionID != sessionID {
		return false, repository.ErrSeatNotFound
	}
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if err := s.cache.SetAvailability(ctx, sessionID, sessionSeatID, seat.IsAvailable, sess.StartsAt); err != nil {
		s.logger.Warn("availability cache write failed",
			zap.Uint64("session_seat_id", sessionSeatID), zap.Error(err))
	}
	return seat.IsAvailable, nil
}

// activeHold answers "does this seat have an unexpired hold",
// cache-first with ledger fallback-and-populate.
func (s *Service) activeHold(ctx context.Context, sessionSeatID uint64) (time.Time, bool, error) {
	now := s.now()
	if exp, ok, err := s.cache.GetHold(ctx, sessionSeatID); err != nil {
		s.logger.Warn("hold cache read failed",
			zap.Uint64("session_seat_id", sessionSeatID), zap.Error(err))
	} else if ok && exp.After(now) {
		return exp, true, nil
	}
	res, err := s.ledger.FindActiveBySeat(ctx, sessionSeatID, now)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	if err := s.cache.SetHold(ctx, sessionSeatID, res.ExpiresAt); err != nil {
		s.logger.Warn("hold cache write failed",
			zap.Uint64("session_seat_id", sessionSeatID), zap.Error(err))
	}
	return res.ExpiresAt, true, nil
}

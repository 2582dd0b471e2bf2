package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cinebook/cinebook/internal/lock"
	"github.com/cinebook/cinebook/internal/queue"
)

// reaperLockResource scopes the one-worker-per-tick lock to the
// expired-holds job, cluster-wide.
const reaperLockResource = "reaper:expired-holds"

// Reaper periodically releases stale holds.  Each tick takes a single
// non-retrying cluster lock; when another replica already holds it
// the tick is skipped entirely, so two replicas never emit duplicate
// expiration events within one tick.
type Reaper struct {
	locker   *lock.Locker
	ledger   ReservationLedger
	bus      EventBus
	interval time.Duration
	lockTTL  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewReaper wires the expiration reaper.
func NewReaper(locker *lock.Locker, ledger ReservationLedger, bus EventBus, interval, lockTTL time.Duration, logger *zap.Logger) *Reaper {
	if locker == nil || ledger == nil || bus == nil {
		panic("nil dependency passed to NewReaper")
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{
		locker:   locker,
		ledger:   ledger,
		bus:      bus,
		interval: interval,
		lockTTL:  lockTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// SetNow overrides the clock; intended for tests.
func (r *Reaper) SetNow(now func() time.Time) { r.now = now }

// Run ticks at the configured interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				r.logger.Error("reaper tick failed", zap.Error(err))
			}
		}
	}
}

// Tick releases every hold whose expiry has passed: for each expired
// ledger row it publishes reservation.expired and seat.released (the
// order between the two is not significant) and deletes the row.  A
// row whose events could not be published is left in place for the
// next tick; consumers are idempotent, so the occasional repeat is
// harmless while a lost release is not.
func (r *Reaper) Tick(ctx context.Context) error {
	lk, err := r.locker.TryAcquireOnce(ctx, reaperLockResource, r.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			// Another instance is assumed to be running this tick.
			return nil
		}
		return fmt.Errorf("acquire reaper lock: %w", err)
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if rerr := r.locker.Release(rctx, lk); rerr != nil {
			r.logger.Warn("reaper lock release failed", zap.Error(rerr))
		}
	}()

	now := r.now()
	expired, err := r.ledger.ListExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("list expired holds: %w", err)
	}
	for _, res := range expired {
		expiredEv := queue.ReservationExpiredEvent{
			EventID:       uuid.NewString(),
			ID:            res.ID,
			SessionSeatID: res.SessionSeatID,
			UserID:        res.UserID,
			ExpiresAt:     res.ExpiresAt,
			CreatedAt:     res.CreatedAt,
		}
		releasedEv := queue.SeatReleasedEvent{
			EventID:    uuid.NewString(),
			ID:         res.SessionSeatID,
			ReleasedAt: now,
		}
		if err := r.bus.PublishReservationExpired(ctx, expiredEv); err != nil {
			r.logger.Warn("publish reservation.expired failed",
				zap.Uint64("reservation_id", res.ID), zap.Error(err))
			continue
		}
		if err := r.bus.PublishSeatReleased(ctx, releasedEv); err != nil {
			r.logger.Warn("publish seat.released failed",
				zap.Uint64("session_seat_id", res.SessionSeatID), zap.Error(err))
			continue
		}
		if err := r.ledger.Delete(ctx, res.ID); err != nil {
			r.logger.Warn("delete expired reservation failed",
				zap.Uint64("reservation_id", res.ID), zap.Error(err))
			continue
		}
		r.logger.Info("hold expired",
			zap.Uint64("reservation_id", res.ID),
			zap.Uint64("session_seat_id", res.SessionSeatID),
			zap.Uint64("user_id", res.UserID))
	}
	return nil
}

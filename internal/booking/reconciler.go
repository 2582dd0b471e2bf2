package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cinebook/cinebook/internal/queue"
	"github.com/cinebook/cinebook/internal/repository"
)

// SaleStore finalizes a hold into a sale as one atomic unit of work.
type SaleStore interface {
	ConfirmSale(ctx context.Context, reservationID uint64, soldAt time.Time) (*repository.SaleResult, error)
}

// PaymentStore performs the compensating refund transition.
type PaymentStore interface {
	RefundByExternalID(ctx context.Context, externalID uint64) (bool, error)
}

// Reconciler consumes payment and conflict notifications.  Both
// handlers are idempotent against duplicate and out-of-order
// delivery: a reference that no longer resolves is a no-op, never an
// error, because the hold may already have expired and been reaped or
// the message may be a repeat.
type Reconciler struct {
	sales    SaleStore
	payments PaymentStore
	sessions SessionStore
	cache    SeatCache
	bus      EventBus
	logger   *zap.Logger
	now      func() time.Time
}

// NewReconciler wires the payment reconciliation and conflict handlers.
func NewReconciler(sales SaleStore, payments PaymentStore, sessions SessionStore, cache SeatCache, bus EventBus, logger *zap.Logger) *Reconciler {
	if sales == nil || payments == nil || sessions == nil || cache == nil || bus == nil {
		panic("nil dependency passed to NewReconciler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		sales:    sales,
		payments: payments,
		sessions: sessions,
		cache:    cache,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
	}
}

// SetNow overrides the clock; intended for tests.
func (rc *Reconciler) SetNow(now func() time.Time) { rc.now = now }

// HandlePaymentApproved finalizes the hold referenced by an approved
// payment: the seat is marked sold to the hold's user and the
// availability cache is flipped to unavailable until showtime.  A
// payment without a reservation reference does not correspond to a
// seat hold and is ignored.  When the seat turns out to have been
// sold through a different hold, a seat.reservation-conflict event is
// emitted instead, and the conflict handler refunds the payment.
func (rc *Reconciler) HandlePaymentApproved(ctx context.Context, body []byte) error {
	var ev queue.PaymentApprovedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal payment.approved: %w: %v", queue.ErrBadPayload, err)
	}
	if ev.ExternalID == nil {
		return nil
	}

	result, err := rc.sales.ConfirmSale(ctx, *ev.ExternalID, rc.now())
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			// Hold already expired and reaped, or duplicate delivery.
			return nil
		}
		if errors.Is(err, repository.ErrSeatNotFound) {
			rc.logger.Warn("payment references a missing seat",
				zap.Uint64("reservation_id", *ev.ExternalID))
			return nil
		}
		return fmt.Errorf("confirm sale: %w", err)
	}

	if result.Conflict {
		conflict := queue.ReservationConflictEvent{
			EventID:       uuid.NewString(),
			ReservationID: result.Reservation.ID,
			SessionSeatID: result.Reservation.SessionSeatID,
			UserID:        result.Reservation.UserID,
		}
		rc.logger.Warn("seat already sold under a different hold",
			zap.Uint64("reservation_id", result.Reservation.ID),
			zap.Uint64("session_seat_id", result.Reservation.SessionSeatID))
		return rc.bus.PublishReservationConflict(ctx, conflict)
	}

	sess, err := rc.sessions.GetByID(ctx, result.Seat.SessionID)
	if err != nil {
		// The sale is committed; a stale cache entry heals by TTL.
		rc.logger.Warn("session lookup for cache update failed",
			zap.Uint64("session_id", result.Seat.SessionID), zap.Error(err))
		return nil
	}
	if err := rc.cache.SetAvailability(ctx, result.Seat.SessionID, result.Seat.ID, false, sess.StartsAt); err != nil {
		rc.logger.Warn("availability cache update failed",
			zap.Uint64("session_seat_id", result.Seat.ID), zap.Error(err))
	}
	rc.logger.Info("seat sold",
		zap.Uint64("reservation_id", result.Reservation.ID),
		zap.Uint64("session_seat_id", result.Seat.ID),
		zap.Uint64("user_id", result.Reservation.UserID))
	return nil
}

// HandleReservationConflict refunds the payment behind a hold whose
// seat was sold through a different hold.  This is a compensating
// action, not a preventive one.
func (rc *Reconciler) HandleReservationConflict(ctx context.Context, body []byte) error {
	var ev queue.ReservationConflictEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal seat.reservation-conflict: %w: %v", queue.ErrBadPayload, err)
	}
	refunded, err := rc.payments.RefundByExternalID(ctx, ev.ReservationID)
	if err != nil {
		return fmt.Errorf("refund payment: %w", err)
	}
	if !refunded {
		// Already refunded or unrelated; duplicate deliveries land here.
		return nil
	}
	rc.logger.Info("payment refunded after reservation conflict",
		zap.Uint64("reservation_id", ev.ReservationID),
		zap.Uint64("session_seat_id", ev.SessionSeatID),
		zap.Uint64("user_id", ev.UserID))
	return nil
}

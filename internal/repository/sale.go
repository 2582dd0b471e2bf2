package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cinebook/cinebook/internal/model"
)

// SaleResult reports the outcome of confirming a hold.  When Conflict
// is true the seat had already been sold through a different hold;
// the reservation row is still consumed so the reaper does not later
// re-release a seat that was paid for.
type SaleResult struct {
	Reservation model.Reservation
	Seat        model.SessionSeat
	Conflict    bool
}

// SaleRepo finalizes holds.  Confirming a sale touches both the
// reservations and session_seats tables, so the whole step runs in
// one transaction: a crash mid-way must not leave the seat and the
// reservation inconsistent.
type SaleRepo struct {
	db *sql.DB
}

// NewSaleRepo returns a SaleRepo bound to the given database.
func NewSaleRepo(db *sql.DB) *SaleRepo { return &SaleRepo{db: db} }

// ConfirmSale marks the seat referenced by the reservation as sold to
// the reservation's user and consumes the reservation row.  It
// returns ErrReservationNotFound when the hold is gone (already
// expired and reaped, or a duplicate delivery) and ErrSeatNotFound
// when the ledger points at a missing seat.
//
// The seat update is conditional on the seat still being available;
// a row that was already sold yields Conflict=true instead of
// overwriting the existing sale.
func (r *SaleRepo) ConfirmSale(ctx context.Context, reservationID uint64, soldAt time.Time) (*SaleResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var res model.Reservation
	const selRes = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ? FOR UPDATE`
	if err := scanReservation(tx.QueryRowContext(ctx, selRes, reservationID), &res); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}

	var seat model.SessionSeat
	const selSeat = `SELECT ` + sessionSeatColumns + ` FROM session_seats WHERE id = ? FOR UPDATE`
	if err := scanSessionSeat(tx.QueryRowContext(ctx, selSeat, res.SessionSeatID), &seat); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSeatNotFound
		}
		return nil, err
	}

	conflict := !seat.IsAvailable
	if !conflict {
		const upd = `UPDATE session_seats
		             SET is_available = 0, sold_at = ?, owner_user_id = ?
		             WHERE id = ? AND is_available = 1`
		result, err := tx.ExecContext(ctx, upd, soldAt.UTC(), res.UserID, seat.ID)
		if err != nil {
			return nil, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			conflict = true
		} else {
			t := soldAt.UTC()
			seat.IsAvailable = false
			seat.SoldAt = &t
			seat.OwnerUserID = &res.UserID
		}
	}

	// The hold is consumed either way.
	if _, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, res.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return &SaleResult{Reservation: res, Seat: seat, Conflict: conflict}, nil
}

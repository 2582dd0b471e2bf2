package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cinebook/cinebook/internal/model"
)

// ReservationRepo is the durable ledger of seat holds.  It is the
// source of truth: the hold cache may be lost or stale, the ledger
// may not.  All timestamps are stored and compared in UTC; callers
// supply "now" explicitly so expiry queries stay clock-injectable.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, session_id, session_seat_id, user_id, created_at, expires_at`

func scanReservation(row interface{ Scan(...any) error }, res *model.Reservation) error {
	return row.Scan(&res.ID, &res.SessionID, &res.SessionSeatID, &res.UserID, &res.CreatedAt, &res.ExpiresAt)
}

// Insert persists a new hold and populates the generated ID and the
// DB-assigned creation timestamp on the given record.  A successful
// INSERT whose row cannot be read back is reported as
// ErrNotPersisted.
func (r *ReservationRepo) Insert(ctx context.Context, res *model.Reservation) error {
	const q = `INSERT INTO reservations (session_id, session_seat_id, user_id, expires_at) VALUES (?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, q, res.SessionID, res.SessionSeatID, res.UserID, res.ExpiresAt.UTC())
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	// Query the row back to pick up created_at and normalize expires_at.
	const sel = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	if err := scanReservation(r.db.QueryRowContext(ctx, sel, res.ID), res); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotPersisted
		}
		return err
	}
	return nil
}

// FindByID returns the hold with the given id or ErrReservationNotFound.
func (r *ReservationRepo) FindByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	var res model.Reservation
	if err := scanReservation(r.db.QueryRowContext(ctx, q, id), &res); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return &res, nil
}

// FindActiveBySeat returns the unexpired hold on the given session
// seat, if one exists.  It is the ledger fallback behind the hold
// cache on the reservation path.
func (r *ReservationRepo) FindActiveBySeat(ctx context.Context, sessionSeatID uint64, now time.Time) (*model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations
	           WHERE session_seat_id = ? AND expires_at > ?
	           ORDER BY expires_at DESC LIMIT 1`
	var res model.Reservation
	if err := scanReservation(r.db.QueryRowContext(ctx, q, sessionSeatID, now.UTC()), &res); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return &res, nil
}

// ListExpired returns every hold whose expiry has passed at the given
// instant.  The reaper publishes release events for each and then
// deletes the rows.
func (r *ReservationRepo) ListExpired(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations WHERE expires_at < ?`
	rows, err := r.db.QueryContext(ctx, q, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		var res model.Reservation
		if err := scanReservation(rows, &res); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// Delete removes the hold row.  Deleting a row that is already gone
// is not an error; the reaper and the reconciler may race on the same
// reservation.
func (r *ReservationRepo) Delete(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	return err
}

package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cinebook/cinebook/internal/model"
)

// SessionSeatRepo manages persistence for session_seats, the
// seat-in-a-showing records.  Rows are bulk-created when a showing is
// initialized and mutated only when a sale is recorded (see SaleRepo);
// the reservation path reads them but never writes them.
type SessionSeatRepo struct {
	db *sql.DB
}

// NewSessionSeatRepo returns a SessionSeatRepo bound to the given database.
func NewSessionSeatRepo(db *sql.DB) *SessionSeatRepo { return &SessionSeatRepo{db: db} }

const sessionSeatColumns = `id, session_id, seat_id, is_available, sold_at, owner_user_id, created_at, updated_at`

func scanSessionSeat(row interface{ Scan(...any) error }, s *model.SessionSeat) error {
	var soldAt sql.NullTime
	var owner sql.NullInt64
	if err := row.Scan(&s.ID, &s.SessionID, &s.SeatID, &s.IsAvailable, &soldAt, &owner, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return err
	}
	if soldAt.Valid {
		t := soldAt.Time
		s.SoldAt = &t
	}
	if owner.Valid {
		u := uint64(owner.Int64)
		s.OwnerUserID = &u
	}
	return nil
}

// FindByID returns the seat-in-a-showing record or ErrSeatNotFound.
// It is the authoritative fallback behind the availability cache.
func (r *SessionSeatRepo) FindByID(ctx context.Context, id uint64) (*model.SessionSeat, error) {
	const q = `SELECT ` + sessionSeatColumns + ` FROM session_seats WHERE id = ?`
	var seat model.SessionSeat
	if err := scanSessionSeat(r.db.QueryRowContext(ctx, q, id), &seat); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSeatNotFound
		}
		return nil, err
	}
	return &seat, nil
}

// InitializeForSession bulk-copies the room's physical seat layout
// into session_seats for the given showing.  Every seat starts out
// available.  It returns the number of rows created; running it twice
// for the same session is rejected by the (session_id, seat_id)
// unique key.
func (r *SessionSeatRepo) InitializeForSession(ctx context.Context, sessionID uint64) (int64, error) {
	const q = `INSERT INTO session_seats (session_id, seat_id)
	           SELECT ss.id, s.id
	           FROM sessions ss
	           JOIN seats s ON s.room_id = ss.room_id
	           WHERE ss.id = ?`
	result, err := r.db.ExecContext(ctx, q, sessionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

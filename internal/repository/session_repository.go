package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cinebook/cinebook/internal/model"
)

// SessionRepo reads showing metadata.  The catalog service owns the
// rows; this service only needs the schedule to align cache TTLs with
// showtime.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a SessionRepo bound to the given database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

// GetByID returns the showing or ErrSessionNotFound.
func (r *SessionRepo) GetByID(ctx context.Context, id uint64) (*model.Session, error) {
	const q = `SELECT id, room_id, movie_id, starts_at, ends_at, created_at FROM sessions WHERE id = ?`
	var s model.Session
	err := r.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.RoomID, &s.MovieID, &s.StartsAt, &s.EndsAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

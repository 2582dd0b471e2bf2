package model

import "time"

// Reservation is a transient hold on a SessionSeat: a time-bounded,
// cooperative claim, not itself a sale.  At most one active
// (unexpired) reservation should exist per session seat at any
// instant; the per-seat distributed lock enforces this on the
// creation path.  Rows are never updated in place – a hold is either
// deleted by the expiration reaper or consumed when a payment is
// reconciled.
type Reservation struct {
	ID            uint64    // reservations.id
	SessionID     uint64    // reservations.session_id
	SessionSeatID uint64    // reservations.session_seat_id
	UserID        uint64    // reservations.user_id
	CreatedAt     time.Time // reservations.created_at
	ExpiresAt     time.Time // reservations.expires_at
}

// Active reports whether the hold has not yet expired at the given
// instant.
func (r Reservation) Active(now time.Time) bool {
	return r.ExpiresAt.After(now)
}

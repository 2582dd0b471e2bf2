package model

import "time"

// SessionSeat is one physical seat as it exists for one specific
// showing.  It carries its own availability and sale state, distinct
// from the reusable physical seat record.  Rows are bulk-created from
// the room layout when a session is initialized and are mutated only
// when a sale is recorded; the reservation path never touches them.
//
// Invariant: IsAvailable == false implies SoldAt and OwnerUserID are
// set, or an active hold currently exists for the seat.
type SessionSeat struct {
	ID          uint64     // session_seats.id
	SessionID   uint64     // session_seats.session_id
	SeatID      uint64     // session_seats.seat_id (physical seat)
	IsAvailable bool       // session_seats.is_available
	SoldAt      *time.Time // session_seats.sold_at (nullable)
	OwnerUserID *uint64    // session_seats.owner_user_id (nullable)
	CreatedAt   time.Time  // session_seats.created_at
	UpdatedAt   time.Time  // session_seats.updated_at
}

// Package queue defines the message payloads exchanged over the
// broker and the components that publish and consume them.  Delivery
// is at-least-once: every consumer must tolerate duplicates, and the
// EventID field lets downstream systems dedupe when they need to.
package queue

import "time"

// Queue names.  Outbound events use the reservation/seat queues;
// payment.approved and seat.reservation-conflict are consumed.
const (
	QueueReservationCreated  = "reservation.created"
	QueueReservationExpired  = "reservation.expired"
	QueueSeatReleased        = "seat.released"
	QueueReservationConflict = "seat.reservation-conflict"
	QueuePaymentApproved     = "payment.approved"
)

// ReservationCreatedEvent is published after a hold is written to the
// ledger.  Consumers get everything needed to track or display the
// hold without querying the primary database.
type ReservationCreatedEvent struct {
	EventID       string    `json:"event_id"`
	SessionID     uint64    `json:"session_id"`
	ID            uint64    `json:"id"`
	SessionSeatID uint64    `json:"session_seat_id"`
	UserID        uint64    `json:"user_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// ReservationExpiredEvent is published by the reaper for every hold
// whose expiry passed without a payment.
type ReservationExpiredEvent struct {
	EventID       string    `json:"event_id"`
	ID            uint64    `json:"id"`
	SessionSeatID uint64    `json:"session_seat_id"`
	UserID        uint64    `json:"user_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// SeatReleasedEvent signals that a seat went back on the market.  ID
// is the session seat id.
type SeatReleasedEvent struct {
	EventID    string    `json:"event_id"`
	ID         uint64    `json:"id"`
	ReleasedAt time.Time `json:"released_at"`
}

// ReservationConflictEvent signals that a payment was approved for a
// hold whose seat had already been sold through a different hold.
// The conflict handler reacts by refunding the payment.
type ReservationConflictEvent struct {
	EventID       string `json:"event_id"`
	ReservationID uint64 `json:"reservation_id"`
	SessionSeatID uint64 `json:"session_seat_id"`
	UserID        uint64 `json:"user_id"`
}

// PaymentApprovedEvent is consumed from the payment collaborator.
// ExternalID carries the reservation id the payment was made for;
// payments without one do not correspond to a seat hold and are
// ignored.
type PaymentApprovedEvent struct {
	ID          uint64     `json:"id"`
	UserID      uint64     `json:"user_id"`
	AmountCents uint32     `json:"amount_in_cents"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ApprovedAt  time.Time  `json:"approved_at"`
	ExternalID  *uint64    `json:"external_id,omitempty"`
}

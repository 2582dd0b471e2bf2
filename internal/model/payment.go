package model

import "time"

// Payment status values.  The payment lifecycle itself (amounts,
// approval authorization) belongs to the payment collaborator; this
// service only ever moves a payment to REFUNDED when a reservation
// conflict is detected.
const (
	PaymentStatusApproved = "APPROVED"
	PaymentStatusRefunded = "REFUNDED"
)

// Payment mirrors the payment collaborator's record for an approved
// charge.  ExternalID correlates the payment with the reservation it
// paid for; payments without a reservation reference are outside this
// service's scope.
type Payment struct {
	ID          uint64     // payments.id
	ExternalID  *uint64    // payments.external_id (= reservation id, nullable)
	UserID      uint64     // payments.user_id
	AmountCents uint32     // payments.amount_cents
	Status      string     // payments.status (APPROVED, REFUNDED)
	ApprovedAt  *time.Time // payments.approved_at (nullable)
	CreatedAt   time.Time  // payments.created_at
}

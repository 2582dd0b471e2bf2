package repository

import (
	"context"
	"database/sql"

	"github.com/cinebook/cinebook/internal/model"
)

// PaymentRepo gives the conflict handler access to the payments
// table.  The payment lifecycle (amounts, approval) belongs to the
// payment collaborator; the only transition performed here is the
// compensating move to REFUNDED.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// RefundByExternalID transitions the payment correlated with the
// given reservation id to REFUNDED.  It reports whether a row
// changed; a payment that is missing or already refunded yields
// false, which consumers treat as an idempotent no-op.
func (r *PaymentRepo) RefundByExternalID(ctx context.Context, externalID uint64) (bool, error) {
	const q = `UPDATE payments SET status = ? WHERE external_id = ? AND status <> ?`
	result, err := r.db.ExecContext(ctx, q, model.PaymentStatusRefunded, externalID, model.PaymentStatusRefunded)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

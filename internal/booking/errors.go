package booking

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotAvailable is returned when the seat is already sold.  It is
// terminal for the attempt; the caller should pick another seat.
var ErrNotAvailable = errors.New("seat not available")

// ErrLockUnavailable is returned when the per-seat lock could not be
// obtained within the retry budget.  It is transient; the caller may
// retry the request.
var ErrLockUnavailable = errors.New("seat lock unavailable")

// AlreadyReservedError is returned when another user currently holds
// the seat.  It carries the hold's expiry so the caller can back off
// intelligently instead of polling.
type AlreadyReservedError struct {
	ExpiresAt time.Time
}

func (e *AlreadyReservedError) Error() string {
	return fmt.Sprintf("seat already reserved until %s", e.ExpiresAt.UTC().Format(time.RFC3339))
}

// Package cache provides the read-through seat cache backing the hot
// reservation path.  It is cache-aside and allowed to be briefly stale
// relative to the ledger and seat store; staleness is bounded by the
// entry TTLs, which are aligned to business time windows (showtime for
// availability, the hold duration for holds).
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Availability is keyed by (session, seat): the session id is part
	// of the key so a request naming the wrong session can never hit
	// another session's entry and must fall through to the seat store,
	// which validates the binding.
	availabilityKeyFmt = "seat:avail:%d:%d"
	holdKeyFmt         = "seat:hold:%d"
)

// SeatCache stores per-seat availability flags and active-hold
// markers in Redis.  The mere presence of a hold key means
// "currently held"; its value is the hold's expiry.
type SeatCache struct {
	client *redis.Client
}

// NewSeatCache returns a SeatCache over the given client.
func NewSeatCache(client *redis.Client) *SeatCache {
	return &SeatCache{client: client}
}

// SetAvailability records whether the seat can be sold.  The entry
// expires at the showing's start time, so a stale flag self-heals at
// the latest by showtime.  Writes with a non-positive remaining TTL
// are skipped.
func (c *SeatCache) SetAvailability(ctx context.Context, sessionID, seatID uint64, available bool, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	v := "0"
	if available {
		v = "1"
	}
	return c.client.Set(ctx, fmt.Sprintf(availabilityKeyFmt, sessionID, seatID), v, ttl).Err()
}

// GetAvailability reads the availability flag.  known is false on a
// cache miss, in which case callers fall back to the seat store and
// populate the entry.
func (c *SeatCache) GetAvailability(ctx context.Context, sessionID, seatID uint64) (available, known bool, err error) {
	v, err := c.client.Get(ctx, fmt.Sprintf(availabilityKeyFmt, sessionID, seatID)).Result()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return v == "1", true, nil
}

// SetHold marks the seat as held until expiresAt.  The TTL equals the
// remaining hold duration, so the marker disappears together with the
// hold itself.
func (c *SeatCache) SetHold(ctx context.Context, seatID uint64, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	v := expiresAt.UTC().Format(time.RFC3339Nano)
	return c.client.Set(ctx, fmt.Sprintf(holdKeyFmt, seatID), v, ttl).Err()
}

// GetHold returns the expiry of the active hold on the seat, if any.
// Entries that cannot be parsed are treated as absent rather than
// failing the request.
func (c *SeatCache) GetHold(ctx context.Context, seatID uint64) (time.Time, bool, error) {
	v, err := c.client.Get(ctx, fmt.Sprintf(holdKeyFmt, seatID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	exp, perr := time.Parse(time.RFC3339Nano, v)
	if perr != nil {
		return time.Time{}, false, nil
	}
	return exp, true, nil
}

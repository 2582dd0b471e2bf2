// Package repository defines error types that are reused across
// multiple repositories.  These sentinel values let higher layers
// distinguish failure scenarios: a missing row during a background
// lookup is a benign no-op for the consumers, while a write that was
// expected to return a row and returned none is fatal for that
// request.
package repository

import "errors"

// ErrReservationNotFound indicates the hold does not (or no longer)
// exists in the ledger.  Background consumers treat this as a benign
// duplicate or out-of-order delivery.
var ErrReservationNotFound = errors.New("reservation not found")

// ErrSeatNotFound indicates the session seat row is missing.
var ErrSeatNotFound = errors.New("session seat not found")

// ErrSessionNotFound indicates the showing row is missing.
var ErrSessionNotFound = errors.New("session not found")

// ErrNotPersisted indicates a write that was expected to produce a
// row produced none.  Handlers should translate this into an HTTP
// 500 response.
var ErrNotPersisted = errors.New("row not persisted")

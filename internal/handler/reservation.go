package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cinebook/cinebook/internal/booking"
	"github.com/cinebook/cinebook/internal/middleware"
	"github.com/cinebook/cinebook/internal/model"
	"github.com/cinebook/cinebook/internal/repository"
)

// Reserver is the slice of the booking service the HTTP layer needs.
type Reserver interface {
	Reserve(ctx context.Context, sessionID, sessionSeatID, userID uint64) (*model.Reservation, error)
	Hold(ctx context.Context, id, userID uint64) (*model.Reservation, error)
}

// ReservationHandler exposes the reserve-seat use case over HTTP.
// JWT authentication is assumed to have run already; methods return
// 401 when no user id can be extracted from the context.
type ReservationHandler struct {
	Service Reserver
}

// NewReservationHandler constructs a ReservationHandler.
func NewReservationHandler(svc Reserver) *ReservationHandler {
	if svc == nil {
		panic("nil service passed to NewReservationHandler")
	}
	return &ReservationHandler{Service: svc}
}

// Reserve handles POST /v1/sessions/:id/seats/:seatId/reserve.  It
// places a short-lived hold on one seat of a showing for the
// authenticated user.  Terminal refusals (seat sold, seat held) map
// to 409; lock contention maps to 503 with a Retry-After hint because
// the request may simply be retried.
func (h *ReservationHandler) Reserve(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || sessionID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	seatID, err := strconv.ParseUint(c.Param("seatId"), 10, 64)
	if err != nil || seatID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat id"})
	}

	res, err := h.Service.Reserve(c.Request().Context(), sessionID, seatID, userID)
	if err != nil {
		var already *booking.AlreadyReservedError
		switch {
		case errors.As(err, &already):
			return c.JSON(http.StatusConflict, echo.Map{
				"error":      "seat already reserved",
				"held_until": already.ExpiresAt.UTC().Format(time.RFC3339),
			})
		case errors.Is(err, booking.ErrNotAvailable):
			return c.JSON(http.StatusConflict, echo.Map{"error": "seat not available"})
		case errors.Is(err, booking.ErrLockUnavailable):
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "seat is being reserved, retry shortly"})
		case errors.Is(err, repository.ErrSeatNotFound), errors.Is(err, repository.ErrSessionNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "seat not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"reservation_id": res.ID,
		"expires_at":     res.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Get handles GET /v1/reservations/:id.  Clients poll their hold here
// while the payment is in flight; once the hold is reaped or consumed
// by a sale the row is gone and the endpoint answers 404.
func (h *ReservationHandler) Get(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}

	res, err := h.Service.Hold(c.Request().Context(), id, userID)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"reservation_id":  res.ID,
		"session_id":      res.SessionID,
		"session_seat_id": res.SessionSeatID,
		"expires_at":      res.ExpiresAt.UTC().Format(time.RFC3339),
		"active":          res.Active(time.Now().UTC()),
	})
}

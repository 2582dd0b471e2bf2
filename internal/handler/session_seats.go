package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"

	"github.com/cinebook/cinebook/internal/middleware"
	"github.com/cinebook/cinebook/internal/repository"
)

// SessionSeatHandler initializes the per-showing seat records.  The
// catalog service owns sessions, rooms and physical seats; this
// endpoint only materializes the room layout into session_seats so
// the reservation path has rows to work against.
type SessionSeatHandler struct {
	SeatRepo *repository.SessionSeatRepo
}

// NewSessionSeatHandler constructs a SessionSeatHandler.
func NewSessionSeatHandler(repo *repository.SessionSeatRepo) *SessionSeatHandler {
	if repo == nil {
		panic("nil repository passed to NewSessionSeatHandler")
	}
	return &SessionSeatHandler{SeatRepo: repo}
}

// Initialize handles POST /v1/sessions/:id/seats.  It bulk-copies the
// room's seat layout for the showing; every created seat starts out
// available.  Re-running it for a session that already has seats
// yields 409 via the unique key.
func (h *SessionSeatHandler) Initialize(c echo.Context) error {
	if _, ok := middleware.UserID(c); !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || sessionID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	created, err := h.SeatRepo.InitializeForSession(c.Request().Context(), sessionID)
	if err != nil {
		var dup *mysql.MySQLError
		if errors.As(err, &dup) && dup.Number == 1062 { // duplicate (session_id, seat_id)
			return c.JSON(http.StatusConflict, echo.Map{"error": "seats already initialized"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if created == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "session or room layout not found"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"created": created})
}

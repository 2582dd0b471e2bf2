package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/cinebook/cinebook/internal/handler"
	"github.com/cinebook/cinebook/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication
// on the provided Echo instance.  Currently it exposes only a health
// check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterReservations registers the reservation endpoints behind the
// JWT middleware.  The jwtSecret must match the one the auth
// collaborator signs tokens with.
func RegisterReservations(e *echo.Echo, r *handler.ReservationHandler, s *handler.SessionSeatHandler, jwtSecret string) {
	v1 := e.Group("/v1")
	v1.Use(middleware.JWTAuth(jwtSecret))
	v1.POST("/sessions/:id/seats/:seatId/reserve", r.Reserve)
	v1.GET("/reservations/:id", r.Get)
	v1.POST("/sessions/:id/seats", s.Initialize)
}

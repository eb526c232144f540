// Package router wires the HTTP routes of the reservation API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/cartelera/seat-reservation/internal/handler"
	"github.com/cartelera/seat-reservation/internal/middleware"
)

// RegisterRoutes registers every endpoint of the service on the
// provided Echo instance.  Availability reads and the health check are
// public so guests can preview a seat map; every mutating endpoint
// requires a valid access token, whose subject becomes the holder
// identity of the lock.
func RegisterRoutes(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string) {
	e.GET("/healthz", handler.Health)
	e.GET("/v1/showtimes/:id/seats", h.GetSeats)

	g := e.Group("/v1", middleware.HolderAuth(jwtSecret))
	g.POST("/showtimes/:id/hold", h.HoldSeats)
	g.POST("/showtimes/:id/renew", h.RenewHold)
	g.DELETE("/showtimes/:id/hold", h.ReleaseHolds)
	g.POST("/showtimes/:id/confirm", h.ConfirmSeats)
}

// Package handler exposes the reservation engine over HTTP.  Routes
// map 1:1 to the engine's operations: hold seats, renew a hold,
// release a hold, confirm a purchase and read availability.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cartelera/seat-reservation/internal/logger"
	"github.com/cartelera/seat-reservation/internal/middleware"
	"github.com/cartelera/seat-reservation/internal/reservation"
)

// ReservationHandler carries the engine and logger shared by all
// reservation endpoints.  JWT validation happens in middleware; every
// method here assumes the holder identity is already in the context
// and returns 401 when it is missing.
type ReservationHandler struct {
	Engine *reservation.Engine
	Log    logger.Logger
}

// NewReservationHandler constructs a ReservationHandler.  Both
// dependencies must be non-nil.
func NewReservationHandler(engine *reservation.Engine, log logger.Logger) *ReservationHandler {
	if engine == nil || log == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{Engine: engine, Log: log}
}

type holdRequest struct {
	SeatIDs    []string `json:"seat_ids"`
	TTLSeconds int      `json:"ttl_seconds"`
}

type releaseRequest struct {
	SeatIDs []string `json:"seat_ids"`
}

type confirmRequest struct {
	SeatIDs    []string `json:"seat_ids"`
	PurchaseID string   `json:"purchase_id"`
}

// HoldSeats handles POST /v1/showtimes/:id/hold.  The body carries the
// seat tokens and a requested TTL in seconds; the server clamps the
// TTL to its configured bounds.  On success it returns 201 with the
// held seats and their common expiration.  The batch is all-or-nothing:
// any conflict rejects every seat and leaves no lock behind.
func (h *ReservationHandler) HoldSeats(c echo.Context) error {
	return h.hold(c, h.Engine.RequestHold)
}

// RenewHold handles POST /v1/showtimes/:id/renew.  Semantically a
// re-issued hold for the same holder and seats: the expiry is pushed
// out so the client can keep the hold alive through checkout.
func (h *ReservationHandler) RenewHold(c echo.Context) error {
	return h.hold(c, h.Engine.RenewHold)
}

// holdFunc matches RequestHold and RenewHold on the engine.
type holdFunc func(ctx context.Context, showtimeID, holderID string, seatIDs []string, ttl time.Duration) (*reservation.HoldResult, error)

func (h *ReservationHandler) hold(c echo.Context, op holdFunc) error {
	holderID, err := holderFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showtimeID := c.Param("id")

	var body holdRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res, err := op(c.Request().Context(), showtimeID, holderID,
		body.SeatIDs, time.Duration(body.TTLSeconds)*time.Second)
	if err != nil {
		return h.engineError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"seat_ids":   res.SeatIDs,
		"expires_at": res.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// ReleaseHolds handles DELETE /v1/showtimes/:id/hold.  An optional
// body lists the seats to release; with no body (or an empty list)
// every hold of the caller on the showtime is released.  The call is
// idempotent and returns the caller's remaining active holds.
func (h *ReservationHandler) ReleaseHolds(c echo.Context) error {
	holderID, err := holderFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showtimeID := c.Param("id")

	var body releaseRequest
	// DELETE bodies are optional; a bind failure on an empty body just
	// means "release everything".
	_ = c.Bind(&body)

	remaining, err := h.Engine.ReleaseHold(c.Request().Context(), showtimeID, holderID, body.SeatIDs)
	if err != nil {
		return h.engineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"held": remaining})
}

// ConfirmSeats handles POST /v1/showtimes/:id/confirm.  The caller
// must have settled payment already; this endpoint only performs the
// atomic lock-to-ledger transition.  When the body omits purchase_id a
// fresh UUID is minted so the claim is still traceable.  Returns 201
// with the purchase id, the showtime's full booked list and the
// remaining availability.
func (h *ReservationHandler) ConfirmSeats(c echo.Context) error {
	holderID, err := holderFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showtimeID := c.Param("id")

	var body confirmRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.PurchaseID == "" {
		body.PurchaseID = uuid.NewString()
	}
	res, err := h.Engine.ConfirmPurchase(c.Request().Context(), showtimeID, holderID, body.SeatIDs, body.PurchaseID)
	if err != nil {
		return h.engineError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"purchase_id":        res.PurchaseID,
		"seat_ids":           res.SeatIDs,
		"booked_seats":       res.BookedSeats,
		"remaining":          res.Remaining,
		"total_amount_cents": res.TotalAmountCents,
	})
}

// GetSeats handles GET /v1/showtimes/:id/seats.  Publicly readable:
// guests preview availability before authenticating.  Locked excludes
// holds that have expired by the time of the read.
func (h *ReservationHandler) GetSeats(c echo.Context) error {
	snap, err := h.Engine.AvailabilitySnapshot(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.engineError(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

// engineError translates the engine's error taxonomy into HTTP
// responses.  Conflicts include the offending seat lists so clients
// can re-render the seat map without another round trip.
func (h *ReservationHandler) engineError(c echo.Context, err error) error {
	var conflict *reservation.ConflictError
	switch {
	case errors.As(err, &conflict):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":            "seat conflict",
			"already_booked":   emptyIfNil(conflict.AlreadyBooked),
			"locked_by_others": emptyIfNil(conflict.LockedByOthers),
			"not_held":         emptyIfNil(conflict.NotHeld),
		})
	case errors.Is(err, reservation.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "seat conflict"})
	case errors.Is(err, reservation.ErrBusy):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "showtime busy, retry"})
	case errors.Is(err, reservation.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, reservation.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	default:
		h.Log.Error("reservation request failed", "path", c.Path(), "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// holderFromContext extracts the opaque holder identity injected by the auth
// middleware.
func holderFromContext(c echo.Context) (string, error) {
	if v, ok := c.Get(middleware.HolderIDKey).(string); ok && v != "" {
		return v, nil
	}
	return "", errors.New("missing holder identity in context")
}

func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

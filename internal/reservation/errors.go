// Package reservation implements the seat lock / purchase state machine
// for a showtime's seat map.  Each seat moves FREE → LOCKED(holder,
// expiry) → BOOKED(purchase); LOCKED falls back to FREE on release or
// expiry.  BOOKED is terminal for this subsystem.
//
// This file defines the error taxonomy shared by the engine and the
// store implementations.  Sentinel values allow higher layers such as
// the HTTP handlers to distinguish failure classes with errors.Is.
package reservation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConflict signals a business-rule rejection: a seat is already
// booked, locked by another holder, or a confirm precondition failed.
// Callers may recover by re-picking seats or re-requesting the hold.
// Conflicts usually arrive as a *ConflictError carrying the offending
// seat tokens; errors.Is(err, ErrConflict) matches both forms.
var ErrConflict = errors.New("seat conflict")

// ErrBusy is returned when the showtime's serialization boundary could
// not be acquired within the configured timeout.  Distinct from
// ErrConflict: the caller should retry with backoff rather than change
// its request.  Handlers translate this into HTTP 503.
var ErrBusy = errors.New("showtime busy")

// ErrNotFound is returned when the showtime or a seat token does not
// exist in the configured seat map.
var ErrNotFound = errors.New("not found")

// ErrInvalidInput is returned for malformed seat tokens, an empty seat
// list, a missing holder identity or a non-positive TTL.
var ErrInvalidInput = errors.New("invalid input")

// ErrStorage wraps failures of the underlying persistence.  Handlers
// translate it into HTTP 500; it is never silently swallowed.
var ErrStorage = errors.New("storage failure")

// ErrLockHeld is returned by SeatLockStore.Upsert when an active lock
// for the seat is owned by a different holder.
var ErrLockHeld = errors.New("seat locked by another holder")

// ErrSeatBooked is returned by SeatLedger.BookSeats when one of the
// requested seats already has a ledger entry.
var ErrSeatBooked = errors.New("seat already booked")

// ErrShowtimeUnknown is returned by ShowtimeCatalog.Showtime when no
// showtime exists for the given identifier.
var ErrShowtimeUnknown = errors.New("showtime unknown")

// ConflictError reports exactly which seats caused a batch operation to
// be rejected.  At most one of the slices is populated per failure so
// the caller can tell an availability problem from a lost hold.  It
// matches ErrConflict under errors.Is.
type ConflictError struct {
	AlreadyBooked  []string // seats with a permanent ledger entry
	LockedByOthers []string // seats actively locked by a different holder
	NotHeld        []string // seats the caller no longer holds (expired or never locked)
}

func (e *ConflictError) Error() string {
	var parts []string
	if len(e.AlreadyBooked) > 0 {
		parts = append(parts, fmt.Sprintf("already booked: %s", strings.Join(e.AlreadyBooked, ",")))
	}
	if len(e.LockedByOthers) > 0 {
		parts = append(parts, fmt.Sprintf("locked by others: %s", strings.Join(e.LockedByOthers, ",")))
	}
	if len(e.NotHeld) > 0 {
		parts = append(parts, fmt.Sprintf("not held: %s", strings.Join(e.NotHeld, ",")))
	}
	if len(parts) == 0 {
		return ErrConflict.Error()
	}
	return "seat conflict: " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrConflict) match a ConflictError.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

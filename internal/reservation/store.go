package reservation

import (
	"context"
	"time"

	"github.com/cartelera/seat-reservation/internal/model"
)

// SeatLockStore is the per-showtime ledger of temporary seat holds.
// Expired locks are treated as absent by every reader without
// requiring eager deletion: correctness is enforced by comparing
// expires_at against the caller's clock, and physical cleanup is
// performed eventually by PurgeExpired.
//
// Implementations must be safe for concurrent use.  The engine
// additionally serializes all mutating calls for a given showtime
// behind its per-showtime boundary.
type SeatLockStore interface {
	// ActiveLocks returns the locks for the showtime whose expires_at
	// is strictly after now.
	ActiveLocks(ctx context.Context, showtimeID string, now time.Time) ([]model.SeatLock, error)

	// Upsert places or renews a lock.  It fails with ErrLockHeld when
	// an active lock for the seat is owned by a different holder.  When
	// the same holder already owns the lock, expires_at is extended to
	// now+ttl and created_at is preserved (idempotent renewal).
	Upsert(ctx context.Context, showtimeID, seatID, holderID string, now time.Time, ttl time.Duration) error

	// Release removes the holder's lock on the seat.  Releasing a
	// non-existent, expired or foreign lock is a no-op; only the owner
	// can remove a lock record.
	Release(ctx context.Context, showtimeID, seatID, holderID string) error

	// ReleaseAllForHolder removes every lock the holder owns for the
	// showtime and returns the seat tokens that were removed.
	ReleaseAllForHolder(ctx context.Context, showtimeID, holderID string) ([]string, error)

	// PurgeExpired deletes locks whose expires_at is at or before now
	// and returns the freed seat tokens.  Safe to call concurrently
	// with lock reads and writes.
	PurgeExpired(ctx context.Context, showtimeID string, now time.Time) ([]string, error)

	// ShowtimeIDs lists showtimes that still have lock records,
	// including expired ones awaiting purge.  Used by the sweeper.
	ShowtimeIDs(ctx context.Context) ([]string, error)
}

// SeatLedger is the permanent record of booked seats per showtime.
// Entries are immutable once created.
type SeatLedger interface {
	// BookedSeats returns all booked seat tokens for the showtime.
	BookedSeats(ctx context.Context, showtimeID string) ([]string, error)

	// IsBooked reports whether the seat has a ledger entry.
	IsBooked(ctx context.Context, showtimeID, seatID string) (bool, error)

	// BookSeats records the batch atomically: either every seat is free
	// and all entries are created bound to purchaseID, or the whole
	// call fails with ErrSeatBooked and no entry is written.  Partial
	// booking must never be observable.
	BookSeats(ctx context.Context, showtimeID string, seatIDs []string, purchaseID string) error
}

// ShowtimeCatalog resolves a showtime's seat map, capacity and price.
// The catalog is read-only from the engine's perspective; showtime
// CRUD is owned by an external collaborator.
type ShowtimeCatalog interface {
	// Showtime returns the seat space for the identifier or
	// ErrShowtimeUnknown.
	Showtime(ctx context.Context, showtimeID string) (model.Showtime, error)
}

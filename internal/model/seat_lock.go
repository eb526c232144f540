package model

import "time"

// SeatLock represents a temporary, time-bounded hold on a single seat
// of a showtime.  A lock prevents other holders from booking the seat
// while its owner completes checkout.  Locks expire automatically at
// their expires_at timestamp; an expired lock is treated as absent by
// every reader regardless of whether it has been physically purged.
//
// Fields:
//  ShowtimeID – showtime whose seat map contains the seat.
//  SeatID     – seat token, e.g. "A3".
//  HolderID   – opaque identity that owns the lock.
//  CreatedAt  – when the lock was first placed.
//  ExpiresAt  – when the lock stops being effective.
type SeatLock struct {
	ShowtimeID string    // seat_locks.showtime_id
	SeatID     string    // seat_locks.seat_id
	HolderID   string    // seat_locks.holder_id
	CreatedAt  time.Time // seat_locks.created_at
	ExpiresAt  time.Time // seat_locks.expires_at
}

// Active reports whether the lock is still effective at the given
// instant.  Expiry is enforced by comparison at read time, so callers
// must always pass the clock they operate under rather than relying on
// eager deletion.
func (l SeatLock) Active(now time.Time) bool {
	return l.ExpiresAt.After(now)
}

// HeldBy reports whether the lock belongs to the given holder.  Holder
// identities are opaque tokens supplied by the authentication
// collaborator; the core only ever compares them for equality.
func (l SeatLock) HeldBy(holderID string) bool {
	return l.HolderID == holderID
}

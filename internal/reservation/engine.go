package reservation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/cartelera/seat-reservation/internal/logger"
	"github.com/cartelera/seat-reservation/internal/model"
)

// Seat tokens follow the row+number convention of the seat map, e.g.
// "A3" or "AA12".
var seatTokenRE = regexp.MustCompile(`^[A-Z]+[0-9]+$`)

// Default engine tunables.  All of them can be overridden with
// options at construction time.
const (
	DefaultTTLMin   = 60 * time.Second
	DefaultTTLMax   = 30 * time.Minute
	DefaultLockWait = 5 * time.Second
)

// Engine orchestrates lock acquisition, renewal, release, the expiry
// sweep and the atomic lock-to-purchase transition.  It exclusively
// owns the SeatLockStore and SeatLedger for every showtime it serves:
// all mutations go through a per-showtime boundary so RequestHold,
// ConfirmPurchase and PurgeExpired for the same showtime never
// interleave their critical sections, while different showtimes stay
// fully independent.
//
// The critical sections contain only state mutation.  Notifications
// are dispatched fire-and-forget, and callers must complete any
// external work (payment, in particular) before invoking
// ConfirmPurchase.
type Engine struct {
	catalog  ShowtimeCatalog
	locks    SeatLockStore
	ledger   SeatLedger
	notifier Notifier
	log      logger.Logger

	boundary *keyedMutex
	now      func() time.Time

	ttlMin   time.Duration
	ttlMax   time.Duration
	lockWait time.Duration
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the engine's time source.  Tests use this to
// drive expiry without sleeping.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithTTLBounds overrides the server-enforced clamp applied to
// client-requested hold TTLs.
func WithTTLBounds(min, max time.Duration) Option {
	return func(e *Engine) {
		if min > 0 && max >= min {
			e.ttlMin, e.ttlMax = min, max
		}
	}
}

// WithLockWaitTimeout bounds how long an operation may wait for the
// showtime's serialization boundary before failing with ErrBusy.
func WithLockWaitTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lockWait = d
		}
	}
}

// NewEngine constructs the reservation engine.  All dependencies must
// be non-nil.
func NewEngine(catalog ShowtimeCatalog, locks SeatLockStore, ledger SeatLedger, notifier Notifier, log logger.Logger, opts ...Option) *Engine {
	if catalog == nil || locks == nil || ledger == nil || notifier == nil || log == nil {
		panic("nil dependency passed to NewEngine")
	}
	e := &Engine{
		catalog:  catalog,
		locks:    locks,
		ledger:   ledger,
		notifier: notifier,
		log:      log,
		boundary: newKeyedMutex(),
		now:      time.Now,
		ttlMin:   DefaultTTLMin,
		ttlMax:   DefaultTTLMax,
		lockWait: DefaultLockWait,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HoldResult reports a successful RequestHold or RenewHold: the set of
// held seats and their common expiration.
type HoldResult struct {
	SeatIDs   []string  `json:"seat_ids"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ConfirmResult reports a successful ConfirmPurchase.
type ConfirmResult struct {
	PurchaseID       string   `json:"purchase_id"`
	SeatIDs          []string `json:"seat_ids"`           // seats claimed by this purchase
	BookedSeats      []string `json:"booked_seats"`       // full ledger for the showtime after the claim
	Remaining        int      `json:"remaining"`          // seats neither booked nor actively locked
	TotalAmountCents uint32   `json:"total_amount_cents"` // price * claimed seats
}

// Snapshot is the availability view of a showtime at a single instant.
// Locked excludes expired entries evaluated at read time.
type Snapshot struct {
	Booked   []string `json:"booked"`
	Locked   []string `json:"locked"`
	Capacity int      `json:"capacity"`
}

// RequestHold places a temporary lock on every requested seat, or on
// none of them.  The batch is rejected up front with a ConflictError
// naming the already-booked seats, and with no lock effect at all when
// any seat is actively locked by a different holder: locks this call
// already placed on sibling seats are rolled back before the error is
// returned.  Re-requesting seats the holder already has extends their
// expiry (see RenewHold).
func (e *Engine) RequestHold(ctx context.Context, showtimeID, holderID string, seatIDs []string, ttl time.Duration) (*HoldResult, error) {
	seats, err := normalizeSeatIDs(seatIDs)
	if err != nil {
		return nil, err
	}
	if holderID == "" {
		return nil, fmt.Errorf("%w: missing holder identity", ErrInvalidInput)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", ErrInvalidInput)
	}
	ttl = e.clampTTL(ttl)

	show, err := e.showtime(ctx, showtimeID)
	if err != nil {
		return nil, err
	}
	if err := seatsInMap(show, seats); err != nil {
		return nil, err
	}

	release, err := e.boundary.acquire(ctx, showtimeID, e.lockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	now := e.now()
	booked, err := e.ledger.BookedSeats(ctx, showtimeID)
	if err != nil {
		return nil, storageErr(err)
	}
	if conflicts := intersect(seats, booked); len(conflicts) > 0 {
		return nil, &ConflictError{AlreadyBooked: conflicts}
	}

	active, err := e.locks.ActiveLocks(ctx, showtimeID, now)
	if err != nil {
		return nil, storageErr(err)
	}
	ownHeld := make(map[string]bool)
	var lockedByOthers []string
	for _, l := range active {
		if l.HeldBy(holderID) {
			ownHeld[l.SeatID] = true
			continue
		}
		for _, s := range seats {
			if s == l.SeatID {
				lockedByOthers = append(lockedByOthers, s)
			}
		}
	}
	if len(lockedByOthers) > 0 {
		sort.Strings(lockedByOthers)
		return nil, &ConflictError{LockedByOthers: lockedByOthers}
	}

	// All clear under the boundary.  Place the locks; if the store
	// rejects one mid-batch, undo the locks this call created so the
	// batch stays all-or-nothing.  Seats the holder already had keep
	// their (renewed) lock.
	var placed []string
	for _, s := range seats {
		if upErr := e.locks.Upsert(ctx, showtimeID, s, holderID, now, ttl); upErr != nil {
			for _, p := range placed {
				if !ownHeld[p] {
					if relErr := e.locks.Release(ctx, showtimeID, p, holderID); relErr != nil {
						e.log.Error("hold rollback failed", "showtime_id", showtimeID, "seat_id", p, "error", relErr)
					}
				}
			}
			if errors.Is(upErr, ErrLockHeld) {
				return nil, &ConflictError{LockedByOthers: []string{s}}
			}
			return nil, storageErr(upErr)
		}
		placed = append(placed, s)
	}

	expiresAt := now.Add(ttl)
	e.dispatch("seats.locked", showtimeID, func(ctx context.Context) error {
		return e.notifier.SeatsLocked(ctx, showtimeID, seats, holderID, expiresAt)
	})
	return &HoldResult{SeatIDs: seats, ExpiresAt: expiresAt}, nil
}

// RenewHold extends the expiry of seats the holder is keeping alive
// during checkout.  It is equivalent to re-issuing RequestHold for the
// same holder and seats.
func (e *Engine) RenewHold(ctx context.Context, showtimeID, holderID string, seatIDs []string, ttl time.Duration) (*HoldResult, error) {
	return e.RequestHold(ctx, showtimeID, holderID, seatIDs, ttl)
}

// ReleaseHold releases the given seats, or every seat the holder has
// when seatIDs is empty.  The operation is idempotent and always
// succeeds for seats that are not actively held.  It returns the
// holder's remaining active holds.
func (e *Engine) ReleaseHold(ctx context.Context, showtimeID, holderID string, seatIDs []string) ([]string, error) {
	if holderID == "" {
		return nil, fmt.Errorf("%w: missing holder identity", ErrInvalidInput)
	}
	var seats []string
	if len(seatIDs) > 0 {
		var err error
		if seats, err = normalizeSeatIDs(seatIDs); err != nil {
			return nil, err
		}
	}
	if _, err := e.showtime(ctx, showtimeID); err != nil {
		return nil, err
	}

	release, err := e.boundary.acquire(ctx, showtimeID, e.lockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	now := e.now()
	var freed []string
	if len(seats) == 0 {
		if freed, err = e.locks.ReleaseAllForHolder(ctx, showtimeID, holderID); err != nil {
			return nil, storageErr(err)
		}
	} else {
		active, err := e.locks.ActiveLocks(ctx, showtimeID, now)
		if err != nil {
			return nil, storageErr(err)
		}
		held := make(map[string]bool)
		for _, l := range active {
			if l.HeldBy(holderID) {
				held[l.SeatID] = true
			}
		}
		for _, s := range seats {
			if relErr := e.locks.Release(ctx, showtimeID, s, holderID); relErr != nil {
				return nil, storageErr(relErr)
			}
			if held[s] {
				freed = append(freed, s)
			}
		}
	}

	remaining, err := e.activeHoldsFor(ctx, showtimeID, holderID, now)
	if err != nil {
		return nil, err
	}
	if len(freed) > 0 {
		sort.Strings(freed)
		e.dispatch("seats.freed", showtimeID, func(ctx context.Context) error {
			return e.notifier.SeatsFreed(ctx, showtimeID, freed)
		})
	}
	return remaining, nil
}

// ConfirmPurchase atomically converts the holder's active locks into
// permanent ledger entries bound to purchaseID.  Every requested seat
// must be actively locked by the holder at confirm time; if any
// precondition fails the whole call fails with a ConflictError, the
// ledger is untouched and no lock is released, so the caller can
// re-request the hold and retry.  Payment must already be settled by
// the caller: the critical section performs no external I/O.
func (e *Engine) ConfirmPurchase(ctx context.Context, showtimeID, holderID string, seatIDs []string, purchaseID string) (*ConfirmResult, error) {
	seats, err := normalizeSeatIDs(seatIDs)
	if err != nil {
		return nil, err
	}
	if holderID == "" {
		return nil, fmt.Errorf("%w: missing holder identity", ErrInvalidInput)
	}
	if purchaseID == "" {
		return nil, fmt.Errorf("%w: missing purchase id", ErrInvalidInput)
	}
	show, err := e.showtime(ctx, showtimeID)
	if err != nil {
		return nil, err
	}
	if err := seatsInMap(show, seats); err != nil {
		return nil, err
	}

	release, err := e.boundary.acquire(ctx, showtimeID, e.lockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	now := e.now()
	booked, err := e.ledger.BookedSeats(ctx, showtimeID)
	if err != nil {
		return nil, storageErr(err)
	}
	bookedSet := toSet(booked)

	active, err := e.locks.ActiveLocks(ctx, showtimeID, now)
	if err != nil {
		return nil, storageErr(err)
	}
	lockOwner := make(map[string]string, len(active))
	for _, l := range active {
		lockOwner[l.SeatID] = l.HolderID
	}

	conflict := &ConflictError{}
	for _, s := range seats {
		switch owner, locked := lockOwner[s]; {
		case bookedSet[s]:
			conflict.AlreadyBooked = append(conflict.AlreadyBooked, s)
		case !locked:
			conflict.NotHeld = append(conflict.NotHeld, s)
		case owner != holderID:
			conflict.LockedByOthers = append(conflict.LockedByOthers, s)
		}
	}
	if len(conflict.AlreadyBooked)+len(conflict.LockedByOthers)+len(conflict.NotHeld) > 0 {
		return nil, conflict
	}

	if err := e.ledger.BookSeats(ctx, showtimeID, seats, purchaseID); err != nil {
		if errors.Is(err, ErrSeatBooked) {
			// Lost a race with another instance sharing the store.
			return nil, &ConflictError{AlreadyBooked: seats}
		}
		return nil, storageErr(err)
	}
	// The booking stands from here on.  Consuming the locks can only
	// fail on storage trouble; the leftover records expire on their own
	// and the sweep reclaims them, so log and continue.
	for _, s := range seats {
		if relErr := e.locks.Release(ctx, showtimeID, s, holderID); relErr != nil {
			e.log.Error("consumed lock cleanup failed", "showtime_id", showtimeID, "seat_id", s, "error", relErr)
		}
	}

	bookedAll, err := e.ledger.BookedSeats(ctx, showtimeID)
	if err != nil {
		return nil, storageErr(err)
	}
	sort.Strings(bookedAll)
	activeAfter, err := e.locks.ActiveLocks(ctx, showtimeID, now)
	if err != nil {
		return nil, storageErr(err)
	}

	e.dispatch("seats.booked", showtimeID, func(ctx context.Context) error {
		return e.notifier.SeatsBooked(ctx, showtimeID, seats, purchaseID)
	})
	return &ConfirmResult{
		PurchaseID:       purchaseID,
		SeatIDs:          seats,
		BookedSeats:      bookedAll,
		Remaining:        show.Capacity() - len(bookedAll) - len(activeAfter),
		TotalAmountCents: show.PriceCents * uint32(len(seats)),
	}, nil
}

// AvailabilitySnapshot returns the booked and actively locked seats of
// the showtime plus its capacity.  Reads do not take the showtime
// boundary; expired locks are filtered out at the engine's clock.
func (e *Engine) AvailabilitySnapshot(ctx context.Context, showtimeID string) (*Snapshot, error) {
	show, err := e.showtime(ctx, showtimeID)
	if err != nil {
		return nil, err
	}
	booked, err := e.ledger.BookedSeats(ctx, showtimeID)
	if err != nil {
		return nil, storageErr(err)
	}
	active, err := e.locks.ActiveLocks(ctx, showtimeID, e.now())
	if err != nil {
		return nil, storageErr(err)
	}
	locked := make([]string, 0, len(active))
	for _, l := range active {
		locked = append(locked, l.SeatID)
	}
	sort.Strings(booked)
	sort.Strings(locked)
	return &Snapshot{Booked: booked, Locked: locked, Capacity: show.Capacity()}, nil
}

// PurgeExpired evicts the showtime's expired locks under its boundary
// and announces the freed seats.  The sweeper calls this periodically;
// it is also safe to invoke directly from operational tooling.
func (e *Engine) PurgeExpired(ctx context.Context, showtimeID string) ([]string, error) {
	release, err := e.boundary.acquire(ctx, showtimeID, e.lockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	freed, err := e.locks.PurgeExpired(ctx, showtimeID, e.now())
	if err != nil {
		return nil, storageErr(err)
	}
	if len(freed) > 0 {
		sort.Strings(freed)
		e.dispatch("seats.freed", showtimeID, func(ctx context.Context) error {
			return e.notifier.SeatsFreed(ctx, showtimeID, freed)
		})
	}
	return freed, nil
}

// showtime resolves the catalog entry, mapping an unknown id to
// ErrNotFound and anything else to ErrStorage.
func (e *Engine) showtime(ctx context.Context, showtimeID string) (model.Showtime, error) {
	if showtimeID == "" {
		return model.Showtime{}, fmt.Errorf("%w: missing showtime id", ErrInvalidInput)
	}
	show, err := e.catalog.Showtime(ctx, showtimeID)
	if err != nil {
		if errors.Is(err, ErrShowtimeUnknown) {
			return model.Showtime{}, fmt.Errorf("%w: showtime %s", ErrNotFound, showtimeID)
		}
		return model.Showtime{}, storageErr(err)
	}
	return show, nil
}

func (e *Engine) activeHoldsFor(ctx context.Context, showtimeID, holderID string, now time.Time) ([]string, error) {
	active, err := e.locks.ActiveLocks(ctx, showtimeID, now)
	if err != nil {
		return nil, storageErr(err)
	}
	held := make([]string, 0, len(active))
	for _, l := range active {
		if l.HeldBy(holderID) {
			held = append(held, l.SeatID)
		}
	}
	sort.Strings(held)
	return held, nil
}

func (e *Engine) clampTTL(ttl time.Duration) time.Duration {
	if ttl < e.ttlMin {
		return e.ttlMin
	}
	if ttl > e.ttlMax {
		return e.ttlMax
	}
	return ttl
}

// normalizeSeatIDs validates seat tokens, rejects an empty batch and
// collapses duplicates while preserving order, then sorts the result
// for deterministic responses.
func normalizeSeatIDs(seatIDs []string) ([]string, error) {
	if len(seatIDs) == 0 {
		return nil, fmt.Errorf("%w: seat list is empty", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(seatIDs))
	out := make([]string, 0, len(seatIDs))
	for _, s := range seatIDs {
		if !seatTokenRE.MatchString(s) {
			return nil, fmt.Errorf("%w: malformed seat token %q", ErrInvalidInput, s)
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func seatsInMap(show model.Showtime, seats []string) error {
	for _, s := range seats {
		if !show.HasSeat(s) {
			return fmt.Errorf("%w: seat %s is not in the seat map of showtime %s", ErrNotFound, s, show.ID)
		}
	}
	return nil
}

func intersect(want, have []string) []string {
	haveSet := toSet(have)
	var out []string
	for _, s := range want {
		if haveSet[s] {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}

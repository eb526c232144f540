package reservation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartelera/seat-reservation/internal/logger"
	"github.com/cartelera/seat-reservation/internal/model"
	"github.com/cartelera/seat-reservation/internal/repository/memory"
	"github.com/cartelera/seat-reservation/internal/reservation"
)

const (
	testShowtime = "st-1"
	holder1      = "user-1"
	holder2      = "user-2"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type seatEvent struct {
	kind       string
	showtimeID string
	seatIDs    []string
}

// recordingNotifier captures fire-and-forget notifications on a
// buffered channel so tests can wait for the async dispatch.
type recordingNotifier struct {
	events chan seatEvent
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(chan seatEvent, 64)}
}

func (n *recordingNotifier) SeatsLocked(_ context.Context, showtimeID string, seatIDs []string, _ string, _ time.Time) error {
	n.events <- seatEvent{kind: "locked", showtimeID: showtimeID, seatIDs: seatIDs}
	return nil
}

func (n *recordingNotifier) SeatsBooked(_ context.Context, showtimeID string, seatIDs []string, _ string) error {
	n.events <- seatEvent{kind: "booked", showtimeID: showtimeID, seatIDs: seatIDs}
	return nil
}

func (n *recordingNotifier) SeatsFreed(_ context.Context, showtimeID string, seatIDs []string) error {
	n.events <- seatEvent{kind: "freed", showtimeID: showtimeID, seatIDs: seatIDs}
	return nil
}

func (n *recordingNotifier) await(t *testing.T, kind string) seatEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-n.events:
			if ev.kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q notification", kind)
		}
	}
}

type testEnv struct {
	engine   *reservation.Engine
	clock    *fakeClock
	notifier *recordingNotifier
	ledger   *memory.SeatLedger
}

// newTestEnv builds an engine over memory stores with a 4-seat
// showtime and permissive TTL bounds so tests can use short holds.
func newTestEnv(t *testing.T, opts ...reservation.Option) *testEnv {
	t.Helper()
	clock := newFakeClock()
	notifier := newRecordingNotifier()
	ledger := memory.NewSeatLedger()
	catalog := memory.NewShowtimeCatalog(
		model.NewShowtime(testShowtime, []string{"A1", "A2", "B1", "B2"}, 1500),
	)
	base := []reservation.Option{
		reservation.WithClock(clock.Now),
		reservation.WithTTLBounds(time.Second, time.Hour),
	}
	engine := reservation.NewEngine(catalog, memory.NewSeatLockStore(), ledger, notifier,
		logger.NewNop(), append(base, opts...)...)
	return &testEnv{engine: engine, clock: clock, notifier: notifier, ledger: ledger}
}

func TestRequestHold_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.engine.RequestHold(ctx, testShowtime, holder1, []string{"A2", "A1"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, res.SeatIDs)
	assert.Equal(t, env.clock.Now().Add(time.Minute), res.ExpiresAt)

	snap, err := env.engine.AvailabilitySnapshot(ctx, testShowtime)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, snap.Locked)
	assert.Empty(t, snap.Booked)
	assert.Equal(t, 4, snap.Capacity)

	ev := env.notifier.await(t, "locked")
	assert.Equal(t, []string{"A1", "A2"}, ev.seatIDs)
}

func TestRequestHold_InvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.RequestHold(ctx, testShowtime, holder1, nil, time.Minute)
	assert.ErrorIs(t, err, reservation.ErrInvalidInput)

	_, err = env.engine.RequestHold(ctx, testShowtime, holder1, []string{"a1"}, time.Minute)
	assert.ErrorIs(t, err, reservation.ErrInvalidInput)

	_, err = env.engine.RequestHold(ctx, testShowtime, holder1, []string{"A1"}, 0)
	assert.ErrorIs(t, err, reservation.ErrInvalidInput)

	_, err = env.engine.RequestHold(ctx, testShowtime, "", []string{"A1"}, time.Minute)
	assert.ErrorIs(t, err, reservation.ErrInvalidInput)
}

func TestRequestHold_NotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.RequestHold(ctx, "no-such-showtime", holder1, []string{"A1"}, time.Minute)
	assert.ErrorIs(t, err, reservation.ErrNotFound)

	// Z9 is a well-formed token outside the showtime's seat map.
	_, err = env.engine.RequestHold(ctx, testShowtime, holder1, []string{"Z9"}, time.Minute)
	assert.ErrorIs(t, err, reservation.ErrNotFound)
}

func TestRequestHold_TTLClamped(t *testing.T) {
	env := newTestEnv(t, reservation.WithTTLBounds(time.Minute, 30*time.Minute))

	res, err := env.engine.RequestHold(context.Background(), testShowtime, holder1, []string{"A1"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now().Add(time.Minute), res.ExpiresAt, "ttl below the floor is raised to it")
}

func TestConcurrentHold_ExactlyOneWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, holder := range []string{holder1, holder2} {
		wg.Add(1)
		go func(i int, holder string) {
			defer wg.Done()
			_, errs[i] = env.engine.RequestHold(ctx, testShowtime, holder, []string{"A1"}, time.Minute)
		}(i, holder)
	}
	wg.Wait()

	winners, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case assert.ErrorIs(t, err, reservation.ErrConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, conflicts)
}

func TestHold_ExpiresAtReadTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.RequestHold(ctx, testShowtime, holder1, []string{"A2"}, time.Second)
	require.NoError(t, err)

	// Just before expiry the lock is visible and exclusive.
	snap, err := env.engine.AvailabilitySnapshot(ctx, testShowtime)
	require.NoError(t, err)
	assert.Equal(t, []string{"A2"}, snap.Locked)

	// No sweep runs here: read-time comparison alone must flip the
	// seat back to available.
	env.clock.Advance(2 * time.Second)
	snap, err = env.engine.AvailabilitySnapshot(ctx, testShowtime)
	require.NoError(t, err)
	assert.Empty(t, snap.Locked)

	_, err = env.engine.RequestHold(ctx, testShowtime, holder2, []string{"A2"}, time.Minute)
	assert.NoError(t, err, "another holder takes over an expired lock")
}

func TestRequestHold_BatchRollbackOnConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.RequestHold(ctx, testShowtime, holder1, []string{"A1"}, time.Minute)
	require.NoError(t, err)

	_, err = env.engine.RequestHold(ctx, testShowtime, holder2, []string{"A1", "A2"}, time.Minute)
	var conflict *reservation.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"A1"}, conflict.LockedByOthers)

	// A2 must not stay locked after the failed batch.
	snap, err := env.engine.AvailabilitySnapshot(ctx, testShowtime)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, snap.Locked)

	// H1's hold is intact and converts.
	_, err = env.engine.ConfirmPurchase(ctx, testShowtime, holder1, []string{"A1"}, "purchase-1")
	require.NoError(t, err)
	snap, err = env.engine.AvailabilitySnapshot(ctx, testShowtime)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, snap.Booked)
	assert.Empty(t, snap.Locked)
}

func TestRenewHold_ExtendsExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.engine.RequestHold(ctx, testShowtime, holder1, []string{"B1"}, time.Minute)
	require.NoError(t, err)

	env.clock.Advance(30 * time.Second)
	renewed, err := env.engine.RenewHold(ctx, testShowtime, holder1, []string{"B1"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, first.ExpiresAt.Add(30*time.Second), renewed.ExpiresAt)

	// Past the original expiry but within the renewal the hold lives.
	env.clock.Advance(45 * time.Second)
	snap, err := env.engine.AvailabilitySnapshot(ctx, testShowtime)
	require.NoError(t, err)
	assert.Equal(t, []string{"B1"}, snap.Locked)
}

func TestReleaseHold_SubsetAndAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.RequestHold(ctx, testShowtime, holder1, []string{"A1", "A2", "B1"}, time.Minute)
	require.NoError(t, err)

	remaining, err := env.engine.ReleaseHold(ctx, testShowtime, holder1, []string{"A1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A2", "B1"}, remaining)

	// No explicit seats releases everything the holder has.
	remaining, err = env.engine.ReleaseHold(ctx, testShowtime, holder1, nil)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// Idempotent: releasing again is a no-op success.
	remaining, err = env.engine.ReleaseHold(ctx, testShowtime, holder1, []string{"A1"})
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestReleaseHold_DoesNotTouchForeignLocks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.RequestHold(ctx, testShowtime, holder1, []string{"A1"}, time.Minute)
	require.NoError(t, err)

	_, err = env.engine.ReleaseHold(ctx, testShowtime, holder2, []string{"A1"})
	require.NoError(t, err)

	snap, err := env.engine.AvailabilitySnapshot(ctx, testShowtime)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, snap.Locked, "only the owner can release a lock")
}

func TestConfirmPurchase_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.RequestHold(ctx, testShowtime, holder1, []string{"A1", "A2"}, time.Minute)
	require.NoError(t, err)

	res, err := env.engine.ConfirmPurchase(ctx, testShowtime, holder1, []string{"A1", "A2"}, "purchase-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, res.SeatIDs)
	assert.Equal(t, []string{"A1", "A2"}, res.BookedSeats)
	assert.Equal(t, 2, res.Remaining)
	assert.Equal(t, uint32(3000), res.TotalAmountCents)

	snap, err := env.engine.AvailabilitySnapshot(ctx, testShowtime)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, snap.Booked)
	assert.Empty(t, snap.Locked, "consumed locks disappear")

	ev := env.notifier.await(t, "booked")
	assert.Equal(t, []string{"A1", "A2"}, ev.seatIDs)
}

func TestConfirmPurchase_SecondCallConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.RequestHold(ctx, testShowtime, holder1, []string{"A1"}, time.Minute)
	require.NoError(t, err)
	_, err = env.engine.ConfirmPurchase(ctx, testShowtime, holder1, []string{"A1"}, "purchase-1")
	require.NoError(t, err)

	_, err = env.engine.ConfirmPurchase(ctx, testShowtime, holder1, []string{"A1"}, "purchase-1")
	var conflict *reservation.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"A1"}, conflict.AlreadyBooked, "never double-books")
}

func TestConfirmPurchase_ExpiredHoldConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.RequestHold(ctx, testShowtime, holder1, []string{"A1"}, time.Second)
	require.NoError(t, err)
	env.clock.Advance(2 * time.Second)

	_, err = env.engine.ConfirmPurchase(ctx, testShowtime, holder1, []string{"A1"}, "purchase-1")
	var conflict *reservation.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"A1"}, conflict.NotHeld)

	booked, err := env.ledger.BookedSeats(ctx, testShowtime)
	require.NoError(t, err)
	assert.Empty(t, booked, "ledger unchanged after a failed confirm")
}

func TestConfirmPurchase_ForeignLockConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.RequestHold(ctx, testShowtime, holder2, []string{"A1"}, time.Minute)
	require.NoError(t, err)

	_, err = env.engine.ConfirmPurchase(ctx, testShowtime, holder1, []string{"A1"}, "purchase-1")
	var conflict *reservation.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"A1"}, conflict.LockedByOthers)

	// The failed confirm must not have released the foreign lock.
	snap, err := env.engine.AvailabilitySnapshot(ctx, testShowtime)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, snap.Locked)
}

func TestConcurrentConfirm_ExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Both holders race for disjoint-hold state on the same seat: H1
	// holds it, then both processes try to confirm it for themselves.
	_, err := env.engine.RequestHold(ctx, testShowtime, holder1, []string{"A1"}, time.Minute)
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.engine.ConfirmPurchase(ctx, testShowtime, holder1, []string{"A1"}, "purchase-1")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, reservation.ErrConflict)
		}
	}
	assert.Equal(t, 1, winners, "overlapping confirms must not both succeed")
}

func TestPurgeExpired_FreesSeatsAndNotifies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.RequestHold(ctx, testShowtime, holder1, []string{"A1", "A2"}, time.Second)
	require.NoError(t, err)
	env.clock.Advance(2 * time.Second)

	freed, err := env.engine.PurgeExpired(ctx, testShowtime)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, freed)

	ev := env.notifier.await(t, "freed")
	assert.Equal(t, []string{"A1", "A2"}, ev.seatIDs)
}

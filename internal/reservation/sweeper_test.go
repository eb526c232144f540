package reservation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartelera/seat-reservation/internal/logger"
	"github.com/cartelera/seat-reservation/internal/model"
	"github.com/cartelera/seat-reservation/internal/repository/memory"
	"github.com/cartelera/seat-reservation/internal/reservation"
)

func TestSweep_ReclaimsExpiredLocks(t *testing.T) {
	clock := newFakeClock()
	notifier := newRecordingNotifier()
	locks := memory.NewSeatLockStore()
	catalog := memory.NewShowtimeCatalog(
		model.NewShowtime("st-1", []string{"A1", "A2"}, 1000),
		model.NewShowtime("st-2", []string{"A1"}, 1000),
	)
	engine := reservation.NewEngine(catalog, locks, memory.NewSeatLedger(), notifier,
		logger.NewNop(),
		reservation.WithClock(clock.Now),
		reservation.WithTTLBounds(time.Second, time.Hour),
	)
	sweeper := reservation.NewSweeper(engine, time.Minute, logger.NewNop())
	ctx := context.Background()

	// One showtime expires, the other stays live.
	_, err := engine.RequestHold(ctx, "st-1", holder1, []string{"A1", "A2"}, time.Second)
	require.NoError(t, err)
	_, err = engine.RequestHold(ctx, "st-2", holder2, []string{"A1"}, time.Hour)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	sweeper.Sweep(ctx)

	ev := notifier.await(t, "freed")
	assert.Equal(t, "st-1", ev.showtimeID)
	assert.Equal(t, []string{"A1", "A2"}, ev.seatIDs)

	snap, err := engine.AvailabilitySnapshot(ctx, "st-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, snap.Locked, "live holds survive the sweep")

	ids, err := locks.ShowtimeIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"st-2"}, ids, "fully purged showtimes drop out of the store")
}

func TestSweep_NothingExpiredIsQuiet(t *testing.T) {
	clock := newFakeClock()
	notifier := newRecordingNotifier()
	catalog := memory.NewShowtimeCatalog(model.NewShowtime("st-1", []string{"A1"}, 1000))
	engine := reservation.NewEngine(catalog, memory.NewSeatLockStore(), memory.NewSeatLedger(), notifier,
		logger.NewNop(),
		reservation.WithClock(clock.Now),
	)
	sweeper := reservation.NewSweeper(engine, time.Minute, logger.NewNop())
	ctx := context.Background()

	_, err := engine.RequestHold(ctx, "st-1", holder1, []string{"A1"}, 10*time.Minute)
	require.NoError(t, err)
	notifier.await(t, "locked")

	sweeper.Sweep(ctx)

	select {
	case ev := <-notifier.events:
		t.Fatalf("unexpected %q notification from a sweep with nothing to do", ev.kind)
	case <-time.After(50 * time.Millisecond):
	}
}

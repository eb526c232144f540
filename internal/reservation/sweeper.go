package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/cartelera/seat-reservation/internal/logger"
)

// DefaultSweepInterval is how often the sweeper reclaims abandoned
// locks when no interval is configured.
const DefaultSweepInterval = 30 * time.Second

// Sweeper periodically evicts expired locks so abandoned holds free
// their seats even when no request touches the showtime again.  Read
// correctness never depends on it: expired locks are already invisible
// to readers, the sweep only reclaims storage and announces the freed
// seats.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	log      logger.Logger
}

// NewSweeper binds a sweeper to the engine.  A non-positive interval
// falls back to DefaultSweepInterval.
func NewSweeper(engine *Engine, interval time.Duration, log logger.Logger) *Sweeper {
	if engine == nil || log == nil {
		panic("nil dependency passed to NewSweeper")
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{engine: engine, interval: interval, log: log}
}

// Run sweeps on a fixed ticker until ctx is cancelled.  A failed cycle
// is logged and retried at the next tick; it is never fatal.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("expiry sweeper started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one full cycle over every showtime that still has lock
// records.  Per-showtime failures are logged and skipped so one bad
// showtime cannot stall the rest; a showtime whose boundary is
// contended is left for the next tick.
func (s *Sweeper) Sweep(ctx context.Context) {
	ids, err := s.engine.locks.ShowtimeIDs(ctx)
	if err != nil {
		s.log.Error("sweep cycle failed to enumerate showtimes", "error", err)
		return
	}
	for _, id := range ids {
		freed, err := s.engine.PurgeExpired(ctx, id)
		if err != nil {
			if errors.Is(err, ErrBusy) {
				continue
			}
			s.log.Error("sweep failed for showtime", "showtime_id", id, "error", err)
			continue
		}
		if len(freed) > 0 {
			s.log.Info("expired locks reclaimed", "showtime_id", id, "seats", freed)
		}
	}
}

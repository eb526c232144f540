package memory

import (
	"context"
	"sync"

	"github.com/cartelera/seat-reservation/internal/model"
	"github.com/cartelera/seat-reservation/internal/reservation"
)

// ShowtimeCatalog is a fixed in-memory seat-map registry.  Showtime
// CRUD belongs to an external collaborator, so the catalog only
// supports seeding at startup and lookups afterwards.
type ShowtimeCatalog struct {
	mu    sync.RWMutex
	shows map[string]model.Showtime
}

func NewShowtimeCatalog(shows ...model.Showtime) *ShowtimeCatalog {
	c := &ShowtimeCatalog{shows: make(map[string]model.Showtime, len(shows))}
	for _, s := range shows {
		c.shows[s.ID] = s
	}
	return c
}

// Add registers or replaces a showtime's seat space.
func (c *ShowtimeCatalog) Add(show model.Showtime) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shows[show.ID] = show
}

func (c *ShowtimeCatalog) Showtime(_ context.Context, showtimeID string) (model.Showtime, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	show, ok := c.shows[showtimeID]
	if !ok {
		return model.Showtime{}, reservation.ErrShowtimeUnknown
	}
	return show, nil
}

var _ reservation.ShowtimeCatalog = (*ShowtimeCatalog)(nil)

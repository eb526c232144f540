package reservation

import (
	"context"
	"sync"
	"time"
)

// keyedMutex provides one mutex per showtime so that conflicting
// operations on the same seat map serialize while unrelated showtimes
// proceed independently.  Acquisition is bounded: a caller that cannot
// enter the critical section within its timeout gets ErrBusy instead
// of blocking forever.
type keyedMutex struct {
	mu    sync.Mutex
	slots map[string]*mutexSlot
}

// mutexSlot holds the semaphore channel for one key.  A token in the
// channel means the slot is free.  refs counts the current owner plus
// all waiters so the slot can be dropped from the map once nobody
// references it.
type mutexSlot struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{slots: make(map[string]*mutexSlot)}
}

// acquire blocks until the key's slot is free, the timeout elapses or
// ctx is cancelled.  On success it returns a release function that
// must be called exactly once.  Waiters are served in whatever order
// the runtime wakes them; no fairness is guaranteed.
func (k *keyedMutex) acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &mutexSlot{ch: make(chan struct{}, 1)}
		s.ch <- struct{}{}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.ch:
		var once sync.Once
		return func() {
			once.Do(func() {
				s.ch <- struct{}{}
				k.unref(key, s)
			})
		}, nil
	case <-timer.C:
		k.unref(key, s)
		return nil, ErrBusy
	case <-ctx.Done():
		k.unref(key, s)
		return nil, ErrBusy
	}
}

func (k *keyedMutex) unref(key string, s *mutexSlot) {
	k.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
	k.mu.Unlock()
}

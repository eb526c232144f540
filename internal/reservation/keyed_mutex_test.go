package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_AcquireAndRelease(t *testing.T) {
	km := newKeyedMutex()
	ctx := context.Background()

	release, err := km.acquire(ctx, "st-1", time.Second)
	require.NoError(t, err)
	release()

	// The slot is reusable after release.
	release, err = km.acquire(ctx, "st-1", time.Second)
	require.NoError(t, err)
	release()
}

func TestKeyedMutex_BusyOnContention(t *testing.T) {
	km := newKeyedMutex()
	ctx := context.Background()

	release, err := km.acquire(ctx, "st-1", time.Second)
	require.NoError(t, err)

	_, err = km.acquire(ctx, "st-1", 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrBusy)

	release()
	release2, err := km.acquire(ctx, "st-1", time.Second)
	require.NoError(t, err)
	release2()
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := newKeyedMutex()
	ctx := context.Background()

	release1, err := km.acquire(ctx, "st-1", time.Second)
	require.NoError(t, err)
	defer release1()

	// A different showtime is not blocked by st-1's critical section.
	release2, err := km.acquire(ctx, "st-2", 20*time.Millisecond)
	require.NoError(t, err)
	release2()
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	km := newKeyedMutex()

	release, err := km.acquire(context.Background(), "st-1", time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = km.acquire(ctx, "st-1", time.Second)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestKeyedMutex_ReleaseUnblocksWaiter(t *testing.T) {
	km := newKeyedMutex()
	ctx := context.Background()

	release, err := km.acquire(ctx, "st-1", time.Second)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		r, err := km.acquire(ctx, "st-1", 2*time.Second)
		if err == nil {
			r()
		}
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	release()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not unblocked by release")
	}
}

func TestKeyedMutex_ReleaseIsIdempotent(t *testing.T) {
	km := newKeyedMutex()
	ctx := context.Background()

	release, err := km.acquire(ctx, "st-1", time.Second)
	require.NoError(t, err)
	release()
	release() // second call must not free the slot twice

	r1, err := km.acquire(ctx, "st-1", time.Second)
	require.NoError(t, err)
	defer r1()

	_, err = km.acquire(ctx, "st-1", 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestKeyedMutex_SlotDroppedWhenUnused(t *testing.T) {
	km := newKeyedMutex()

	release, err := km.acquire(context.Background(), "st-1", time.Second)
	require.NoError(t, err)
	release()

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.slots, "released slots must not leak")
}

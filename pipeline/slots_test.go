package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotPool(t *testing.T) {
	t.Parallel()

	t.Run("waits for release", func(t *testing.T) {
		t.Parallel()

		pool := newSlotPool(1)
		first, err := pool.acquire(context.Background())
		require.NoError(t, err)

		got := make(chan error, 1)
		go func() {
			_, err := pool.acquire(context.Background())
			got <- err
		}()

		select {
		case <-got:
			t.Fatal("second acquire did not wait")
		case <-time.After(20 * time.Millisecond):
		}

		pool.release(first)
		select {
		case err := <-got:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("second acquire not woken by release")
		}
	})

	t.Run("abandoned slot fails waiters", func(t *testing.T) {
		t.Parallel()

		pool := newSlotPool(1)
		first, err := pool.acquire(context.Background())
		require.NoError(t, err)

		got := make(chan error, 1)
		go func() {
			_, err := pool.acquire(context.Background())
			got <- err
		}()

		pool.abandon(first)
		select {
		case err := <-got:
			assert.ErrorIs(t, err, errInferenceTimeout)
		case <-time.After(time.Second):
			t.Fatal("waiter not failed when the slot was abandoned")
		}

		// the runtime recovers once the abandoned call returns.
		pool.release(first)
		next, err := pool.acquire(context.Background())
		require.NoError(t, err)
		pool.release(next)
	})

	t.Run("abandon after release", func(t *testing.T) {
		t.Parallel()

		pool := newSlotPool(1)
		c, err := pool.acquire(context.Background())
		require.NoError(t, err)
		pool.release(c)
		pool.abandon(c)

		next, err := pool.acquire(context.Background())
		require.NoError(t, err)
		pool.release(next)
	})

	t.Run("partially wedged", func(t *testing.T) {
		t.Parallel()

		pool := newSlotPool(2)
		stuck, err := pool.acquire(context.Background())
		require.NoError(t, err)
		pool.abandon(stuck)

		live, err := pool.acquire(context.Background())
		require.NoError(t, err)
		pool.release(live)
	})

	t.Run("canceled", func(t *testing.T) {
		t.Parallel()

		pool := newSlotPool(1)
		_, err := pool.acquire(context.Background())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = pool.acquire(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

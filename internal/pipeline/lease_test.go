package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-screening-backend/internal/domain"
	"go-screening-backend/internal/pipeline"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseArena(t *testing.T) {
	ctx := context.Background()

	t.Run("one holder per resume", func(t *testing.T) {
		arena := pipeline.NewLeaseArena()
		id := uuid.New()

		l, ok := arena.TryAcquire(ctx, id, 1)
		require.True(t, ok)
		_, ok = arena.TryAcquire(ctx, id, 1)
		assert.False(t, ok)

		_, ok = arena.TryAcquire(ctx, uuid.New(), 1)
		assert.True(t, ok, "other resumes are independent")

		l.Release()
		_, ok = arena.TryAcquire(ctx, id, 2)
		assert.True(t, ok)
	})

	t.Run("acquire waits for release", func(t *testing.T) {
		arena := pipeline.NewLeaseArena()
		id := uuid.New()
		first, ok := arena.TryAcquire(ctx, id, 1)
		require.True(t, ok)

		go func() {
			time.Sleep(20 * time.Millisecond)
			first.Release()
		}()

		second, err := arena.Acquire(ctx, id, 1, time.Second)
		require.NoError(t, err)
		assert.True(t, arena.Held(id))
		second.Release()
		assert.False(t, arena.Held(id))
	})

	t.Run("acquire times out", func(t *testing.T) {
		arena := pipeline.NewLeaseArena()
		id := uuid.New()
		_, ok := arena.TryAcquire(ctx, id, 1)
		require.True(t, ok)

		_, err := arena.Acquire(ctx, id, 1, 20*time.Millisecond)
		assert.ErrorIs(t, err, domain.ErrLeaseTimeout)
	})

	t.Run("revoke cancels holder and stale release is a no-op", func(t *testing.T) {
		arena := pipeline.NewLeaseArena()
		id := uuid.New()
		stale, ok := arena.TryAcquire(ctx, id, 1)
		require.True(t, ok)

		assert.True(t, arena.Revoke(id))
		<-stale.Context().Done()
		assert.True(t, errors.Is(context.Cause(stale.Context()), pipeline.ErrLeaseRevoked))

		fresh, ok := arena.TryAcquire(ctx, id, 2)
		require.True(t, ok)

		stale.Release()
		assert.True(t, arena.Held(id), "stale release must not free the new holder")
		assert.NoError(t, fresh.Context().Err())
		fresh.Release()
	})

	t.Run("no two holders under contention", func(t *testing.T) {
		arena := pipeline.NewLeaseArena()
		id := uuid.New()
		var inside, maxInside int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				l, err := arena.Acquire(ctx, id, 1, 5*time.Second)
				if !assert.NoError(t, err) {
					return
				}
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				l.Release()
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), maxInside)
		assert.Equal(t, 0, arena.Len())
	})
}

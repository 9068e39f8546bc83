package jobs

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestPoolRunsAllTasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := NewPool(4, quietLogger())
	pool.Start()
	defer pool.Stop()

	ctx := context.Background()
	var counter atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		err := pool.Submit(ctx, func(ctx context.Context) {
			defer wg.Done()
			counter.Add(1)
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Equal(t, int32(20), counter.Load())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	const workers = 3
	pool := NewPool(workers, quietLogger())
	pool.Start()
	defer pool.Stop()

	ctx := context.Background()
	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 12; i++ {
		wg.Add(1)
		err := pool.Submit(ctx, func(ctx context.Context) {
			defer wg.Done()
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(workers))
}

func TestPoolSubmitAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := NewPool(2, quietLogger())
	pool.Start()
	pool.Stop()

	err := pool.Submit(context.Background(), func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPoolDeliversSubmittedContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := NewPool(1, quietLogger())
	pool.Start()
	defer pool.Stop()

	// Occupy the single worker so the next task queues behind it.
	block := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) {
		defer wg.Done()
		<-block
	}))

	ctx, cancel := context.WithCancel(context.Background())
	var sawCancelled atomic.Bool
	wg.Add(1)
	require.NoError(t, pool.Submit(ctx, func(ctx context.Context) {
		defer wg.Done()
		sawCancelled.Store(ctx.Err() != nil)
	}))
	cancel()

	close(block)
	wg.Wait()

	assert.True(t, sawCancelled.Load(),
		"a queued task still runs and observes its cancelled context")
}

func TestPoolSubmitHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := NewPool(1, quietLogger())
	pool.Start()
	defer pool.Stop()

	// Fill the worker and the queue.
	block := make(chan struct{})
	defer close(block)
	for i := 0; i < 2; i++ {
		require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) {
			<-block
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.Submit(ctx, func(ctx context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolStopRunsQueuedTasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := NewPool(1, quietLogger())
	pool.Start()

	ctx := context.Background()
	var counter atomic.Int32

	// Occupy the single worker so the next task sits in the queue
	// when Stop is called.
	release := make(chan struct{})
	require.NoError(t, pool.Submit(ctx, func(ctx context.Context) {
		<-release
		counter.Add(1)
	}))
	require.NoError(t, pool.Submit(ctx, func(ctx context.Context) {
		counter.Add(1)
	}))

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	pool.Stop()

	assert.Equal(t, int32(2), counter.Load(),
		"a task accepted before Stop must run, not be discarded")
}

func TestPoolStopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := NewPool(2, quietLogger())
	pool.Start()
	pool.Stop()
	pool.Stop()
}

package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueue_Order(t *testing.T) {
	q := NewUnbounded[int]()
	defer q.Shutdown()

	for i := 0; i < 100; i++ {
		require.NoError(t, q.Offer(t.Context(), i))
	}
	for i := 0; i < 100; i++ {
		v, err := q.Take(t.Context())
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
}

func TestQueue_Bounded_Backpressure(t *testing.T) {
	q := NewBounded[int](2)
	defer q.Shutdown()

	require.NoError(t, q.Offer(t.Context(), 1))
	require.NoError(t, q.Offer(t.Context(), 2))

	// queue full: third offer must block until a consumer takes
	offered := make(chan error, 1)
	go func() {
		offered <- q.Offer(context.Background(), 3)
	}()

	select {
	case err := <-offered:
		t.Fatalf("offer completed on full queue: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	v, err := q.Take(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, v)

	require.NoError(t, <-offered)
}

func TestQueue_Offer_ContextCanceled(t *testing.T) {
	q := NewBounded[int](1)
	defer q.Shutdown()

	require.NoError(t, q.Offer(t.Context(), 1))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, q.Offer(ctx, 2), context.DeadlineExceeded)
}

func TestQueue_Shutdown_Idempotent(t *testing.T) {
	q := NewUnbounded[string]()
	q.Shutdown()
	q.Shutdown() // no panic, no effect

	require.True(t, q.IsShutdown())

	_, err := q.Take(t.Context())
	require.ErrorIs(t, err, ErrShutdown)
	require.ErrorIs(t, q.Offer(t.Context(), "x"), ErrShutdown)
}

func TestQueue_Shutdown_UnblocksWaiters(t *testing.T) {
	q := NewUnbounded[int]()

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Take(context.Background())
			errs <- err
		}()
	}

	<-time.After(20 * time.Millisecond)
	q.Shutdown()
	wg.Wait()

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, <-errs, ErrShutdown)
	}

	select {
	case <-q.Done():
	default:
		t.Fatal("Done() not closed after shutdown")
	}
}

func TestQueue_Shutdown_DiscardsBuffered(t *testing.T) {
	q := NewUnbounded[int]()
	require.NoError(t, q.Offer(t.Context(), 42))
	q.Shutdown()

	_, err := q.Take(t.Context())
	require.ErrorIs(t, err, ErrShutdown)
}

func TestQueue_TryTake(t *testing.T) {
	q := NewUnbounded[int]()
	defer q.Shutdown()

	_, ok := q.TryTake()
	require.False(t, ok)

	require.NoError(t, q.Offer(t.Context(), 7))

	// pump hands the item to the out channel asynchronously
	require.Eventually(t, func() bool {
		v, ok := q.TryTake()
		return ok && v == 7
	}, time.Second, time.Millisecond)
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := NewBounded[int](8)
	defer q.Shutdown()

	const n = 200
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < n/4; i++ {
				require.NoError(t, q.Offer(context.Background(), i))
			}
		}()
	}

	got := 0
	for got < n {
		_, err := q.Take(t.Context())
		require.NoError(t, err)
		got++
	}
	wg.Wait()
}

package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueIsFIFO(t *testing.T) {
	t.Parallel()

	q := New[int]("primary")
	ctx := context.Background()
	for i := 1; i <= 1000; i++ {
		require.NoError(t, q.Enqueue(ctx, i))
	}
	assert.Equal(t, 1000, q.Len())

	for i := 1; i <= 1000; i++ {
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.Equal(t, i, got)
	}
	assert.Zero(t, q.Len())
}

func TestQueueDequeueBlocksUntilEnqueue(t *testing.T) {
	t.Parallel()

	q := New[string]("retry")
	result := make(chan string, 1)
	go func() {
		v, err := q.Dequeue(context.Background())
		if err == nil {
			result <- v
		}
	}()

	select {
	case <-result:
		t.Fatal("dequeue returned before anything was enqueued")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, q.Enqueue(context.Background(), "job-1"))
	select {
	case got := <-result:
		assert.Equal(t, "job-1", got)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return job")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	q := New[int]("primary")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx)
	require.Error(t, err)
	assert.Equal(t, "dequeue canceled: context canceled", err.Error())

	err = q.Enqueue(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueCloseDrainsThenFails(t *testing.T) {
	t.Parallel()

	q := New[int]("primary")
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 7))
	q.Close()
	q.Close()

	require.ErrorIs(t, q.Enqueue(ctx, 8), ErrClosed)

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	_, err = q.Dequeue(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestQueueCloseWakesBlockedConsumers(t *testing.T) {
	t.Parallel()

	q := New[int]("retry")
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := q.Dequeue(context.Background())
			errs <- err
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Close()
	for i := 0; i < 3; i++ {
		select {
		case err := <-errs:
			assert.True(t, errors.Is(err, ErrClosed))
		case <-time.After(time.Second):
			t.Fatal("consumer was not woken by Close")
		}
	}
}

func TestQueueConcurrentProducersConsumers(t *testing.T) {
	t.Parallel()

	q := New[int]("primary")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const producers, perProducer, consumers = 4, 250, 6
	var produced sync.WaitGroup
	for p := 0; p < producers; p++ {
		produced.Add(1)
		go func(p int) {
			defer produced.Done()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, q.Enqueue(ctx, p*perProducer+i))
			}
		}(p)
	}

	var mu sync.Mutex
	seen := make(map[int]int)
	var consumed sync.WaitGroup
	for c := 0; c < consumers; c++ {
		consumed.Add(1)
		go func() {
			defer consumed.Done()
			for {
				v, err := q.Dequeue(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
		}()
	}

	produced.Wait()
	q.Close()
	consumed.Wait()

	require.Len(t, seen, producers*perProducer)
	for v, n := range seen {
		require.Equal(t, 1, n, "item %d delivered %d times", v, n)
	}
}

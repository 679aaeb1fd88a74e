package queue_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/praveen686/omlaxmiquant/internal/queue"
)

func TestPushPopFIFO(t *testing.T) {
	q := queue.NewSPSC[int](4)
	for i := 1; i <= 4; i++ {
		require.True(t, q.Push(i))
	}
	require.False(t, q.Push(5), "queue should be full")
	require.Equal(t, 4, q.Size())

	for i := 1; i <= 4; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok := q.Pop()
	require.False(t, ok)
	require.Equal(t, 0, q.Size())
}

func TestSlotPrimitives(t *testing.T) {
	q := queue.NewSPSC[string](2)

	slot := q.NextToWrite()
	require.NotNil(t, slot)
	*slot = "first"
	// Not visible to the reader until published.
	require.Nil(t, q.NextToRead())
	q.UpdateWriteIndex()

	read := q.NextToRead()
	require.NotNil(t, read)
	require.Equal(t, "first", *read)
	q.UpdateReadIndex()
	require.Nil(t, q.NextToRead())
}

func TestWrapAround(t *testing.T) {
	q := queue.NewSPSC[int](2)
	for round := 0; round < 100; round++ {
		require.True(t, q.Push(round))
		v, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, round, v)
	}
}

func TestConcurrentFIFO(t *testing.T) {
	const n = 100_000
	q := queue.NewSPSC[int](1024)
	done := make(chan struct{})

	go func() {
		defer close(done)
		next := 0
		for next < n {
			v, ok := q.Pop()
			if !ok {
				continue
			}
			if v != next {
				t.Errorf("out of order: got %d want %d", v, next)
				return
			}
			next++
		}
	}()

	for i := 0; i < n; {
		if q.Push(i) {
			i++
		}
	}
	<-done
}

func TestMinimumCapacity(t *testing.T) {
	q := queue.NewSPSC[int](0)
	require.Equal(t, 1, q.Capacity())
	require.True(t, q.Push(7))
	require.False(t, q.Push(8))
}

package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	rq := NewRingQueue[int](3)

	require.NoError(t, rq.Enqueue(1))
	require.NoError(t, rq.Enqueue(2))
	require.NoError(t, rq.Enqueue(3))
	assert.True(t, rq.IsFull())
	assert.ErrorIs(t, rq.Enqueue(4), ErrQueueFull)

	v, err := rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	for want := 1; want <= 3; want++ {
		got, err := rq.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.True(t, rq.IsEmpty())

	_, err = rq.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestGrowableRingQueueKeepsOrderAcrossWrap(t *testing.T) {
	rq := NewGrowableRingQueue[string](2)

	require.NoError(t, rq.Enqueue("a"))
	require.NoError(t, rq.Enqueue("b"))
	got, _ := rq.Dequeue()
	assert.Equal(t, "a", got)

	// Write index has wrapped; growing must unroll the ring in order.
	require.NoError(t, rq.Enqueue("c"))
	require.NoError(t, rq.Enqueue("d"))
	require.NoError(t, rq.Enqueue("e"))
	assert.Equal(t, 4, rq.Len())

	for _, want := range []string{"b", "c", "d", "e"} {
		got, err := rq.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

package containers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	q := NewRingQueue[uint64](2)
	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	assert.ErrorIs(t, q.Enqueue(3), ErrQueueFull)

	v, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	require.NoError(t, q.Enqueue(3))

	p, err := q.Peek()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p)
	assert.Equal(t, 2, q.Len())

	q.Dequeue()
	q.Dequeue()
	_, err = q.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
	assert.True(t, q.IsEmpty())
}

func TestRotationRoundRobin(t *testing.T) {
	r, err := NewRotation(3, func(i int) (string, error) {
		return string(rune('a' + i)), nil
	})
	require.NoError(t, err)

	i, next := r.PeekNext()
	assert.Equal(t, 0, i)
	assert.Equal(t, "a", next)

	var seen []int
	for n := 0; n < 7; n++ {
		i, _ := r.Next()
		seen = append(seen, i)
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, seen)

	i, next = r.PeekNext()
	assert.Equal(t, 1, i)
	assert.Equal(t, "b", next)
	assert.Panics(t, func() { r.At(3) })
}

func TestRotationPartialBuild(t *testing.T) {
	boom := errors.New("boom")
	r, err := NewRotation(3, func(i int) (int, error) {
		if i == 2 {
			return 0, boom
		}
		return i, nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, r.Len())
}

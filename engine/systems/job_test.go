package systems

import (
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobSystemValidates(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestForEachRunsEveryIndexOnce(t *testing.T) {
	js, err := NewJobSystem(4, 2)
	require.NoError(t, err)
	defer func() { assert.NoError(t, js.Shutdown()) }()

	seen := make([]int32, 100)
	require.NoError(t, js.ForEach(len(seen), func(i int) error {
		atomic.AddInt32(&seen[i], 1)
		return nil
	}))
	for i, n := range seen {
		assert.Equal(t, int32(1), n, "index %d", i)
	}
}

func TestWaitReportsAndClearsErrors(t *testing.T) {
	js, err := NewJobSystem(2, 0)
	require.NoError(t, err)
	defer func() { assert.NoError(t, js.Shutdown()) }()

	boom := errors.New("boom")
	var ran int32
	err = js.ForEach(10, func(i int) error {
		atomic.AddInt32(&ran, 1)
		if i == 3 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(10), atomic.LoadInt32(&ran), "a failure does not stop the others")
	assert.NoError(t, js.Wait())
}

func TestSubmitAfterShutdown(t *testing.T) {
	js, err := NewJobSystem(1, 1)
	require.NoError(t, err)
	require.NoError(t, js.Shutdown())
	require.NoError(t, js.Shutdown())
	assert.ErrorIs(t, js.Submit(func() error { return nil }), ErrShutdown)
}

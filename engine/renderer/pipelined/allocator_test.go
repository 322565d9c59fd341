package pipelined

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSimDevice(t *testing.T) *sim.Device {
	t.Helper()
	d := sim.NewDevice(sim.DefaultOptions())
	t.Cleanup(d.Destroy)
	return d
}

func TestLinearAllocatorRanges(t *testing.T) {
	d := newSimDevice(t)
	buf, err := d.NewUploadBuffer(4096)
	require.NoError(t, err)

	a, err := NewLinearAllocator("test", buf, 1024, 1000, 1)
	require.NoError(t, err)
	a.Reset()

	sizes := []uint64{1, 7, 100, 256, 3, 633}
	var total uint64
	var prevEnd uint64 = 1024
	for _, n := range sizes {
		al, err := a.Allocate(n)
		require.NoError(t, err)
		assert.Equal(t, prevEnd, al.Offset, "ranges are contiguous and increasing")
		assert.Len(t, al.Data, int(n))
		prevEnd = al.Offset + al.Size
		total += n
	}
	assert.Equal(t, uint64(1000), total)
	assert.Equal(t, total, a.Used())

	_, err = a.Allocate(1)
	assert.True(t, errors.Is(err, core.ErrCapacityExceeded))
	assert.Equal(t, total, a.Used(), "a failed allocation does not move the cursor")

	a.Reset()
	al, err := a.Allocate(10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1024), al.Offset)
}

func TestLinearAllocatorAlignment(t *testing.T) {
	d := newSimDevice(t)
	buf, _ := d.NewUploadBuffer(4096)
	a, err := NewLinearAllocator("constants", buf, 0, 1024, 256)
	require.NoError(t, err)

	_, err = a.Allocate(16)
	assert.Error(t, err, "allocating before Reset")

	a.Reset()
	for i := 0; i < 4; i++ {
		al, err := a.Allocate(176)
		require.NoError(t, err)
		assert.Equal(t, uint64(i*256), al.Offset)
	}
	_, err = a.Allocate(176)
	assert.True(t, errors.Is(err, core.ErrCapacityExceeded))

	al, err := NewLinearAllocator("args", buf, 1024, 64, 256)
	require.NoError(t, err)
	al.Reset()
	x, _ := al.AllocateAligned(5, 4)
	y, _ := al.AllocateAligned(20, 4)
	assert.Equal(t, uint64(1024), x.Offset)
	assert.Equal(t, uint64(1032), y.Offset)

	_, err = NewLinearAllocator("bad", buf, 0, 16, 3)
	assert.Error(t, err)
	_, err = NewLinearAllocator("outside", buf, 4000, 200, 1)
	assert.Error(t, err)
}

func TestWriteHelpers(t *testing.T) {
	dst := make([]byte, 12)
	v := [3]uint32{1, 2, 3}
	writeValue(dst, &v)
	got := sliceOf[uint32](dst, 3)
	assert.Equal(t, []uint32{1, 2, 3}, got)

	writeSlice(dst, []uint16{7, 8})
	assert.Equal(t, uint32(8<<16|7), sliceOf[uint32](dst, 1)[0])
}

func TestDescriptorTableAllocator(t *testing.T) {
	d := newSimDevice(t)
	heap, err := d.NewDescriptorHeap(10, 4)
	require.NoError(t, err)

	a, err := NewDescriptorTableAllocator("slot 1", heap, 4, 3)
	require.NoError(t, err)
	x, err := a.Allocate(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), x.Table(0))
	assert.Equal(t, uint32(5), x.Table(1))
	assert.Panics(t, func() { x.Table(2) })

	y, err := a.Allocate(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), y.First)

	_, err = a.Allocate(1)
	assert.True(t, errors.Is(err, core.ErrCapacityExceeded))

	a.Reset()
	x, err = a.Allocate(3)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), x.First)

	_, err = NewDescriptorTableAllocator("outside", heap, 8, 3)
	assert.Error(t, err)
}

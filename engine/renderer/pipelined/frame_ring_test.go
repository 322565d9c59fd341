package pipelined

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var smallLayout = SlotLayout{
	Subsets:      2,
	Alignment:    256,
	PreBytes:     256,
	SubsetBytes:  1024,
	PostBytes:    256,
	PreTables:    1,
	SubsetTables: 1,
	PostTables:   1,
}

func newTestRing(t *testing.T, d *sim.Device, timeout time.Duration) (*Fence, *FrameRing) {
	t.Helper()
	fence, err := NewFence(d, timeout, nil)
	require.NoError(t, err)
	heap, err := d.NewDescriptorHeap(3*smallLayout.Tables(), 4)
	require.NoError(t, err)
	ring, err := NewFrameRing(fence, 3, func(i int) (*FrameSlot, error) {
		return NewFrameSlot(d, heap, i, smallLayout)
	})
	require.NoError(t, err)
	return fence, ring
}

// submitFrame records one list per subset that reads the slot's upload
// memory, then signals and retires the slot.
func submitFrame(t *testing.T, d *sim.Device, fence *Fence, ring *FrameRing, s *FrameSlot) uint64 {
	t.Helper()
	require.NoError(t, s.BeginRecording())
	for i := 0; i < s.SubsetCount(); i++ {
		region := s.Subset(i)
		a, err := region.Upload.Allocate(64)
		require.NoError(t, err)
		rec, err := region.Context.Begin("subset")
		require.NoError(t, err)
		rec.BindConstants(a.Range())
		l, err := rec.Close()
		require.NoError(t, err)
		require.NoError(t, d.Queue().Submit(l))
	}
	v, err := fence.Submit()
	require.NoError(t, err)
	require.NoError(t, ring.Retire(s, v))
	return v
}

func TestFrameRingNoReuseBeforeCompletion(t *testing.T) {
	d := newSimDevice(t)
	fence, ring := newTestRing(t, d, 5*time.Second)
	defer func() {
		d.CompleteAll()
		ring.Destroy()
		fence.Destroy()
	}()

	for i := 0; i < 3; i++ {
		s, err := ring.AcquireNext()
		require.NoError(t, err)
		assert.Equal(t, i, s.Index())
		assert.Equal(t, SlotAcquired, s.State())
		assert.Equal(t, uint64(i+1), submitFrame(t, d, fence, ring, s))
		assert.Equal(t, SlotSubmitted, s.State())
	}

	acquired := make(chan *FrameSlot, 1)
	go func() {
		s, err := ring.AcquireNext()
		assert.NoError(t, err)
		acquired <- s
	}()

	select {
	case <-acquired:
		t.Fatal("slot 0 handed out before its fence completed")
	case <-time.After(30 * time.Millisecond):
	}

	d.CompleteThrough(fence.timeline, 1)
	select {
	case s := <-acquired:
		assert.Equal(t, 0, s.Index())
		assert.True(t, fence.IsComplete(1))
		assert.False(t, fence.IsComplete(2))
		assert.Equal(t, uint64(1), s.Stats().Waits)
		ring.Cancel(s)
	case <-time.After(time.Second):
		t.Fatal("slot 0 not handed out after its fence completed")
	}
	assert.Empty(t, d.Hazards())
}

func TestFrameRingStateMachine(t *testing.T) {
	d := newSimDevice(t)
	fence, ring := newTestRing(t, d, time.Second)
	defer func() {
		d.CompleteAll()
		ring.Destroy()
		fence.Destroy()
	}()

	s, err := ring.AcquireNext()
	require.NoError(t, err)
	_, err = ring.AcquireNext()
	assert.Error(t, err, "previous slot not retired")

	require.NoError(t, s.BeginRecording())
	assert.Error(t, s.BeginRecording())
	assert.Equal(t, SlotRecording, s.State())

	v := submitFrameRetired(t, fence, ring, s)
	assert.Error(t, ring.Retire(s, v+1), "already submitted")

	d.CompleteAll()
	require.NoError(t, ring.WaitNext())
	next, err := ring.AcquireNext()
	require.NoError(t, err)
	assert.Equal(t, 1, next.Index())
	ring.Cancel(next)
	assert.Equal(t, SlotIdle, next.State())
}

func submitFrameRetired(t *testing.T, fence *Fence, ring *FrameRing, s *FrameSlot) uint64 {
	t.Helper()
	v, err := fence.Submit()
	require.NoError(t, err)
	require.NoError(t, ring.Retire(s, v))
	return v
}

func TestFenceZeroTimeoutIsDeviceLost(t *testing.T) {
	d := newSimDevice(t)
	fence, err := NewFence(d, 0, nil)
	require.NoError(t, err)
	defer d.CompleteAll()

	v, err := fence.Submit()
	require.NoError(t, err)
	assert.False(t, fence.IsComplete(v))

	done := make(chan error, 1)
	go func() { done <- fence.WaitUntil(v) }()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, core.ErrDeviceLost))
		assert.True(t, core.IsFatal(err))
	case <-time.After(time.Second):
		t.Fatal("zero timeout wait did not return")
	}

	assert.True(t, errors.Is(fence.DrainAll(), core.ErrDeviceLost))
}

func TestFenceDrainAll(t *testing.T) {
	opts := sim.DefaultOptions()
	opts.Mode = sim.Auto
	d := sim.NewDevice(opts)
	defer d.Destroy()

	fence, err := NewFence(d, time.Second, nil)
	require.NoError(t, err)
	require.NoError(t, fence.DrainAll(), "nothing submitted")
	for i := 0; i < 5; i++ {
		_, err := fence.Submit()
		require.NoError(t, err)
	}
	require.NoError(t, fence.DrainAll())
	assert.Equal(t, uint64(5), fence.Completed())
	assert.Equal(t, fence.Submitted(), fence.Completed())
}

func TestLostDeviceTimesOut(t *testing.T) {
	d := newSimDevice(t)
	fence, ring := newTestRing(t, d, 10*time.Millisecond)
	for i := 0; i < 3; i++ {
		s, err := ring.AcquireNext()
		require.NoError(t, err)
		submitFrame(t, d, fence, ring, s)
	}
	d.LoseDevice()
	_, err := ring.AcquireNext()
	assert.True(t, errors.Is(err, core.ErrDeviceLost))
	assert.Contains(t, err.Error(), "frame slot 0")
}

func TestSlotLayoutBudgets(t *testing.T) {
	assert.Equal(t, uint64(256+2*1024+256), smallLayout.UploadBytes())
	assert.Equal(t, uint32(4), smallLayout.Tables())

	d := newSimDevice(t)
	heap, _ := d.NewDescriptorHeap(8, 4)
	s, err := NewFrameSlot(d, heap, 1, smallLayout)
	require.NoError(t, err)
	defer s.Destroy()
	assert.Equal(t, smallLayout.UploadBytes(), s.Upload().Size())

	a, err := s.Subset(1).Tables.Allocate(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(4+1+1), a.First)

	_, err = NewFrameSlot(d, heap, 2, smallLayout)
	assert.Error(t, err, "tables past the end of the heap")
}

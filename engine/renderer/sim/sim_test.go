package sim

import (
	"context"
	"testing"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManual(t *testing.T) *Device {
	t.Helper()
	d := NewDevice(DefaultOptions())
	t.Cleanup(d.Destroy)
	return d
}

func recordDraw(t *testing.T, d *Device, ctx gpu.CommandContext, label string, target gpu.RenderTarget, consts gpu.UploadBuffer) gpu.CommandList {
	t.Helper()
	rec, err := ctx.Begin(label)
	require.NoError(t, err)
	rec.BeginPass(gpu.PassDesc{Color: target})
	rec.BindConstants(gpu.BufferRange{Buffer: consts, Offset: 0, Size: 256})
	rec.DrawIndexed(36, 0, 0, 0)
	rec.EndPass()
	l, err := rec.Close()
	require.NoError(t, err)
	return l
}

func TestSubmitSignalComplete(t *testing.T) {
	d := newManual(t)
	tl, err := d.NewTimeline()
	require.NoError(t, err)
	ctx, err := d.NewCommandContext()
	require.NoError(t, err)
	ub, err := d.NewUploadBuffer(1024)
	require.NoError(t, err)
	depth, err := d.NewDepthTarget(64, 64)
	require.NoError(t, err)

	l := recordDraw(t, d, ctx, "draws", depth, ub)
	require.NoError(t, d.Queue().Submit(l))
	require.NoError(t, d.Queue().Signal(tl, 1))

	assert.Equal(t, uint64(0), tl.Completed())
	assert.Equal(t, 2, d.Pending())
	assert.Equal(t, 1, ub.(*UploadBuffer).Busy())

	d.CompleteThrough(tl, 1)
	assert.Equal(t, uint64(1), tl.Completed())
	assert.Equal(t, 0, ub.(*UploadBuffer).Busy())

	exec := d.Executed()
	require.Len(t, exec, 1)
	assert.Equal(t, "draws", exec[0].Label)
	assert.Equal(t, 1, exec[0].Count(OpDrawIndexed))
	assert.Empty(t, d.Hazards())
}

func TestHazardsOnBusyResources(t *testing.T) {
	d := newManual(t)
	ctx, _ := d.NewCommandContext()
	ub, _ := d.NewUploadBuffer(512)
	depth, _ := d.NewDepthTarget(8, 8)

	require.NoError(t, d.Queue().Submit(recordDraw(t, d, ctx, "a", depth, ub)))

	_ = ub.Bytes()
	require.NoError(t, ctx.Reset())
	ub.Destroy()
	assert.Len(t, d.Hazards(), 3)

	d.CompleteAll()
	require.NoError(t, ctx.Reset())
	assert.Len(t, d.Hazards(), 3)
}

func TestDescriptorTablesTrackedSeparately(t *testing.T) {
	d := newManual(t)
	heap, err := d.NewDescriptorHeap(2, 4)
	require.NoError(t, err)
	tex, err := d.NewTexture(gpu.TextureDesc{Name: "rock", Width: 1, Height: 1}, make([]byte, 4))
	require.NoError(t, err)
	depth, _ := d.NewDepthTarget(8, 8)
	ctx, _ := d.NewCommandContext()

	rec, _ := ctx.Begin("table0")
	rec.BeginPass(gpu.PassDesc{Color: depth})
	rec.BindDescriptorTable(heap, 0)
	rec.Draw(3, 0)
	rec.EndPass()
	l, err := rec.Close()
	require.NoError(t, err)
	require.NoError(t, d.Queue().Submit(l))

	require.NoError(t, heap.Write(1, 0, tex))
	assert.Empty(t, d.Hazards())
	require.NoError(t, heap.Write(0, 0, tex))
	assert.Len(t, d.Hazards(), 1)
	assert.Error(t, heap.Write(2, 0, tex))
	assert.Same(t, tex, heap.(*DescriptorHeap).View(1, 0))

	_, err = d.NewDescriptorHeap(1, 1000)
	assert.True(t, errors.Is(err, core.ErrCreationFailed))
	d.CompleteAll()
}

func TestRecorderValidation(t *testing.T) {
	d := newManual(t)
	ctx, _ := d.NewCommandContext()
	depth, _ := d.NewDepthTarget(8, 8)

	rec, _ := ctx.Begin("outside")
	rec.Draw(3, 0)
	_, err := rec.Close()
	assert.Error(t, err)

	rec, _ = ctx.Begin("unclosed pass")
	rec.BeginPass(gpu.PassDesc{Color: depth})
	_, err = rec.Close()
	assert.Error(t, err)

	rec, _ = ctx.Begin("open")
	require.Error(t, d.Queue().Submit(&CommandList{label: "open"}))
	_ = rec
}

func TestIndirectArgumentsSnapshot(t *testing.T) {
	d := newManual(t)
	ctx, _ := d.NewCommandContext()
	depth, _ := d.NewDepthTarget(8, 8)
	ub, _ := d.NewUploadBuffer(1024)

	stride := uint32(unsafe.Sizeof(metadata.DrawIndexedIndirectArgs{}))
	args := unsafe.Slice((*metadata.DrawIndexedIndirectArgs)(unsafe.Pointer(&ub.Bytes()[0])), 3)
	for i := range args {
		args[i] = metadata.DrawIndexedIndirectArgs{IndexCount: 60, InstanceCount: 1, FirstInstance: uint32(i)}
	}

	rec, _ := ctx.Begin("indirect")
	rec.BeginPass(gpu.PassDesc{Color: depth})
	rec.DrawIndexedIndirect(gpu.BufferRange{Buffer: ub, Size: uint64(3 * stride)}, 3, stride)
	rec.EndPass()
	l, err := rec.Close()
	require.NoError(t, err)
	require.NoError(t, d.Queue().Submit(l))
	d.CompleteAll()

	exec := d.Executed()
	require.Len(t, exec, 1)
	assert.Equal(t, 3, exec[0].DrawCount())
	cmds := exec[0].Commands
	ind := cmds[1].Indirect
	require.Len(t, ind, 3)
	assert.Equal(t, uint32(2), ind[2].FirstInstance)
	assert.Equal(t, uint32(60), ind[0].IndexCount)
}

func TestTimelineWaitHonorsContext(t *testing.T) {
	d := newManual(t)
	tl, _ := d.NewTimeline()
	require.NoError(t, d.Queue().Signal(tl, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	err := tl.Wait(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- tl.Wait(context.Background(), 1) }()
	time.Sleep(5 * time.Millisecond)
	d.CompleteNext()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not return after completion")
	}
}

func TestAutoModeCompletes(t *testing.T) {
	opts := DefaultOptions()
	opts.Mode = Auto
	opts.Latency = 0
	d := NewDevice(opts)
	defer d.Destroy()

	tl, _ := d.NewTimeline()
	for v := uint64(1); v <= 5; v++ {
		require.NoError(t, d.Queue().Signal(tl, v))
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tl.Wait(ctx, 5))
	require.NoError(t, d.WaitIdle())
	assert.Empty(t, d.Hazards())
}

func TestSwapchainResize(t *testing.T) {
	d := newManual(t)
	sc, err := d.NewSwapchain(gpu.SwapchainDesc{Width: 1080, Height: 720, BufferCount: 5})
	require.NoError(t, err)
	s := sc.(*Swapchain)
	assert.Equal(t, 5, sc.BufferCount())
	assert.Equal(t, 1, s.Generation())

	for i := 0; i < 6; i++ {
		idx, err := sc.Acquire()
		require.NoError(t, err)
		assert.Equal(t, i%5, idx)
	}

	ctx, _ := d.NewCommandContext()
	rec, _ := ctx.Begin("present")
	rec.Transition(sc.Buffer(0), gpu.StateRenderTarget, gpu.StatePresent)
	l, _ := rec.Close()
	require.NoError(t, d.Queue().Submit(l))

	require.NoError(t, sc.Resize(1920, 1080, false))
	assert.Len(t, d.Hazards(), 1)
	d.CompleteAll()

	w, h := sc.Extent()
	assert.Equal(t, uint32(1920), w)
	assert.Equal(t, uint32(1080), h)
	assert.Equal(t, 5, sc.BufferCount())
	assert.Equal(t, 2, s.Generation())

	require.NoError(t, sc.Present(gpu.PresentVSync))
	assert.Equal(t, []gpu.PresentMode{gpu.PresentVSync}, s.Presents())

	sc.Destroy()
	_, err = sc.Acquire()
	assert.ErrorIs(t, err, core.ErrSwapchainBooting)
}

func TestDestroyWithPendingWork(t *testing.T) {
	d := NewDevice(DefaultOptions())
	tl, _ := d.NewTimeline()
	require.NoError(t, d.Queue().Signal(tl, 1))
	d.Destroy()
	assert.Len(t, d.Hazards(), 1)
	assert.True(t, errors.Is(d.Queue().Signal(tl, 2), core.ErrDeviceLost))
}

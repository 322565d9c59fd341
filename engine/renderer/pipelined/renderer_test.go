package pipelined

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
	"github.com/spaghettifunk/asteroids/engine/renderer/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTexture(name string) TextureData {
	return TextureData{Name: name, Width: 2, Height: 2, Pixels: make([]byte, 16)}
}

func testOptions(maxDraws int) Options {
	opts := DefaultOptions()
	opts.MaxDraws = maxDraws
	opts.Meshes = Geometry{
		Vertices: make([]metadata.Vertex, 12),
		Indices:  make([]metadata.IndexType, 60),
	}
	opts.SkyboxVertices = make([]metadata.SkyboxVertex, metadata.SKYBOX_VERTEX_COUNT)
	opts.Textures = []TextureData{testTexture("rock 0"), testTexture("rock 1")}
	opts.Skybox = testTexture("sky")
	opts.Font = testTexture("font")
	opts.Sprites = []TextureData{testTexture("logo")}
	return opts
}

func newTestRenderer(t *testing.T, d *sim.Device, maxDraws int) *Renderer {
	t.Helper()
	r, err := New(d, testOptions(maxDraws))
	require.NoError(t, err)
	require.NoError(t, r.ResizeSwapChain(nil, 1080, 720, true))
	t.Cleanup(func() {
		d.CompleteAll()
		assert.NoError(t, r.Close())
	})
	return r
}

func testDraws(n int) metadata.DrawList {
	l := metadata.DrawList{
		Static:  make([]metadata.DrawStatic, n),
		Dynamic: make([]metadata.DrawDynamic, n),
	}
	for i := range l.Static {
		l.Static[i] = metadata.DrawStatic{TextureIndex: uint32(i % 2), VertexStart: 0}
		l.Dynamic[i] = metadata.DrawDynamic{World: mgl32.Ident4(), IndexStart: 0, IndexCount: 60}
	}
	return l
}

func testInput(n int, settings metadata.Settings) metadata.FrameInput {
	return metadata.FrameInput{
		Camera:   metadata.Camera{ViewProjection: mgl32.Ident4()},
		Settings: settings,
		Draws:    testDraws(n),
	}
}

func labels(exec []sim.ExecutedList) []string {
	out := make([]string, len(exec))
	for i, e := range exec {
		out[i] = e.Label
	}
	return out
}

func TestPartitionCoversEveryDrawOnce(t *testing.T) {
	for _, total := range []int{0, 1, 3, 4, 5, 999, 12347, 50000} {
		for _, workers := range []int{1, 3, 4, 7} {
			t.Run(fmt.Sprintf("%d/%d", total, workers), func(t *testing.T) {
				shards := Partition(total, workers)
				require.Len(t, shards, workers)
				next, sum := 0, 0
				minLen, maxLen := total, 0
				for i, s := range shards {
					assert.Equal(t, i, s.Index)
					assert.Equal(t, next, s.Start, "contiguous, no gap or overlap")
					next = s.End
					sum += s.Len()
					if s.Len() < minLen {
						minLen = s.Len()
					}
					if s.Len() > maxLen {
						maxLen = s.Len()
					}
				}
				assert.Equal(t, total, next)
				assert.Equal(t, total, sum)
				assert.LessOrEqual(t, maxLen-minLen, 1)
				assert.LessOrEqual(t, maxLen, maxShardLen(total, workers))
			})
		}
	}
	for _, s := range Partition(50000, 4) {
		assert.Equal(t, 12500, s.Len())
	}
	assert.Nil(t, Partition(10, 0))
}

func TestSubmissionOrder(t *testing.T) {
	want := []string{"pre", "subset 0", "subset 1", "subset 2", "subset 3", "post"}
	modes := map[string]func(*metadata.Settings){
		"multithreaded":   func(s *metadata.Settings) {},
		"single threaded": func(s *metadata.Settings) { s.Multithreaded = false },
		"indirect":        func(s *metadata.Settings) { s.Indirect = true },
	}
	for name, mode := range modes {
		t.Run(name, func(t *testing.T) {
			d := newSimDevice(t)
			r := newTestRenderer(t, d, metadata.NUM_ASTEROIDS)
			settings := metadata.DefaultSettings()
			mode(&settings)
			in := testInput(metadata.NUM_ASTEROIDS, settings)

			for frame := 0; frame < 4; frame++ {
				d.ResetLog()
				require.NoError(t, r.Render(0.016, in))
				d.CompleteAll()

				exec := d.Executed()
				require.Equal(t, want, labels(exec), "frame %d", frame)
				for _, e := range exec[1:5] {
					assert.Equal(t, 12500, e.DrawCount())
				}
				assert.Equal(t, 1, exec[0].Count(sim.OpDraw), "skybox")
				assert.Equal(t, want, r.Stats().LastOrder)
			}
			assert.Empty(t, d.Hazards())
			assert.Equal(t, uint64(4), r.Stats().Frames)
			assert.Equal(t, uint64(4), r.Stats().FenceSubmitted)
		})
	}
}

func TestIndirectArguments(t *testing.T) {
	d := newSimDevice(t)
	r := newTestRenderer(t, d, 100)
	settings := metadata.DefaultSettings()
	settings.Indirect = true
	in := testInput(10, settings)
	in.Draws.Dynamic[7].IndexStart = 30
	in.Draws.Dynamic[7].IndexCount = 24

	require.NoError(t, r.Render(0, in))
	d.CompleteAll()

	exec := d.Executed()
	require.Len(t, exec, 6)
	// 10 draws over 4 workers: 3, 3, 2, 2
	subset2 := exec[3]
	assert.Equal(t, 1, subset2.Count(sim.OpBindConstants))
	assert.Equal(t, 1, subset2.Count(sim.OpDrawIndexedIndirect))
	assert.Equal(t, 0, subset2.Count(sim.OpDrawIndexed))
	for _, c := range subset2.Commands {
		if c.Op != sim.OpDrawIndexedIndirect {
			continue
		}
		require.Len(t, c.Indirect, 2)
		assert.Equal(t, uint32(0), c.Indirect[0].FirstInstance)
		assert.Equal(t, uint32(1), c.Indirect[1].FirstInstance)
		assert.Equal(t, uint32(30), c.Indirect[1].FirstIndex)
		assert.Equal(t, uint32(24), c.Indirect[1].IndexCount)
		assert.Equal(t, uint32(1), c.Indirect[1].InstanceCount)
	}
}

func TestDirectModeBindsConstantsPerDraw(t *testing.T) {
	d := newSimDevice(t)
	r := newTestRenderer(t, d, 100)
	require.NoError(t, r.Render(0, testInput(8, metadata.DefaultSettings())))
	d.CompleteAll()

	for _, e := range d.Executed()[1:5] {
		assert.Equal(t, 2, e.Count(sim.OpBindConstants))
		assert.Equal(t, 2, e.Count(sim.OpDrawIndexed))
		var offsets []int64
		for _, c := range e.Commands {
			if c.Op == sim.OpBindConstants {
				offsets = append(offsets, c.Args[0])
				assert.Zero(t, c.Args[0]%metadata.CONSTANT_ALIGNMENT)
			}
		}
		assert.NotEqual(t, offsets[0], offsets[1])
	}
}

func TestSubmitDisabledStillRetires(t *testing.T) {
	d := newSimDevice(t)
	r := newTestRenderer(t, d, 100)
	settings := metadata.DefaultSettings()
	settings.Submit = false

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Render(0, testInput(100, settings)))
		d.CompleteAll()
	}
	assert.Empty(t, d.Executed())
	s := r.Stats()
	assert.Equal(t, uint64(5), s.FenceSubmitted)
	assert.Equal(t, uint64(5), s.FenceCompleted)
	assert.Len(t, s.LastOrder, 6)
}

func TestUpdateRunsPerShard(t *testing.T) {
	d := newSimDevice(t)
	r := newTestRenderer(t, d, 100)

	var mutex sync.Mutex
	var ranges [][2]int
	in := testInput(10, metadata.DefaultSettings())
	in.Update = func(frameTime float32, eye mgl32.Vec3, start, end int) {
		assert.Equal(t, float32(0.5), frameTime)
		mutex.Lock()
		ranges = append(ranges, [2]int{start, end})
		mutex.Unlock()
	}
	require.NoError(t, r.Render(0.5, in))
	d.CompleteAll()

	sort.Slice(ranges, func(i, j int) bool { return ranges[i][0] < ranges[j][0] })
	assert.Equal(t, [][2]int{{0, 3}, {3, 6}, {6, 8}, {8, 10}}, ranges)

	ranges = nil
	in.Settings.Animate = false
	require.NoError(t, r.Render(0.5, in))
	d.CompleteAll()
	assert.Empty(t, ranges)
}

func TestOverlayPostPass(t *testing.T) {
	d := newSimDevice(t)
	r := newTestRenderer(t, d, 100)
	in := testInput(4, metadata.DefaultSettings())
	in.Overlay = []metadata.OverlayElement{
		{Visible: true, Quads: []metadata.Quad{{W: 8, H: 13}, {X: 8, W: 8, H: 13}}},
		{Visible: false, Texture: "logo", Quads: []metadata.Quad{{W: 64, H: 64}}},
		{Visible: true, Texture: "logo", Quads: []metadata.Quad{{W: 64, H: 64}}},
	}
	require.NoError(t, r.Render(0, in))
	d.CompleteAll()

	post := d.Executed()[5]
	assert.Equal(t, "post", post.Label)
	assert.Equal(t, 2, post.Count(sim.OpDraw))
	assert.Equal(t, 2, post.Count(sim.OpBindPipeline))
	last := post.Commands[len(post.Commands)-1]
	assert.Equal(t, sim.OpTransition, last.Op)
	assert.Equal(t, int64(gpu.StatePresent), last.Args[1])

	in.Overlay = []metadata.OverlayElement{{Visible: true, Texture: "missing", Quads: []metadata.Quad{{}}}}
	assert.Error(t, r.Render(0, in))
	d.CompleteAll()
	assert.Empty(t, d.Hazards())
}

func TestCapacityOverflowIsFatal(t *testing.T) {
	d := newSimDevice(t)
	r := newTestRenderer(t, d, 100)

	err := r.Render(0, testInput(101, metadata.DefaultSettings()))
	assert.True(t, errors.Is(err, core.ErrCapacityExceeded))

	in := testInput(4, metadata.DefaultSettings())
	quads := make([]metadata.Quad, metadata.MAX_SPRITE_VERTICES_PER_FRAME/6+1)
	in.Overlay = []metadata.OverlayElement{{Visible: true, Quads: quads}}
	err = r.Render(0, in)
	assert.True(t, errors.Is(err, core.ErrCapacityExceeded))
	assert.True(t, core.IsFatal(err))

	in.Overlay = nil
	require.NoError(t, r.Render(0, in))
	d.CompleteAll()
	assert.Empty(t, d.Hazards())
}

func TestResizeWaitsForFramesInFlight(t *testing.T) {
	d := newSimDevice(t)
	r := newTestRenderer(t, d, 1000)
	in := testInput(1000, metadata.DefaultSettings())

	require.NoError(t, r.Render(0, in))
	require.NoError(t, r.Render(0, in))
	require.Equal(t, uint64(0), r.Stats().FenceCompleted)

	done := make(chan error, 1)
	go func() { done <- r.ResizeSwapChain(nil, 1920, 1080, false) }()
	select {
	case <-done:
		t.Fatal("resize returned with frames in flight")
	case <-time.After(30 * time.Millisecond):
	}

	d.CompleteAll()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("resize still blocked after the frames completed")
	}

	sc := r.swap.Swapchain().(*sim.Swapchain)
	assert.Equal(t, 2, sc.Generation())
	assert.Equal(t, metadata.NUM_SWAP_CHAIN_BUFFERS, sc.BufferCount())
	w, h := sc.Extent()
	assert.Equal(t, uint32(1920), w)
	assert.Equal(t, uint32(1080), h)
	for i := 0; i < sc.BufferCount(); i++ {
		bw, bh := sc.Buffer(i).Extent()
		assert.Equal(t, uint32(1920), bw)
		assert.Equal(t, uint32(1080), bh)
	}
	dw, dh := r.swap.Depth().Extent()
	assert.Equal(t, uint32(1920), dw)
	assert.Equal(t, uint32(1080), dh)
	assert.Empty(t, d.Hazards())

	require.NoError(t, r.Render(0, in))
}

func TestFailedResizeReleasesOldSwapchain(t *testing.T) {
	d := newSimDevice(t)
	r := newTestRenderer(t, d, 10)
	in := testInput(10, metadata.DefaultSettings())
	require.NoError(t, r.Render(0, in))
	d.CompleteAll()

	old := r.swap.Swapchain().(*sim.Swapchain)
	d.RefuseSwapchains(true)
	err := r.ResizeSwapChain(nil, 128, 128, false)
	assert.True(t, errors.Is(err, core.ErrCreationFailed))
	assert.True(t, core.IsFatal(err))
	assert.True(t, old.Destroyed())
	assert.False(t, r.swap.Ready())
	assert.Empty(t, d.Hazards())

	d.RefuseSwapchains(false)
	require.NoError(t, r.ResizeSwapChain(nil, 128, 128, false))
	require.NoError(t, r.Render(0, in))
	assert.Equal(t, uint64(2), r.Stats().Frames)
}

func TestPresentPolicy(t *testing.T) {
	cases := []struct {
		vsync, tearing, supported bool
		want                      gpu.PresentMode
	}{
		{true, true, true, gpu.PresentVSync},
		{true, false, true, gpu.PresentVSync},
		{false, true, true, gpu.PresentTearing},
		{false, true, false, gpu.PresentDefault},
		{false, false, true, gpu.PresentDefault},
	}
	for _, c := range cases {
		s := metadata.Settings{VSync: c.vsync, AllowTearing: c.tearing}
		assert.Equal(t, c.want, PresentModeFor(s, c.supported), "%+v", c)
	}

	d := newSimDevice(t)
	r := newTestRenderer(t, d, 10)
	settings := metadata.DefaultSettings()
	settings.VSync = true
	settings.AllowTearing = true
	require.NoError(t, r.Render(0, testInput(10, settings)))
	d.CompleteAll()

	sc := r.swap.Swapchain().(*sim.Swapchain)
	assert.Equal(t, []gpu.PresentMode{gpu.PresentVSync}, sc.Presents())
	assert.Equal(t, gpu.PresentVSync, r.Stats().LastPresent)
}

func TestDrainThenReleaseHasNoHazards(t *testing.T) {
	opts := sim.DefaultOptions()
	opts.Mode = sim.Auto
	opts.Latency = 2 * time.Millisecond
	d := sim.NewDevice(opts)
	defer d.Destroy()

	r, err := New(d, testOptions(1000))
	require.NoError(t, err)
	require.NoError(t, r.ResizeSwapChain(nil, 1080, 720, false))

	in := testInput(1000, metadata.DefaultSettings())
	for i := 0; i < 10; i++ {
		require.NoError(t, r.WaitForReadyToRender())
		require.NoError(t, r.Render(0, in))
	}
	require.NoError(t, r.ReleaseSwapChain())
	assert.False(t, r.swap.Ready())
	assert.Equal(t, r.fence.Submitted(), r.fence.Completed())

	require.NoError(t, r.Render(0, in), "no swap chain, frame skipped")
	require.NoError(t, r.ResizeSwapChain(nil, 800, 600, false))
	require.NoError(t, r.Render(0, in))

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Empty(t, d.Hazards())
	assert.Zero(t, d.Pending())
}

func TestWaitForReadyToRenderTimesOut(t *testing.T) {
	d := newSimDevice(t)
	opts := testOptions(10)
	opts.FenceTimeout = 0
	r, err := New(d, opts)
	require.NoError(t, err)
	defer func() {
		d.CompleteAll()
		_ = r.Close()
	}()
	require.NoError(t, r.ResizeSwapChain(nil, 64, 64, false))

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Render(0, testInput(10, metadata.DefaultSettings())))
	}
	err = r.WaitForReadyToRender()
	assert.True(t, errors.Is(err, core.ErrDeviceLost))
}

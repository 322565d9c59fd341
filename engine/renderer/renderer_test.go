package renderer

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
	"github.com/spaghettifunk/asteroids/engine/renderer/pipelined"
	"github.com/spaghettifunk/asteroids/engine/renderer/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texture(name string) pipelined.TextureData {
	return pipelined.TextureData{Name: name, Width: 1, Height: 1, Pixels: make([]byte, 4)}
}

func testConfig() Config {
	opts := pipelined.DefaultOptions()
	opts.MaxDraws = 16
	opts.FenceTimeout = time.Second
	opts.Meshes = pipelined.Geometry{
		Vertices: make([]metadata.Vertex, 12),
		Indices:  make([]metadata.IndexType, 60),
	}
	opts.SkyboxVertices = make([]metadata.SkyboxVertex, metadata.SKYBOX_VERTEX_COUNT)
	opts.Textures = []pipelined.TextureData{texture("rock")}
	opts.Skybox = texture("sky")
	opts.Font = texture("font")
	return Config{Backend: BackendVulkan, Pipelined: opts}
}

// simFactory stands in a simulated device for every backend.
type simFactory struct {
	devices []*sim.Device
	fail    map[Backend]bool
}

func (f *simFactory) create(cfg Config, backend Backend) (gpu.Device, error) {
	if f.fail[backend] {
		return nil, errors.Newf("%s unavailable", backend)
	}
	opts := sim.DefaultOptions()
	opts.Mode = sim.Auto
	opts.Latency = 0
	opts.LogLimit = 8
	d := sim.NewDevice(opts)
	f.devices = append(f.devices, d)
	return d, nil
}

func frameInput(n int) metadata.FrameInput {
	draws := metadata.DrawList{
		Static:  make([]metadata.DrawStatic, n),
		Dynamic: make([]metadata.DrawDynamic, n),
	}
	for i := range draws.Dynamic {
		draws.Dynamic[i] = metadata.DrawDynamic{World: mgl32.Ident4(), IndexCount: 60}
	}
	return metadata.FrameInput{
		Camera:   metadata.Camera{ViewProjection: mgl32.Ident4()},
		Settings: metadata.DefaultSettings(),
		Draws:    draws,
	}
}

func renderFrames(t *testing.T, r *Renderer, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, r.WaitForReadyToRender())
		require.NoError(t, r.Render(1.0/60.0, frameInput(8)))
	}
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("sim")
	require.NoError(t, err)
	assert.Equal(t, BackendSim, b)
	assert.Equal(t, BackendVulkan, b.Other())
	assert.Equal(t, BackendSim, BackendVulkan.Other())

	_, err = ParseBackend("d3d12")
	assert.Error(t, err)
}

func TestRenderAndSwitchBackend(t *testing.T) {
	f := &simFactory{}
	r, err := NewWithFactory(testConfig(), f.create)
	require.NoError(t, err)
	defer func() { assert.NoError(t, r.Shutdown()) }()

	require.NoError(t, r.ResizeSwapChain(nil, 320, 200, false))
	renderFrames(t, r, 5)
	assert.Equal(t, uint64(5), r.Stats().Frames)
	assert.Equal(t, BackendVulkan, r.Backend())

	require.NoError(t, r.SwitchBackend(BackendSim))
	assert.Equal(t, BackendSim, r.Backend())
	require.Len(t, f.devices, 2)
	assert.Equal(t, uint64(0), r.Stats().Frames, "a fresh renderer owns the output")

	// the swap chain was recreated with the last requested size
	renderFrames(t, r, 3)
	assert.Equal(t, uint64(3), r.Stats().Frames)
	assert.Empty(t, f.devices[0].Hazards())
	assert.Empty(t, f.devices[1].Hazards())

	require.NoError(t, r.SwitchBackend(BackendSim), "switching to the active backend is a no-op")
	assert.Len(t, f.devices, 2)
}

func TestSwitchBackendFailureRestoresPrevious(t *testing.T) {
	f := &simFactory{fail: map[Backend]bool{BackendSim: true}}
	r, err := NewWithFactory(testConfig(), f.create)
	require.NoError(t, err)
	defer func() { assert.NoError(t, r.Shutdown()) }()
	require.NoError(t, r.ResizeSwapChain(nil, 320, 200, false))

	err = r.SwitchBackend(BackendSim)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSwitchRolledBack))
	assert.Equal(t, BackendVulkan, r.Backend())
	renderFrames(t, r, 2)
}

func TestNewFailsWithoutDevice(t *testing.T) {
	f := &simFactory{fail: map[Backend]bool{BackendVulkan: true}}
	_, err := NewWithFactory(testConfig(), f.create)
	assert.Error(t, err)
}

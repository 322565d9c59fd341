package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/asteroids/engine/assets"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
	"github.com/spaghettifunk/asteroids/engine/renderer/pipelined"
	"github.com/spaghettifunk/asteroids/engine/renderer/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// headlessWindow reports a fixed framebuffer and closes after pumpLimit
// message pumps.
type headlessWindow struct {
	width      uint32
	height     uint32
	pumpLimit  int
	pumps      int
	sleeps     []float64
	fullscreen int
	shutdown   bool
}

func (w *headlessWindow) Startup(string, uint32, uint32, uint32, uint32, bool) error {
	return nil
}

func (w *headlessWindow) Shutdown() error {
	w.shutdown = true
	return nil
}

func (w *headlessWindow) RequiredExtensions() []string      { return nil }
func (w *headlessWindow) Surface() interface{}              { return "headless" }
func (w *headlessWindow) FramebufferSize() (uint32, uint32) { return w.width, w.height }
func (w *headlessWindow) SetTitle(string)                   {}
func (w *headlessWindow) ToggleFullscreen()                 { w.fullscreen++ }
func (w *headlessWindow) Sleep(ms float64)                  { w.sleeps = append(w.sleeps, ms) }

func (w *headlessWindow) PumpMessages() bool {
	w.pumps++
	return w.pumps <= w.pumpLimit
}

type simDevices struct {
	devices []*sim.Device
}

func (f *simDevices) create(cfg renderer.Config, backend renderer.Backend) (gpu.Device, error) {
	opts := sim.DefaultOptions()
	opts.Mode = sim.Auto
	opts.Latency = 0
	opts.LogLimit = 8
	d := sim.NewDevice(opts)
	f.devices = append(f.devices, d)
	return d, nil
}

type gameCalls struct {
	updates int
	renders int
	resizes [][2]uint32
	closed  bool
}

func texture(name string) pipelined.TextureData {
	return pipelined.TextureData{Name: name, Width: 1, Height: 1, Pixels: make([]byte, 4)}
}

func testGame() (*Game, *gameCalls) {
	calls := &gameCalls{}
	draws := metadata.DrawList{
		Static:  make([]metadata.DrawStatic, 8),
		Dynamic: make([]metadata.DrawDynamic, 8),
	}
	for i := range draws.Dynamic {
		draws.Dynamic[i] = metadata.DrawDynamic{World: mgl32.Ident4(), IndexCount: 60}
	}
	g := &Game{
		FnBoot: func(config *ApplicationConfig, am *assets.AssetManager, content *pipelined.Options) error {
			content.Meshes = pipelined.Geometry{
				Vertices: make([]metadata.Vertex, 12),
				Indices:  make([]metadata.IndexType, 60),
			}
			content.SkyboxVertices = make([]metadata.SkyboxVertex, metadata.SKYBOX_VERTEX_COUNT)
			content.Textures = []pipelined.TextureData{texture("rock")}
			content.Skybox = texture("sky")
			content.Font = texture("font")
			return nil
		},
		FnInitialize: func() error { return nil },
		FnUpdate: func(float64) error {
			calls.updates++
			return nil
		},
		FnRender: func(frameTime float32, in *metadata.FrameInput) error {
			calls.renders++
			in.Camera = metadata.Camera{ViewProjection: mgl32.Ident4()}
			in.Draws = draws
			return nil
		},
		FnOnResize: func(w, h uint32) error {
			calls.resizes = append(calls.resizes, [2]uint32{w, h})
			return nil
		},
		FnShutdown: func() error {
			calls.closed = true
			return nil
		},
	}
	return g, calls
}

func testApplicationConfig(t *testing.T) *ApplicationConfig {
	cfg := DefaultApplicationConfig()
	cfg.Render.Backend = string(renderer.BackendSim)
	cfg.Render.FenceTimeout = Duration{time.Second}
	cfg.Assets.Root = t.TempDir()
	cfg.Simulation.Asteroids = 16
	cfg.Log.Level = "error"
	return cfg
}

type harness struct {
	engine  *Engine
	window  *headlessWindow
	devices *simDevices
	calls   *gameCalls
}

func newHarness(t *testing.T, cfg *ApplicationConfig, pumps int) *harness {
	t.Helper()
	h := &harness{
		window:  &headlessWindow{width: 320, height: 200, pumpLimit: pumps},
		devices: &simDevices{},
	}
	g, calls := testGame()
	h.calls = calls
	e, err := New(cfg, g, WithWindow(h.window), WithDeviceFactory(h.devices.create))
	require.NoError(t, err)
	h.engine = e
	require.NoError(t, e.Initialize())
	return h
}

func keyPress(k core.KeyCode) core.EventContext {
	return core.EventContext{Type: core.EVENT_CODE_KEY_PRESSED, Data: &core.KeyEvent{KeyCode: k}}
}

func TestRunUntilWindowCloses(t *testing.T) {
	cfg := testApplicationConfig(t)
	cfg.Benchmark.PerfOutput = filepath.Join(t.TempDir(), "perf.csv")
	h := newHarness(t, cfg, 5)

	assert.Equal(t, EngineStageInitialized, h.engine.Stage())
	assert.Equal(t, [][2]uint32{{320, 200}}, h.calls.resizes)

	require.NoError(t, h.engine.Run())
	assert.Equal(t, uint64(5), h.engine.Frames())
	assert.Equal(t, uint64(5), h.engine.Stats().Frames)
	assert.Equal(t, 5, h.calls.updates)
	assert.Equal(t, 5, h.calls.renders)

	require.NoError(t, h.engine.Shutdown())
	require.NoError(t, h.engine.Shutdown())
	assert.True(t, h.calls.closed)
	assert.True(t, h.window.shutdown)
	for _, d := range h.devices.devices {
		assert.Empty(t, d.Hazards())
	}

	data, err := os.ReadFile(cfg.Benchmark.PerfOutput)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 7)
	assert.True(t, strings.HasPrefix(lines[0], "# run "))
	assert.Equal(t, "Frame time (ms),", lines[1])
	for _, l := range lines[2:] {
		assert.True(t, strings.HasSuffix(l, ","), l)
	}
}

func TestRenderScale(t *testing.T) {
	cfg := testApplicationConfig(t)
	cfg.Render.RenderScale = 0.5
	h := newHarness(t, cfg, 0)
	defer func() { assert.NoError(t, h.engine.Shutdown()) }()

	assert.Equal(t, [][2]uint32{{160, 100}}, h.calls.resizes)
	w, ht := h.engine.RenderSize()
	assert.Equal(t, uint32(160), w)
	assert.Equal(t, uint32(100), ht)
}

func TestCloseAfter(t *testing.T) {
	cfg := testApplicationConfig(t)
	cfg.Benchmark.CloseAfter = Duration{time.Nanosecond}
	h := newHarness(t, cfg, 100)
	defer func() { assert.NoError(t, h.engine.Shutdown()) }()

	require.NoError(t, h.engine.Run())
	assert.Equal(t, uint64(1), h.engine.Frames())
}

func TestLockedFrameRateSleeps(t *testing.T) {
	cfg := testApplicationConfig(t)
	cfg.Benchmark.LockedFPS = 10
	h := newHarness(t, cfg, 2)
	defer func() { assert.NoError(t, h.engine.Shutdown()) }()

	require.NoError(t, h.engine.Run())
	require.Len(t, h.window.sleeps, 2)
	for _, ms := range h.window.sleeps {
		assert.Greater(t, ms, 1.0)
		assert.LessOrEqual(t, ms, 100.0)
	}
}

func TestKeyToggles(t *testing.T) {
	h := newHarness(t, testApplicationConfig(t), 0)
	defer func() { assert.NoError(t, h.engine.Shutdown()) }()
	e := h.engine

	before := e.Settings()
	for _, k := range []core.KeyCode{core.KEY_M, core.KEY_I, core.KEY_S, core.KEY_A} {
		assert.True(t, e.onKey(keyPress(k)))
	}
	after := e.Settings()
	assert.NotEqual(t, before.Multithreaded, after.Multithreaded)
	assert.NotEqual(t, before.Indirect, after.Indirect)
	assert.NotEqual(t, before.Submit, after.Submit)
	assert.NotEqual(t, before.Animate, after.Animate)

	e.onKey(keyPress(core.KEY_SPACE))
	assert.Equal(t, before.Animate, e.Settings().Animate)

	e.onKey(keyPress(core.KEY_F))
	assert.Equal(t, 1, h.window.fullscreen)

	assert.False(t, e.onKey(keyPress(core.KeyCode('Q'))))
}

func TestVSyncWinsOverTearing(t *testing.T) {
	cfg := testApplicationConfig(t)
	cfg.Render.VSync = false
	cfg.Render.AllowTearing = false
	h := newHarness(t, cfg, 0)
	defer func() { assert.NoError(t, h.engine.Shutdown()) }()
	e := h.engine

	e.onKey(keyPress(core.KEY_T))
	assert.True(t, e.Settings().AllowTearing)
	// tearing changes the swap chain
	assert.Len(t, h.calls.resizes, 2)

	e.onKey(keyPress(core.KEY_V))
	assert.True(t, e.Settings().VSync)
	assert.False(t, e.Settings().AllowTearing)
}

func TestFrameLockToggle(t *testing.T) {
	h := newHarness(t, testApplicationConfig(t), 0)
	defer func() { assert.NoError(t, h.engine.Shutdown()) }()
	e := h.engine

	locked, rate := e.FrameLock()
	assert.False(t, locked)
	assert.Equal(t, defaultLockedRate, rate)

	e.ToggleFrameLock()
	locked, rate = e.FrameLock()
	assert.True(t, locked)
	assert.Equal(t, defaultLockedRate, rate)
	assert.Equal(t, defaultLockedRate, e.config.Benchmark.LockedFPS)

	e.ToggleFrameLock()
	locked, _ = e.FrameLock()
	assert.False(t, locked)
}

func TestBackendSwitchBetweenFrames(t *testing.T) {
	h := newHarness(t, testApplicationConfig(t), 3)
	defer func() { assert.NoError(t, h.engine.Shutdown()) }()
	e := h.engine
	require.Equal(t, renderer.BackendSim, e.Backend())

	e.onKey(keyPress(core.KEY_B))
	require.NoError(t, e.Run())

	assert.Equal(t, renderer.BackendVulkan, e.Backend())
	assert.Equal(t, string(renderer.BackendVulkan), e.config.Render.Backend)
	require.Len(t, h.devices.devices, 2)
	assert.Equal(t, uint64(3), e.Stats().Frames)
	assert.Empty(t, h.devices.devices[0].Hazards())
}

func TestMinimizedWindowSuspends(t *testing.T) {
	h := newHarness(t, testApplicationConfig(t), 3)
	defer func() { assert.NoError(t, h.engine.Shutdown()) }()
	e := h.engine

	e.onResized(core.EventContext{Type: core.EVENT_CODE_RESIZED, Data: &core.SystemEvent{}})
	require.NoError(t, e.Run())
	assert.Zero(t, e.Frames())
	assert.Len(t, h.window.sleeps, 3)

	e.onResized(core.EventContext{
		Type: core.EVENT_CODE_RESIZED,
		Data: &core.SystemEvent{WindowWidth: 640, WindowHeight: 480},
	})
	assert.False(t, e.isSuspended)
	assert.Equal(t, [2]uint32{640, 480}, h.calls.resizes[len(h.calls.resizes)-1])
}

func TestSettingsReloadKeepsLocalToggles(t *testing.T) {
	h := newHarness(t, testApplicationConfig(t), 0)
	defer func() { assert.NoError(t, h.engine.Shutdown()) }()
	e := h.engine

	e.onKey(keyPress(core.KEY_I))
	indirect := e.Settings().Indirect

	next := *e.fileConfig
	next.Render.VSync = !next.Render.VSync
	next.Benchmark.LockedFPS = 30
	next.Simulation.Asteroids = 99
	assert.True(t, e.onSettingsChanged(core.EventContext{Type: core.EVENT_CODE_SETTINGS_CHANGED, Data: &next}))

	assert.Equal(t, next.Render.VSync, e.config.Render.VSync)
	assert.Equal(t, indirect, e.Settings().Indirect, "the file did not touch indirect")
	locked, rate := e.FrameLock()
	assert.True(t, locked)
	assert.Equal(t, uint32(30), rate)
	assert.Equal(t, 16, e.config.Simulation.Asteroids, "needs a restart")
	assert.Same(t, &next, e.fileConfig)
}

func TestLostDeviceEndsRun(t *testing.T) {
	cfg := testApplicationConfig(t)
	cfg.Render.FenceTimeout = Duration{20 * time.Millisecond}
	h := newHarness(t, cfg, 100)
	defer func() { _ = h.engine.Shutdown() }()

	h.devices.devices[0].LoseDevice()
	err := h.engine.Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDeviceLost))
	assert.True(t, core.IsFatal(err))
	assert.Equal(t, uint64(cfg.Render.FramesInFlight), h.engine.Frames())
}

func TestFailedResizeEndsRun(t *testing.T) {
	h := newHarness(t, testApplicationConfig(t), 100)
	defer func() { _ = h.engine.Shutdown() }()

	h.devices.devices[0].RefuseSwapchains(true)
	core.EventFire(core.EventContext{
		Type: core.EVENT_CODE_RESIZED,
		Data: &core.SystemEvent{WindowWidth: 640, WindowHeight: 480},
	})
	err := h.engine.Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCreationFailed))
	assert.True(t, core.IsFatal(err))
	assert.Zero(t, h.engine.Frames())
	assert.Zero(t, h.calls.renders)
}

func TestFailedTearingToggleEndsRun(t *testing.T) {
	h := newHarness(t, testApplicationConfig(t), 100)
	defer func() { _ = h.engine.Shutdown() }()

	h.devices.devices[0].RefuseSwapchains(true)
	core.EventFire(keyPress(core.KEY_T))
	err := h.engine.Run()
	assert.True(t, errors.Is(err, core.ErrCreationFailed))
}

func TestSkippedFramesAreNotRecorded(t *testing.T) {
	cfg := testApplicationConfig(t)
	cfg.Benchmark.PerfOutput = filepath.Join(t.TempDir(), "perf.csv")
	h := newHarness(t, cfg, 3)

	require.NoError(t, h.engine.renderer.ReleaseSwapChain())
	require.NoError(t, h.engine.Run())
	assert.Equal(t, 3, h.calls.renders)
	assert.Zero(t, h.engine.Frames())
	require.NoError(t, h.engine.Shutdown())

	data, err := os.ReadFile(cfg.Benchmark.PerfOutput)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2, "header only")
}

func TestRenderProfiledOncePerFrame(t *testing.T) {
	devices := &simDevices{}
	g, calls := testGame()
	e, err := New(testApplicationConfig(t), g,
		WithWindow(&headlessWindow{width: 320, height: 200, pumpLimit: 4}),
		WithDeviceFactory(devices.create))
	require.NoError(t, err)
	e.profiler = core.NewProfiler(time.Hour)
	require.NoError(t, e.Initialize())
	defer func() { assert.NoError(t, e.Shutdown()) }()

	require.NoError(t, e.Run())
	assert.Equal(t, 4, calls.renders)
	assert.Equal(t, uint64(4), e.profiler.Count(core.MarkerFrame))
	assert.Equal(t, uint64(4), e.profiler.Count(core.MarkerRender))
}

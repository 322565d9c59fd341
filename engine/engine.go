package engine

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spaghettifunk/asteroids/engine/assets"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/platform"
	"github.com/spaghettifunk/asteroids/engine/renderer"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
	"github.com/spaghettifunk/asteroids/engine/renderer/pipelined"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// defaultLockedRate is used when the frame lock is toggled on without a rate
// configured.
const defaultLockedRate uint32 = 15

// Window is what the engine needs from the platform layer.
type Window interface {
	Startup(applicationName string, x, y, width, height uint32, fullscreen bool) error
	Shutdown() error
	// PumpMessages processes OS events and returns false once the window was
	// asked to close.
	PumpMessages() bool
	RequiredExtensions() []string
	Surface() interface{}
	FramebufferSize() (uint32, uint32)
	SetTitle(title string)
	ToggleFullscreen()
	Sleep(ms float64)
}

type Option func(*Engine)

// WithWindow replaces the GLFW window.
func WithWindow(w Window) Option {
	return func(e *Engine) { e.platform = w }
}

// WithDeviceFactory replaces the way backend devices are created.
func WithDeviceFactory(f renderer.DeviceFactory) Option {
	return func(e *Engine) { e.factory = f }
}

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *ApplicationConfig
	// last settings file contents, hot reloads are diffed against it
	fileConfig   *ApplicationConfig
	runID        string
	isRunning    bool
	isSuspended  bool
	platform     Window
	assetManager *assets.AssetManager
	renderer     *renderer.Renderer
	factory      renderer.DeviceFactory
	profiler     *core.Profiler
	width        uint32
	height       uint32
	clock        *core.Clock
	lastTime     time.Duration

	lockedRate    uint32
	pendingSwitch bool
	frames        uint64
	// first fatal error raised inside an event handler
	fatal error

	perfFile *os.File
	perf     *bufio.Writer
}

func New(cfg *ApplicationConfig, g *Game, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		fileConfig:   cfg.FileConfig(),
		runID:        uuid.NewString(),
		clock:        core.NewClock(),
		assetManager: am,
		factory:      renderer.NewDevice,
		profiler:     core.NewProfiler(time.Second),
		isRunning:    true,
		width:        cfg.Window.Width,
		height:       cfg.Window.Height,
		lockedRate:   defaultLockedRate,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.platform == nil {
		e.platform = platform.New()
	}
	if cfg.Benchmark.LockedFPS > 0 {
		e.lockedRate = cfg.Benchmark.LockedFPS
	}
	g.Controls = e
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageBooting
	core.SetLogRunID(e.runID)

	// initialize input
	if err := core.InputInitialize(); err != nil {
		return err
	}

	// initialize events
	if !core.EventSystemInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}
	if err := core.MetricsInitialize(); err != nil {
		return err
	}

	// register some events
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, e.onKey)
	core.EventRegister(core.EVENT_CODE_RESIZED, e.onResized)
	core.EventRegister(core.EVENT_CODE_SETTINGS_CHANGED, e.onSettingsChanged)

	win := e.config.Window
	if err := e.platform.Startup(win.Title, win.X, win.Y, win.Width, win.Height, win.Fullscreen); err != nil {
		return err
	}

	if err := e.assetManager.Initialize(e.config.Assets.Root); err != nil {
		return err
	}
	if e.config.Path != "" {
		if err := e.assetManager.Watch(e.config.Path, 200*time.Millisecond, e.reloadSettings); err != nil {
			core.LogWarn("settings hot reload disabled: %v", err)
		}
	}

	content := pipelined.DefaultOptions()
	content.Subsets = e.config.Render.Subsets
	content.FramesInFlight = e.config.Render.FramesInFlight
	content.SwapchainBuffers = e.config.Render.SwapchainBuffers
	content.FenceTimeout = e.config.Render.FenceTimeout.Duration
	content.MaxDraws = e.config.Simulation.Asteroids
	content.Profiler = e.profiler
	if err := e.gameInstance.FnBoot(e.config, e.assetManager, &content); err != nil {
		return errors.Wrap(err, "booting the game")
	}
	e.currentStage = EngineStageBootComplete

	e.currentStage = EngineStageInitializing
	backend, err := renderer.ParseBackend(e.config.Render.Backend)
	if err != nil {
		return err
	}
	e.renderer, err = renderer.NewWithFactory(renderer.Config{
		Backend:         backend,
		ApplicationName: win.Title,
		Extensions:      e.platform.RequiredExtensions(),
		Validation:      e.config.Render.Validation,
		Pipelined:       content,
	}, e.factory)
	if err != nil {
		return err
	}
	core.LogInfo("rendering with %s on %s", backend, e.renderer.DeviceName())

	if err := e.openPerfOutput(); err != nil {
		return err
	}
	if err := e.gameInstance.FnInitialize(); err != nil {
		return errors.Wrap(err, "initializing the game")
	}

	e.width, e.height = e.platform.FramebufferSize()
	if err := e.resize(); err != nil {
		return err
	}

	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) openPerfOutput() error {
	if e.config.Benchmark.PerfOutput == "" {
		return nil
	}
	f, err := os.Create(e.config.Benchmark.PerfOutput)
	if err != nil {
		return errors.Wrapf(err, "creating %s", e.config.Benchmark.PerfOutput)
	}
	e.perfFile = f
	e.perf = bufio.NewWriter(f)
	fmt.Fprintf(e.perf, "# run %s\n", e.runID)
	fmt.Fprintf(e.perf, "Frame time (ms),\n")
	return nil
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.lastTime = 0

	for e.isRunning {
		if !e.platform.PumpMessages() {
			e.isRunning = false
			break
		}
		core.EventDispatch()
		if e.fatal != nil {
			return e.fatal
		}
		if !e.isRunning {
			break
		}

		if e.pendingSwitch {
			e.pendingSwitch = false
			if err := e.switchBackend(); err != nil {
				return err
			}
		}

		if e.isSuspended {
			e.platform.Sleep(10)
			continue
		}

		if err := e.frame(); err != nil {
			return err
		}

		core.InputUpdate()
		e.profiler.Tick()
	}
	return nil
}

func (e *Engine) frame() error {
	frameSpan := e.profiler.Begin(core.MarkerFrame)
	defer frameSpan.End()

	// the frame time starts once the oldest frame in flight has retired
	if err := e.renderer.WaitForReadyToRender(); err != nil {
		return err
	}
	e.clock.Update()
	now := e.clock.Elapsed()
	delta := now - e.lastTime
	e.lastTime = now
	frameTime := delta.Seconds()

	core.MetricsUpdate(frameTime)

	if err := e.gameInstance.FnUpdate(frameTime); err != nil {
		return errors.Wrap(err, "updating the game")
	}

	in := metadata.FrameInput{Settings: e.config.Settings()}
	if err := e.gameInstance.FnRender(float32(frameTime), &in); err != nil {
		return errors.Wrap(err, "preparing the frame")
	}
	submitted := e.renderer.Frames()
	if err := e.renderer.Render(float32(frameTime), in); err != nil {
		if core.IsFatal(err) {
			return err
		}
		core.LogWarn("frame %d dropped: %v", e.frames, err)
	}
	// frames skipped without a swap chain are not part of the benchmark
	if e.renderer.Frames() != submitted {
		e.frames++
		if e.perf != nil {
			fmt.Fprintf(e.perf, "%f,\n", frameTime*1000)
		}
		if e.frames%16 == 0 {
			e.platform.SetTitle(fmt.Sprintf("%s %s - %4.1f ms",
				e.config.Window.Title, e.renderer.Backend(), core.MetricsFrameTime()))
		}
	}

	if rate := e.config.Benchmark.LockedFPS; rate > 0 {
		e.clock.Update()
		spent := (e.clock.Elapsed() - now).Seconds() * 1000
		deltaMs := 1000/float64(rate) - spent
		if deltaMs > 1 {
			wait := e.profiler.Begin(core.MarkerFrameLockWait)
			e.platform.Sleep(deltaMs)
			wait.End()
		}
	}

	if closeAfter := e.config.Benchmark.CloseAfter.Duration; closeAfter > 0 && now >= closeAfter {
		core.LogInfo("closing after %s and %d frames", closeAfter, e.frames)
		e.isRunning = false
	}
	return nil
}

// resize recreates the swap chain for the current framebuffer. A zero sized
// framebuffer suspends rendering until the window comes back.
func (e *Engine) resize() error {
	if e.width == 0 || e.height == 0 {
		if !e.isSuspended {
			core.LogInfo("window minimized, suspending")
		}
		e.isSuspended = true
		return nil
	}
	if e.isSuspended {
		core.LogInfo("window restored, resuming")
		e.isSuspended = false
	}
	w, h := e.config.RenderSize(e.width, e.height)
	if err := e.renderer.ResizeSwapChain(e.platform.Surface(), w, h, e.config.Render.AllowTearing); err != nil {
		return err
	}
	return e.gameInstance.FnOnResize(w, h)
}

func (e *Engine) switchBackend() error {
	from := e.renderer.Backend()
	if err := e.renderer.SwitchBackend(from.Other()); err != nil {
		if errors.Is(err, renderer.ErrSwitchRolledBack) {
			core.LogWarn("staying on %s: %v", from, err)
			return nil
		}
		return err
	}
	e.config.Render.Backend = string(e.renderer.Backend())
	core.LogInfo("switched from %s to %s (%s)", from, e.renderer.Backend(), e.renderer.DeviceName())
	return nil
}

// reloadSettings runs on the watcher goroutine. The decoded file is handed
// to the frame loop through the event queue.
func (e *Engine) reloadSettings(path string) {
	next, err := LoadApplicationConfig(path)
	if err == nil {
		err = next.Validate()
	}
	if err != nil {
		core.LogWarn("ignoring %s: %v", path, err)
		return
	}
	core.EventFire(core.EventContext{Type: core.EVENT_CODE_SETTINGS_CHANGED, Data: next})
}

func (e *Engine) onSettingsChanged(context core.EventContext) bool {
	next, ok := context.Data.(*ApplicationConfig)
	if !ok {
		return false
	}
	change := e.fileConfig.Diff(next)
	if len(change.RestartRequired) > 0 {
		core.LogWarn("settings changed that need a restart: %s", strings.Join(change.RestartRequired, ", "))
	}

	tearing := e.config.Render.AllowTearing
	applied := e.config.ApplyRuntime(e.fileConfig, next)
	e.fileConfig = next
	if len(applied) == 0 {
		return true
	}
	core.LogInfo("settings applied: %s", strings.Join(applied, ", "))

	if err := core.SetLogLevel(e.config.Log.Level); err != nil {
		core.LogWarn("%v", err)
	}
	if e.config.Benchmark.LockedFPS > 0 {
		e.lockedRate = e.config.Benchmark.LockedFPS
	}
	if tearing != e.config.Render.AllowTearing {
		e.fail(e.resize(), "resize after settings change")
	}
	return true
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning = false

	var errs error
	if e.renderer != nil {
		// waits for every frame in flight
		errs = errors.CombineErrors(errs, e.renderer.Shutdown())
	}
	if e.gameInstance.FnShutdown != nil {
		errs = errors.CombineErrors(errs, e.gameInstance.FnShutdown())
	}
	if e.perf != nil {
		errs = errors.CombineErrors(errs, e.perf.Flush())
		errs = errors.CombineErrors(errs, e.perfFile.Close())
		e.perf = nil
	}
	errs = errors.CombineErrors(errs, e.assetManager.Shutdown())
	errs = errors.CombineErrors(errs, core.EventSystemShutdown())
	errs = errors.CombineErrors(errs, e.platform.Shutdown())
	core.LogInfo("shut down after %d frames", e.frames)
	return errs
}

// Quit asks the frame loop to stop. Safe to call from any goroutine.
func (e *Engine) Quit() {
	core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
}

func (e *Engine) Stage() Stage { return e.currentStage }

func (e *Engine) Frames() uint64 { return e.frames }

func (e *Engine) Stats() pipelined.Stats { return e.renderer.Stats() }

func (e *Engine) Settings() metadata.Settings {
	s, _ := e.config.Settings().Resolve()
	return s
}

func (e *Engine) Backend() renderer.Backend { return e.renderer.Backend() }

func (e *Engine) FrameLock() (bool, uint32) {
	if e.config.Benchmark.LockedFPS > 0 {
		return true, e.config.Benchmark.LockedFPS
	}
	return false, e.lockedRate
}

func (e *Engine) ToggleFrameLock() {
	if e.config.Benchmark.LockedFPS > 0 {
		e.lockedRate = e.config.Benchmark.LockedFPS
		e.config.Benchmark.LockedFPS = 0
	} else {
		e.config.Benchmark.LockedFPS = e.lockedRate
	}
	locked, rate := e.FrameLock()
	core.LogInfo("frame lock %s (%d fps)", onOff(locked), rate)
}

// SwitchBackend hands rendering to the other backend before the next frame.
func (e *Engine) SwitchBackend() {
	e.pendingSwitch = true
}

func (e *Engine) RenderSize() (uint32, uint32) {
	return e.config.RenderSize(e.width, e.height)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (e *Engine) onEvent(context core.EventContext) bool {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down")
		e.isRunning = false
		return true
	}
	return false
}

func (e *Engine) onKey(context core.EventContext) bool {
	ke, ok := context.Data.(*core.KeyEvent)
	if !ok {
		return false
	}
	toggle := func(name string, flag *bool) {
		*flag = !*flag
		core.LogInfo("%s %s", name, onOff(*flag))
	}

	render := &e.config.Render
	switch ke.KeyCode {
	case core.KEY_ESCAPE:
		core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
	case core.KEY_V:
		toggle("vsync", &render.VSync)
	case core.KEY_T:
		toggle("tearing", &render.AllowTearing)
		e.fail(e.resize(), "resize after tearing toggle")
	case core.KEY_M:
		toggle("multithreaded recording", &render.Multithreaded)
	case core.KEY_I:
		toggle("indirect draws", &render.Indirect)
	case core.KEY_S:
		toggle("submit", &render.Submit)
	case core.KEY_A, core.KEY_SPACE:
		toggle("animation", &render.Animate)
	case core.KEY_B:
		e.SwitchBackend()
	case core.KEY_F:
		e.platform.ToggleFullscreen()
	default:
		return false
	}
	return true
}

func (e *Engine) onResized(context core.EventContext) bool {
	se, ok := context.Data.(*core.SystemEvent)
	if !ok {
		return false
	}
	if se.WindowWidth == e.width && se.WindowHeight == e.height {
		return false
	}
	e.width, e.height = se.WindowWidth, se.WindowHeight
	core.LogDebug("window resized to %dx%d", e.width, e.height)
	e.fail(e.resize(), "resize")
	return false
}

// fail keeps the first fatal error of an event handler for Run to return.
// Other errors are only logged.
func (e *Engine) fail(err error, what string) {
	if err == nil {
		return
	}
	if !core.IsFatal(err) {
		core.LogError("%s: %v", what, err)
		return
	}
	if e.fatal == nil {
		e.fatal = errors.Wrap(err, what)
	}
}

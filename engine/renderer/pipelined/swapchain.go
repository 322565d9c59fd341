package pipelined

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
)

// PresentModeFor picks the single present policy of a frame. Vertical sync
// wins over tearing, and tearing needs a swap chain created with support
// for it.
func PresentModeFor(settings metadata.Settings, tearingSupported bool) gpu.PresentMode {
	settings, _ = settings.Resolve()
	switch {
	case settings.VSync:
		return gpu.PresentVSync
	case settings.AllowTearing && tearingSupported:
		return gpu.PresentTearing
	default:
		return gpu.PresentDefault
	}
}

// SwapChainManager owns the presentable buffers and the depth target sized
// with them. Every operation that releases them drains the fence first.
type SwapChainManager struct {
	device       gpu.Device
	fence        *Fence
	profiler     *core.Profiler
	bufferCount  int
	swapchain    gpu.Swapchain
	depth        gpu.DepthTarget
	surface      gpu.Surface
	width        uint32
	height       uint32
	allowTearing bool
}

func NewSwapChainManager(device gpu.Device, fence *Fence, bufferCount int, profiler *core.Profiler) *SwapChainManager {
	return &SwapChainManager{device: device, fence: fence, bufferCount: bufferCount, profiler: profiler}
}

func (m *SwapChainManager) Ready() bool {
	return m.swapchain != nil && m.depth != nil
}

func (m *SwapChainManager) Extent() (uint32, uint32) { return m.width, m.height }
func (m *SwapChainManager) Swapchain() gpu.Swapchain  { return m.swapchain }
func (m *SwapChainManager) Depth() gpu.DepthTarget    { return m.depth }

// Resize drains all in-flight frames, then recreates every buffer and the
// depth target at the new size. A zero extent (minimized window) keeps the
// current buffers.
func (m *SwapChainManager) Resize(surface gpu.Surface, width, height uint32, allowTearing bool) error {
	if width == 0 || height == 0 {
		core.LogDebug("ignoring swap chain resize to %dx%d", width, height)
		return nil
	}
	if err := m.fence.DrainAll(); err != nil {
		return core.Wrapf(err, "draining before swap chain resize")
	}

	oldW, oldH := m.width, m.height
	if m.depth != nil {
		m.depth.Destroy()
		m.depth = nil
	}

	var err error
	if m.swapchain != nil && m.surface == surface {
		if err = m.swapchain.Resize(width, height, allowTearing); err != nil {
			// the old buffers are unusable once a resize fails
			m.swapchain.Destroy()
		}
	} else {
		if m.swapchain != nil {
			m.swapchain.Destroy()
		}
		m.swapchain, err = m.device.NewSwapchain(gpu.SwapchainDesc{
			Surface:      surface,
			Width:        width,
			Height:       height,
			BufferCount:  m.bufferCount,
			AllowTearing: allowTearing,
		})
	}
	if err != nil {
		m.swapchain = nil
		return core.CreationFailed(err, "swap chain %dx%d", width, height)
	}
	if m.depth, err = m.device.NewDepthTarget(width, height); err != nil {
		return core.CreationFailed(err, "depth target %dx%d", width, height)
	}

	m.surface, m.width, m.height, m.allowTearing = surface, width, height, allowTearing
	core.LogInfo("swap chain %dx%d -> %dx%d (%d buffers, tearing %t)",
		oldW, oldH, width, height, m.swapchain.BufferCount(), allowTearing)
	return nil
}

func (m *SwapChainManager) recreate() error {
	core.LogDebug("recreating out of date swap chain")
	return m.Resize(m.surface, m.width, m.height, m.allowTearing)
}

// Acquire returns the buffer of the next frame. An out of date swap chain is
// recreated and ErrSwapchainBooting returned so the caller skips the frame.
func (m *SwapChainManager) Acquire() (int, gpu.RenderTarget, error) {
	if !m.Ready() {
		return 0, nil, core.ErrSwapchainBooting
	}
	i, err := m.swapchain.Acquire()
	if errors.Is(err, core.ErrSwapchainBooting) {
		if rerr := m.recreate(); rerr != nil {
			return 0, nil, rerr
		}
		return 0, nil, err
	}
	if err != nil {
		return 0, nil, core.DeviceLost(err, "acquiring swap chain buffer")
	}
	return i, m.swapchain.Buffer(i), nil
}

// Present shows the last acquired buffer with the policy selected by
// settings and returns that policy.
func (m *SwapChainManager) Present(settings metadata.Settings) (gpu.PresentMode, error) {
	span := m.profiler.Begin(core.MarkerPresent)
	defer span.End()

	mode := PresentModeFor(settings, m.allowTearing)
	err := m.swapchain.Present(mode)
	if errors.Is(err, core.ErrSwapchainBooting) {
		return mode, m.recreate()
	}
	if err != nil {
		return mode, core.DeviceLost(err, "presenting with %s", mode)
	}
	return mode, nil
}

// ReleaseAll drains the fence and releases the buffers and depth target.
func (m *SwapChainManager) ReleaseAll() error {
	if err := m.fence.DrainAll(); err != nil {
		return core.Wrapf(err, "draining before swap chain release")
	}
	if m.depth != nil {
		m.depth.Destroy()
		m.depth = nil
	}
	if m.swapchain != nil {
		m.swapchain.Destroy()
		m.swapchain = nil
		core.LogInfo("swap chain released")
	}
	m.surface = nil
	m.width, m.height = 0, 0
	return nil
}

package sim

import (
	"fmt"

	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
)

type RenderTarget struct {
	resource
	width, height uint32
}

func (t *RenderTarget) Extent() (uint32, uint32) { return t.width, t.height }

type Swapchain struct {
	dev        *Device
	buffers    []*RenderTarget
	width      uint32
	height     uint32
	count      int
	tearing    bool
	cursor     int
	generation int
	presents   []gpu.PresentMode
	destroyed  bool
}

func (d *Device) NewSwapchain(desc gpu.SwapchainDesc) (gpu.Swapchain, error) {
	if desc.BufferCount < 2 {
		return nil, core.CreationFailed(nil, "swap chain needs at least 2 buffers, got %d", desc.BufferCount)
	}
	s := &Swapchain{dev: d, count: desc.BufferCount}
	if err := s.Resize(desc.Width, desc.Height, desc.AllowTearing); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Swapchain) BufferCount() int { return len(s.buffers) }

func (s *Swapchain) Extent() (uint32, uint32) { return s.width, s.height }

func (s *Swapchain) Acquire() (int, error) {
	if s.destroyed || len(s.buffers) == 0 {
		return 0, core.ErrSwapchainBooting
	}
	i := s.cursor
	s.cursor = (s.cursor + 1) % len(s.buffers)
	return i, nil
}

func (s *Swapchain) Buffer(index int) gpu.RenderTarget {
	return s.buffers[index]
}

func (s *Swapchain) Present(mode gpu.PresentMode) error {
	if s.destroyed {
		return core.ErrSwapchainBooting
	}
	s.dev.mutex.Lock()
	s.presents = append(s.presents, mode)
	s.dev.mutex.Unlock()
	return nil
}

func (s *Swapchain) release() {
	for _, b := range s.buffers {
		b.destroy()
	}
	s.buffers = nil
}

func (s *Swapchain) Resize(width uint32, height uint32, allowTearing bool) error {
	if width == 0 || height == 0 {
		return core.CreationFailed(nil, "swap chain of %dx%d", width, height)
	}
	if s.dev.swapchainsRefused() {
		return core.CreationFailed(nil, "swap chain of %dx%d refused", width, height)
	}
	s.release()
	s.buffers = make([]*RenderTarget, s.count)
	for i := range s.buffers {
		s.buffers[i] = &RenderTarget{
			resource: s.dev.newResource("swap chain buffer", fmt.Sprintf("backbuffer %d", i)),
			width:    width,
			height:   height,
		}
	}
	s.width, s.height, s.tearing = width, height, allowTearing
	s.cursor = 0
	s.generation++
	s.destroyed = false
	return nil
}

func (s *Swapchain) Destroy() {
	if s.destroyed {
		return
	}
	s.release()
	s.destroyed = true
}

// Generation counts how many times the buffers were (re)created.
func (s *Swapchain) Generation() int { return s.generation }

// AllowsTearing reports the tearing support requested at the last (re)creation.
func (s *Swapchain) AllowsTearing() bool { return s.tearing }

// Destroyed reports whether the buffers are released.
func (s *Swapchain) Destroyed() bool { return s.destroyed }

// Presents returns the mode of every present call so far.
func (s *Swapchain) Presents() []gpu.PresentMode {
	s.dev.mutex.Lock()
	defer s.dev.mutex.Unlock()
	return append([]gpu.PresentMode(nil), s.presents...)
}

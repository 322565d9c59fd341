// Package renderer owns the device backend and the pipelined renderer built
// on it, and lets the application switch backends at runtime.
package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
	"github.com/spaghettifunk/asteroids/engine/renderer/pipelined"
	"github.com/spaghettifunk/asteroids/engine/renderer/sim"
	"github.com/spaghettifunk/asteroids/engine/renderer/vulkan"
)

type Backend string

// ErrSwitchRolledBack marks a backend switch that failed while the previous
// backend was restored and can keep rendering.
var ErrSwitchRolledBack = errors.New("backend switch rolled back")

const (
	BackendVulkan Backend = "vulkan"
	BackendSim    Backend = "sim"
)

func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case BackendVulkan, BackendSim:
		return Backend(s), nil
	}
	return "", errors.Newf("unknown renderer backend %q", s)
}

// Other returns the backend B switches to.
func (b Backend) Other() Backend {
	if b == BackendVulkan {
		return BackendSim
	}
	return BackendVulkan
}

type Config struct {
	Backend         Backend
	ApplicationName string
	// Vulkan instance extensions required by the window system.
	Extensions []string
	Validation bool
	Pipelined  pipelined.Options
}

// DeviceFactory creates the device of a backend. Tests replace it to avoid
// needing a GPU.
type DeviceFactory func(cfg Config, backend Backend) (gpu.Device, error)

type Renderer struct {
	config    Config
	factory   DeviceFactory
	backend   Backend
	device    gpu.Device
	pipelined *pipelined.Renderer

	// last swap chain request, replayed after a backend switch
	surface      gpu.Surface
	width        uint32
	height       uint32
	allowTearing bool
	hasSurface   bool
}

func New(cfg Config) (*Renderer, error) {
	return NewWithFactory(cfg, NewDevice)
}

func NewWithFactory(cfg Config, factory DeviceFactory) (*Renderer, error) {
	r := &Renderer{config: cfg, factory: factory}
	if err := r.start(cfg.Backend); err != nil {
		return nil, err
	}
	return r, nil
}

// NewDevice creates the device for backend.
func NewDevice(cfg Config, backend Backend) (gpu.Device, error) {
	switch backend {
	case BackendVulkan:
		if err := vulkan.Init(); err != nil {
			return nil, err
		}
		opts := vulkan.DefaultOptions()
		opts.ApplicationName = cfg.ApplicationName
		opts.Extensions = cfg.Extensions
		opts.Validation = cfg.Validation
		device, err := vulkan.NewDevice(opts)
		if err != nil {
			return nil, err
		}
		return device, nil
	case BackendSim:
		opts := sim.DefaultOptions()
		opts.Mode = sim.Auto
		opts.LogLimit = 64
		return sim.NewDevice(opts), nil
	}
	return nil, errors.Newf("unknown renderer backend %q", backend)
}

func (r *Renderer) start(backend Backend) error {
	device, err := r.factory(r.config, backend)
	if err != nil {
		return core.Wrapf(err, "%s device", backend)
	}
	p, err := pipelined.New(device, r.config.Pipelined)
	if err != nil {
		device.Destroy()
		return core.Wrapf(err, "%s renderer", backend)
	}
	r.backend, r.device, r.pipelined = backend, device, p
	core.LogInfo("renderer backend %s on %s", backend, device.Name())
	return nil
}

func (r *Renderer) stop() error {
	if r.pipelined == nil {
		return nil
	}
	err := r.pipelined.Close()
	r.device.Destroy()
	r.pipelined, r.device = nil, nil
	return err
}

func (r *Renderer) Backend() Backend { return r.backend }

// Ready reports whether a backend is running. It is false only after a
// failed switch could not restore the previous backend, or after Shutdown.
func (r *Renderer) Ready() bool { return r.pipelined != nil }

func (r *Renderer) DeviceName() string {
	if r.device == nil {
		return ""
	}
	return r.device.Name()
}

func (r *Renderer) WaitForReadyToRender() error {
	return r.pipelined.WaitForReadyToRender()
}

func (r *Renderer) Render(frameTime float32, in metadata.FrameInput) error {
	return r.pipelined.Render(frameTime, in)
}

// ReleaseSwapChain drains and releases the presentable buffers. Frames are
// skipped until the next ResizeSwapChain.
func (r *Renderer) ReleaseSwapChain() error {
	return r.pipelined.ReleaseSwapChain()
}

func (r *Renderer) ResizeSwapChain(surface gpu.Surface, width, height uint32, allowTearing bool) error {
	r.surface, r.width, r.height, r.allowTearing = surface, width, height, allowTearing
	r.hasSurface = true
	return r.pipelined.ResizeSwapChain(surface, width, height, allowTearing)
}

// SwitchBackend hands the output over to another backend. The current one
// releases its swap chain first so the new one can own the surface.
func (r *Renderer) SwitchBackend(backend Backend) error {
	if backend == r.backend {
		return nil
	}
	from := r.backend
	if err := r.pipelined.ReleaseSwapChain(); err != nil {
		return err
	}
	if err := r.stop(); err != nil {
		core.LogWarn("closing %s backend: %v", from, err)
	}
	switchErr := r.start(backend)
	if switchErr != nil {
		core.LogError("switching to %s failed, restoring %s: %v", backend, from, switchErr)
		if err := r.start(from); err != nil {
			return errors.CombineErrors(switchErr, err)
		}
	}
	if r.hasSurface {
		if err := r.pipelined.ResizeSwapChain(r.surface, r.width, r.height, r.allowTearing); err != nil {
			return errors.CombineErrors(err, switchErr)
		}
	}
	if switchErr != nil {
		return errors.Mark(switchErr, ErrSwitchRolledBack)
	}
	core.LogInfo("renderer backend switched %s -> %s", from, backend)
	return nil
}

// Frames counts the frames the current backend has submitted.
func (r *Renderer) Frames() uint64 {
	return r.pipelined.Frames()
}

func (r *Renderer) Stats() pipelined.Stats {
	return r.pipelined.Stats()
}

func (r *Renderer) Shutdown() error {
	return r.stop()
}

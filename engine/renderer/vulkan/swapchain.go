package vulkan

import (
	"math"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/asteroids/engine/core"
	amath "github.com/spaghettifunk/asteroids/engine/math"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
)

// WindowSurface is a window able to create a Vulkan surface for itself.
// *glfw.Window implements it.
type WindowSurface interface {
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
}

// swapchainImage is one presentable buffer.
type swapchainImage struct {
	handle vk.Image
	view   vk.ImageView
	format vk.Format
	width  uint32
	height uint32

	renderDone vk.Semaphore
	// transitions the image straight to present when nothing was rendered
	// into it
	fallback vk.CommandBuffer
}

func (img *swapchainImage) Extent() (uint32, uint32) { return img.width, img.height }

type Swapchain struct {
	device  *Device
	surface vk.Surface
	handle  vk.Swapchain
	format  vk.SurfaceFormat
	pool    vk.CommandPool

	requested    int
	allowTearing bool
	modes        []vk.PresentMode
	mode         vk.PresentMode
	wanted       gpu.PresentMode

	images   []*swapchainImage
	acquire  []vk.Semaphore
	next     int
	current  uint32
	acquired bool
}

var _ gpu.Swapchain = (*Swapchain)(nil)

func (d *Device) NewSwapchain(desc gpu.SwapchainDesc) (gpu.Swapchain, error) {
	window, ok := desc.Surface.(WindowSurface)
	if !ok {
		return nil, core.CreationFailed(nil, "surface %T cannot create a Vulkan surface", desc.Surface)
	}
	ptr, err := window.CreateWindowSurface(d.instance, nil)
	if err != nil {
		return nil, core.CreationFailed(err, "window surface")
	}
	sc := &Swapchain{
		device:       d,
		surface:      vk.SurfaceFromPointer(ptr),
		requested:    desc.BufferCount,
		allowTearing: desc.AllowTearing,
		wanted:       gpu.PresentDefault,
	}

	var supported vk.Bool32
	vk.GetPhysicalDeviceSurfaceSupport(d.physical, d.family, sc.surface, &supported)
	if supported != vk.True {
		sc.Destroy()
		return nil, core.CreationFailed(nil, "queue family %d of %s cannot present to the surface", d.family, d.name)
	}

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.family,
	}
	var pool vk.CommandPool
	if err := created(vk.CreateCommandPool(d.handle, &poolInfo, nil, &pool), "swap chain command pool"); err != nil {
		sc.Destroy()
		return nil, err
	}
	sc.pool = pool

	if err := sc.create(desc.Width, desc.Height); err != nil {
		sc.Destroy()
		return nil, err
	}
	return sc, nil
}

func (sc *Swapchain) querySupport() (vk.SurfaceCapabilities, error) {
	d := sc.device
	var caps vk.SurfaceCapabilities
	if err := check(vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, sc.surface, &caps), "surface capabilities"); err != nil {
		return caps, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	var count uint32
	vk.GetPhysicalDeviceSurfaceFormats(d.physical, sc.surface, &count, nil)
	formats := make([]vk.SurfaceFormat, count)
	vk.GetPhysicalDeviceSurfaceFormats(d.physical, sc.surface, &count, formats)
	sc.format = vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	for i := range formats {
		formats[i].Deref()
	}
	if len(formats) > 0 && !containsFormat(formats, sc.format) && formats[0].Format != vk.FormatUndefined {
		sc.format = formats[0]
	}

	vk.GetPhysicalDeviceSurfacePresentModes(d.physical, sc.surface, &count, nil)
	sc.modes = make([]vk.PresentMode, count)
	vk.GetPhysicalDeviceSurfacePresentModes(d.physical, sc.surface, &count, sc.modes)
	return caps, nil
}

func containsFormat(formats []vk.SurfaceFormat, want vk.SurfaceFormat) bool {
	for _, f := range formats {
		if f.Format == want.Format && f.ColorSpace == want.ColorSpace {
			return true
		}
	}
	return false
}

func (sc *Swapchain) hasMode(mode vk.PresentMode) bool {
	for _, m := range sc.modes {
		if m == mode {
			return true
		}
	}
	return false
}

// presentMode maps a present policy onto what the surface offers. FIFO is
// always available.
func (sc *Swapchain) presentMode(mode gpu.PresentMode) vk.PresentMode {
	switch mode {
	case gpu.PresentVSync:
		return vk.PresentModeFifo
	case gpu.PresentTearing:
		if sc.allowTearing && sc.hasMode(vk.PresentModeImmediate) {
			return vk.PresentModeImmediate
		}
	}
	if sc.hasMode(vk.PresentModeMailbox) {
		return vk.PresentModeMailbox
	}
	return vk.PresentModeFifo
}

func (sc *Swapchain) create(width, height uint32) error {
	d := sc.device
	caps, err := sc.querySupport()
	if err != nil {
		return err
	}

	extent := vk.Extent2D{Width: width, Height: height}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		extent = caps.CurrentExtent
	}
	extent.Width = amath.Clamp(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	extent.Height = amath.Clamp(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)

	count := uint32(sc.requested)
	if count < caps.MinImageCount {
		count = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}

	sc.mode = sc.presentMode(sc.wanted)
	old := sc.handle
	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          sc.surface,
		MinImageCount:    count,
		ImageFormat:      sc.format.Format,
		ImageColorSpace:  sc.format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      sc.mode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	var handle vk.Swapchain
	if err := created(vk.CreateSwapchain(d.handle, &info, nil, &handle), "swap chain %dx%d", extent.Width, extent.Height); err != nil {
		return err
	}
	sc.releaseImages()
	if old != vk.NullSwapchain {
		vk.DestroySwapchain(d.handle, old, nil)
	}
	sc.handle = handle

	var n uint32
	if err := check(vk.GetSwapchainImages(d.handle, handle, &n, nil), "swap chain images"); err != nil {
		return err
	}
	handles := make([]vk.Image, n)
	if err := check(vk.GetSwapchainImages(d.handle, handle, &n, handles), "swap chain images"); err != nil {
		return err
	}

	for _, h := range handles {
		img := &swapchainImage{handle: h, format: sc.format.Format, width: extent.Width, height: extent.Height}
		sc.images = append(sc.images, img)
		if img.view, err = d.newView(h, sc.format.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit)); err != nil {
			return err
		}
		if img.renderDone, err = d.newSemaphore(); err != nil {
			return err
		}
		if img.fallback, err = sc.recordFallback(h); err != nil {
			return err
		}
	}
	for len(sc.acquire) < len(sc.images)+1 {
		s, err := d.newSemaphore()
		if err != nil {
			return err
		}
		sc.acquire = append(sc.acquire, s)
	}
	core.LogDebug("vulkan swap chain %dx%d with %d images, present mode %d", extent.Width, extent.Height, n, sc.mode)
	return nil
}

func (d *Device) newSemaphore() (vk.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var s vk.Semaphore
	if err := created(vk.CreateSemaphore(d.handle, &info, nil, &s), "semaphore"); err != nil {
		return nil, err
	}
	return s, nil
}

func (sc *Swapchain) recordFallback(img vk.Image) (vk.CommandBuffer, error) {
	d := sc.device
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        sc.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if err := created(vk.AllocateCommandBuffers(d.handle, &allocInfo, buffers), "fallback command buffer"); err != nil {
		return nil, err
	}
	cmd := buffers[0]
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit),
	}
	if err := check(vk.BeginCommandBuffer(cmd, &beginInfo), "beginning fallback"); err != nil {
		return nil, err
	}
	imageBarrier(cmd, img, vk.ImageAspectFlags(vk.ImageAspectColorBit),
		vk.ImageLayoutUndefined, vk.ImageLayoutPresentSrc,
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit), vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		0, 0)
	if err := check(vk.EndCommandBuffer(cmd), "ending fallback"); err != nil {
		return nil, err
	}
	return cmd, nil
}

func (sc *Swapchain) releaseImages() {
	d := sc.device
	for _, img := range sc.images {
		if img.view != nil {
			d.forgetView(img.view)
			vk.DestroyImageView(d.handle, img.view, nil)
		}
		if img.renderDone != nil {
			vk.DestroySemaphore(d.handle, img.renderDone, nil)
		}
		if img.fallback != nil {
			vk.FreeCommandBuffers(d.handle, sc.pool, 1, []vk.CommandBuffer{img.fallback})
		}
	}
	sc.images = nil
	sc.acquired = false
	sc.device.queue.acquired = nil
}

func (sc *Swapchain) BufferCount() int { return len(sc.images) }

func (sc *Swapchain) Extent() (uint32, uint32) {
	if len(sc.images) == 0 {
		return 0, 0
	}
	return sc.images[0].Extent()
}

func (sc *Swapchain) Buffer(index int) gpu.RenderTarget { return sc.images[index] }

// Acquire hands the acquire semaphore to the queue; the next submission
// waits on it.
func (sc *Swapchain) Acquire() (int, error) {
	semaphore := sc.acquire[sc.next]
	var index uint32
	result := vk.AcquireNextImage(sc.device.handle, sc.handle, vk.MaxUint64, semaphore, vk.NullFence, &index)
	switch result {
	case vk.Success, vk.Suboptimal:
	case vk.ErrorOutOfDate:
		return 0, core.ErrSwapchainBooting
	default:
		return 0, check(result, "acquiring swap chain image")
	}
	sc.next = (sc.next + 1) % len(sc.acquire)
	sc.current = index
	sc.acquired = true
	sc.device.queue.acquired = semaphore
	return int(index), nil
}

// Present shows the acquired image. When the policy asks for a present mode
// other than the one the swap chain was created with, the frame is still
// presented and ErrSwapchainBooting tells the caller to recreate.
func (sc *Swapchain) Present(mode gpu.PresentMode) error {
	if !sc.acquired {
		return errors.AssertionFailedf("present without an acquired image")
	}
	sc.acquired = false
	img := sc.images[sc.current]
	q := sc.device.queue

	info := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{img.renderDone},
	}
	if q.acquired != nil {
		// nothing was submitted since the acquire
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{q.acquired}
		info.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
		info.CommandBufferCount = 1
		info.PCommandBuffers = []vk.CommandBuffer{img.fallback}
		q.acquired = nil
	}
	if err := check(vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{info}, vk.NullFence), "signaling render done"); err != nil {
		return err
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{img.renderDone},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.handle},
		PImageIndices:      []uint32{sc.current},
	}
	result := vk.QueuePresent(q.handle, &presentInfo)
	switch result {
	case vk.Success:
	case vk.Suboptimal, vk.ErrorOutOfDate:
		return core.ErrSwapchainBooting
	default:
		return check(result, "presenting image %d", sc.current)
	}

	if sc.presentMode(mode) != sc.mode {
		sc.wanted = mode
		return errors.Mark(errors.Newf("present mode %s needs a new swap chain", mode), core.ErrSwapchainBooting)
	}
	return nil
}

// Resize recreates the swap chain in place. The caller guarantees no image
// is referenced by pending work.
func (sc *Swapchain) Resize(width, height uint32, allowTearing bool) error {
	sc.allowTearing = allowTearing
	return sc.create(width, height)
}

func (sc *Swapchain) Destroy() {
	d := sc.device
	sc.releaseImages()
	for _, s := range sc.acquire {
		vk.DestroySemaphore(d.handle, s, nil)
	}
	sc.acquire = nil
	if sc.handle != vk.NullSwapchain {
		vk.DestroySwapchain(d.handle, sc.handle, nil)
		sc.handle = vk.NullSwapchain
	}
	if sc.pool != nil {
		vk.DestroyCommandPool(d.handle, sc.pool, nil)
		sc.pool = nil
	}
	if sc.surface != vk.NullSurface {
		vk.DestroySurface(d.instance, sc.surface, nil)
		sc.surface = vk.NullSurface
	}
}

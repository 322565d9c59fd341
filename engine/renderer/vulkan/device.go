// Package vulkan implements the gpu device interfaces on top of
// github.com/goki/vulkan. It uses a single graphics queue that also
// presents, emulates timelines with fences and keeps the swap chain
// semaphores internal to the queue and swap chain pair.
package vulkan

import (
	"runtime"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
)

type Options struct {
	ApplicationName string
	// Instance extensions the window system needs to create surfaces.
	Extensions []string
	Validation bool
	// Texture views per descriptor table. The shaders declare their texture
	// arrays with this size.
	MaxTexturesPerTable uint32
}

func DefaultOptions() Options {
	return Options{
		ApplicationName:     "asteroids",
		MaxTexturesPerTable: 64,
	}
}

// maxUploadBuffers bounds the storage buffer descriptors handed to upload
// buffers, one per frame slot.
const maxUploadBuffers = 16

type Device struct {
	opts     Options
	instance vk.Instance
	debug    vk.DebugReportCallback

	physical    vk.PhysicalDevice
	handle      vk.Device
	family      uint32
	name        string
	properties  vk.PhysicalDeviceProperties
	memory      vk.PhysicalDeviceMemoryProperties
	depthFormat vk.Format
	multiDraw   bool

	queue *Queue

	// guards uploadPool, the render pass and framebuffer caches
	mutex      sync.Mutex
	uploadPool vk.CommandPool

	sampler         vk.Sampler
	constantsLayout vk.DescriptorSetLayout
	texturesLayout  vk.DescriptorSetLayout
	pipelineLayout  vk.PipelineLayout
	constantsPool   vk.DescriptorPool
	placeholder     *Texture

	passes       map[passKey]vk.RenderPass
	framebuffers map[framebufferKey]vk.Framebuffer
	fences       []vk.Fence
}

var _ gpu.Device = (*Device)(nil)

// NewDevice creates the instance, picks a physical device with a graphics
// queue and creates the logical device with the objects every pipeline
// shares.
func NewDevice(opts Options) (*Device, error) {
	if opts.MaxTexturesPerTable == 0 {
		opts.MaxTexturesPerTable = DefaultOptions().MaxTexturesPerTable
	}
	d := &Device{
		opts:         opts,
		passes:       make(map[passKey]vk.RenderPass),
		framebuffers: make(map[framebufferKey]vk.Framebuffer),
	}
	if err := d.create(); err != nil {
		d.Destroy()
		return nil, err
	}
	core.LogInfo("vulkan device %q ready (queue family %d, depth format %d, multi draw indirect %t)",
		d.name, d.family, d.depthFormat, d.multiDraw)
	return d, nil
}

func (d *Device) create() error {
	if err := d.createInstance(); err != nil {
		return err
	}
	if err := d.selectPhysicalDevice(); err != nil {
		return err
	}
	if err := d.createLogicalDevice(); err != nil {
		return err
	}
	if err := d.createSharedLayouts(); err != nil {
		return err
	}
	white := []byte{255, 255, 255, 255}
	placeholder, err := d.newTexture(gpu.TextureDesc{Name: "placeholder", Width: 1, Height: 1}, white)
	if err != nil {
		return err
	}
	d.placeholder = placeholder
	return nil
}

func (d *Device) createInstance() error {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         vk.MakeVersion(1, 1, 0),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PApplicationName:   safeString(d.opts.ApplicationName),
		PEngineName:        safeString("Asteroids Engine"),
	}

	extensions := append([]string{}, d.opts.Extensions...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions, vk.KhrGetPhysicalDeviceProperties2ExtensionName, vk.KhrPortabilityEnumerationExtensionName)
	}
	var layers []string
	if d.opts.Validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		if d.hasLayer("VK_LAYER_KHRONOS_validation") {
			layers = append(layers, "VK_LAYER_KHRONOS_validation")
		} else {
			core.LogWarn("validation requested but VK_LAYER_KHRONOS_validation is not installed")
		}
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}
	var instance vk.Instance
	if err := created(vk.CreateInstance(&createInfo, nil, &instance), "instance"); err != nil {
		return err
	}
	d.instance = instance
	if err := vk.InitInstance(instance); err != nil {
		return core.CreationFailed(err, "loading instance functions")
	}

	if d.opts.Validation {
		debugInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: debugReport,
		}
		var dbg vk.DebugReportCallback
		if err := check(vk.CreateDebugReportCallback(instance, &debugInfo, nil, &dbg), "debug report callback"); err != nil {
			core.LogWarn("validation messages disabled: %v", err)
		} else {
			d.debug = dbg
		}
	}
	return nil
}

func (d *Device) hasLayer(name string) bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success || count == 0 {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if vk.EnumerateInstanceLayerProperties(&count, layers) != vk.Success {
		return false
	}
	for i := range layers {
		layers[i].Deref()
		if cString(layers[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("performance [%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogWarn("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}

// selectPhysicalDevice takes the best scoring device that can render and
// present. Discrete GPUs win.
func (d *Device) selectPhysicalDevice() error {
	var count uint32
	if err := created(vk.EnumeratePhysicalDevices(d.instance, &count, nil), "enumerating devices"); err != nil {
		return err
	}
	if count == 0 {
		return core.CreationFailed(nil, "no devices which support Vulkan were found")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := created(vk.EnumeratePhysicalDevices(d.instance, &count, devices), "enumerating devices"); err != nil {
		return err
	}

	best := -1
	for _, device := range devices {
		family, ok := graphicsFamily(device)
		if !ok || !hasDeviceExtension(device, vk.KhrSwapchainExtensionName) {
			continue
		}
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(device, &props)
		props.Deref()
		props.Limits.Deref()
		score := 1
		if props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			score += 1000
		}
		if score > best {
			best = score
			d.physical, d.family, d.properties = device, family, props
			d.name = cString(props.DeviceName[:])
		}
	}
	if best < 0 {
		return core.CreationFailed(nil, "no device with a graphics queue and swap chain support")
	}

	vk.GetPhysicalDeviceMemoryProperties(d.physical, &d.memory)
	d.memory.Deref()
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		d.memory.MemoryTypes[i].Deref()
	}

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(d.physical, &features)
	features.Deref()
	d.multiDraw = features.MultiDrawIndirect == vk.True

	d.depthFormat = d.detectDepthFormat()
	if d.depthFormat == vk.FormatUndefined {
		return core.CreationFailed(nil, "%s has no depth attachment format", d.name)
	}
	return nil
}

func graphicsFamily(device vk.PhysicalDevice) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, families)
	for i := range families {
		families[i].Deref()
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			return uint32(i), true
		}
	}
	return 0, false
}

func hasDeviceExtension(device vk.PhysicalDevice, name string) bool {
	var count uint32
	if vk.EnumerateDeviceExtensionProperties(device, "", &count, nil) != vk.Success || count == 0 {
		return false
	}
	extensions := make([]vk.ExtensionProperties, count)
	if vk.EnumerateDeviceExtensionProperties(device, "", &count, extensions) != vk.Success {
		return false
	}
	name = cString([]byte(name))
	for i := range extensions {
		extensions[i].Deref()
		if cString(extensions[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

func (d *Device) detectDepthFormat() vk.Format {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	want := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, format := range candidates {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.physical, format, &props)
		props.Deref()
		if props.OptimalTilingFeatures&want == want {
			return format
		}
	}
	return vk.FormatUndefined
}

func (d *Device) createLogicalDevice() error {
	extensions := []string{vk.KhrSwapchainExtensionName}
	if hasDeviceExtension(d.physical, "VK_KHR_portability_subset") {
		core.LogInfo("adding required extension VK_KHR_portability_subset")
		extensions = append(extensions, "VK_KHR_portability_subset")
	}

	features := vk.PhysicalDeviceFeatures{
		ShaderSampledImageArrayDynamicIndexing: vk.True,
	}
	if d.multiDraw {
		features.MultiDrawIndirect = vk.True
	}
	createInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: d.family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}},
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}
	var device vk.Device
	if err := created(vk.CreateDevice(d.physical, &createInfo, nil, &device), "logical device on %s", d.name); err != nil {
		return err
	}
	d.handle = device

	var queue vk.Queue
	vk.GetDeviceQueue(device, d.family, 0, &queue)
	d.queue = &Queue{device: d, handle: queue}

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.family,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	var pool vk.CommandPool
	if err := created(vk.CreateCommandPool(device, &poolInfo, nil, &pool), "upload command pool"); err != nil {
		return err
	}
	d.uploadPool = pool
	return nil
}

// createSharedLayouts builds the layout every pipeline uses: set 0 is the
// frame's upload buffer read as constant blocks, set 1 a texture table and
// a push constant selects the first constant block of the draw.
func (d *Device) createSharedLayouts() error {
	var err error
	d.sampler, err = d.createSampler()
	if err != nil {
		return err
	}

	constantsInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings: []vk.DescriptorSetLayoutBinding{{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
		}},
	}
	var constantsLayout vk.DescriptorSetLayout
	if err := created(vk.CreateDescriptorSetLayout(d.handle, &constantsInfo, nil, &constantsLayout), "constants set layout"); err != nil {
		return err
	}
	d.constantsLayout = constantsLayout

	texturesInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings: []vk.DescriptorSetLayoutBinding{{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: d.opts.MaxTexturesPerTable,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		}},
	}
	var texturesLayout vk.DescriptorSetLayout
	if err := created(vk.CreateDescriptorSetLayout(d.handle, &texturesInfo, nil, &texturesLayout), "texture table layout"); err != nil {
		return err
	}
	d.texturesLayout = texturesLayout

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         2,
		PSetLayouts:            []vk.DescriptorSetLayout{constantsLayout, texturesLayout},
		PushConstantRangeCount: 1,
		PPushConstantRanges: []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
			Offset:     0,
			Size:       uint32(unsafe.Sizeof(pushConstants{})),
		}},
	}
	var pipelineLayout vk.PipelineLayout
	if err := created(vk.CreatePipelineLayout(d.handle, &layoutInfo, nil, &pipelineLayout), "pipeline layout"); err != nil {
		return err
	}
	d.pipelineLayout = pipelineLayout

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       maxUploadBuffers,
		PoolSizeCount: 1,
		PPoolSizes: []vk.DescriptorPoolSize{{
			Type:            vk.DescriptorTypeStorageBuffer,
			DescriptorCount: maxUploadBuffers,
		}},
	}
	var pool vk.DescriptorPool
	if err := created(vk.CreateDescriptorPool(d.handle, &poolInfo, nil, &pool), "constants descriptor pool"); err != nil {
		return err
	}
	d.constantsPool = pool
	return nil
}

func (d *Device) createSampler() (vk.Sampler, error) {
	info := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
	}
	var sampler vk.Sampler
	if err := created(vk.CreateSampler(d.handle, &info, nil, &sampler), "sampler"); err != nil {
		return nil, err
	}
	return sampler, nil
}

// findMemoryType returns the first memory type allowed by typeFilter that
// has every requested property.
func (d *Device) findMemoryType(typeFilter uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		if typeFilter&(1<<i) == 0 {
			continue
		}
		if d.memory.MemoryTypes[i].PropertyFlags&properties == properties {
			return i, nil
		}
	}
	return 0, core.CreationFailed(nil, "no memory type with properties %#x", uint32(properties))
}

func (d *Device) Name() string { return d.name }

func (d *Device) Limits() gpu.Limits {
	return gpu.Limits{
		// Constant blocks are addressed by index inside one storage binding,
		// so only the block stride matters.
		ConstantAlignment:   metadata.CONSTANT_ALIGNMENT,
		MaxTexturesPerTable: d.opts.MaxTexturesPerTable,
	}
}

func (d *Device) Queue() gpu.Queue { return d.queue }

func (d *Device) WaitIdle() error {
	if d.handle == nil {
		return nil
	}
	return check(vk.DeviceWaitIdle(d.handle), "waiting for device idle")
}

// immediate records fn into a one-shot command buffer, submits it and waits
// for the queue to go idle. Only used while creating resources.
func (d *Device) immediate(what string, fn func(cmd vk.CommandBuffer)) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.uploadPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if err := created(vk.AllocateCommandBuffers(d.handle, &allocInfo, buffers), "%s command buffer", what); err != nil {
		return err
	}
	defer vk.FreeCommandBuffers(d.handle, d.uploadPool, 1, buffers)

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check(vk.BeginCommandBuffer(buffers[0], &beginInfo), "beginning %s", what); err != nil {
		return err
	}
	fn(buffers[0])
	if err := check(vk.EndCommandBuffer(buffers[0]), "ending %s", what); err != nil {
		return err
	}
	return d.queue.submitAndWait(buffers[0], what)
}

// acquireFence hands out an unsignaled fence, reusing retired ones.
func (d *Device) acquireFence() (vk.Fence, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if n := len(d.fences); n > 0 {
		f := d.fences[n-1]
		d.fences = d.fences[:n-1]
		if err := check(vk.ResetFences(d.handle, 1, []vk.Fence{f}), "resetting fence"); err != nil {
			return vk.NullFence, err
		}
		return f, nil
	}
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	var f vk.Fence
	if err := created(vk.CreateFence(d.handle, &info, nil, &f), "fence"); err != nil {
		return vk.NullFence, err
	}
	return f, nil
}

func (d *Device) releaseFence(f vk.Fence) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.fences = append(d.fences, f)
}

// Destroy releases the device. Every object created from it must have been
// destroyed already.
func (d *Device) Destroy() {
	if d.handle != nil {
		if err := d.WaitIdle(); err != nil {
			core.LogError("destroying device: %v", err)
		}
		if d.placeholder != nil {
			d.placeholder.Destroy()
			d.placeholder = nil
		}
		d.destroyCaches()
		for _, f := range d.fences {
			vk.DestroyFence(d.handle, f, nil)
		}
		d.fences = nil
		if d.constantsPool != nil {
			vk.DestroyDescriptorPool(d.handle, d.constantsPool, nil)
		}
		if d.pipelineLayout != nil {
			vk.DestroyPipelineLayout(d.handle, d.pipelineLayout, nil)
		}
		if d.texturesLayout != nil {
			vk.DestroyDescriptorSetLayout(d.handle, d.texturesLayout, nil)
		}
		if d.constantsLayout != nil {
			vk.DestroyDescriptorSetLayout(d.handle, d.constantsLayout, nil)
		}
		if d.sampler != nil {
			vk.DestroySampler(d.handle, d.sampler, nil)
		}
		if d.uploadPool != nil {
			vk.DestroyCommandPool(d.handle, d.uploadPool, nil)
		}
		vk.DestroyDevice(d.handle, nil)
		d.handle = nil
	}
	if d.instance != nil {
		if d.debug != nil {
			vk.DestroyDebugReportCallback(d.instance, d.debug, nil)
			d.debug = nil
		}
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
}

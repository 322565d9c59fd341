package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
)

// pushConstants selects the first constant block a draw reads. Instance i
// of the draw reads block base+i.
type pushConstants struct {
	Base uint32
}

// CommandContext is a command pool whose primary buffers are handed out in
// order and recycled together by Reset.
type CommandContext struct {
	device  *Device
	pool    vk.CommandPool
	buffers []vk.CommandBuffer
	next    int
}

var _ gpu.CommandContext = (*CommandContext)(nil)

func (d *Device) NewCommandContext() (gpu.CommandContext, error) {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.family,
	}
	var pool vk.CommandPool
	if err := created(vk.CreateCommandPool(d.handle, &info, nil, &pool), "command pool"); err != nil {
		return nil, err
	}
	return &CommandContext{device: d, pool: pool}, nil
}

func (c *CommandContext) Reset() error {
	c.next = 0
	return check(vk.ResetCommandPool(c.device.handle, c.pool, 0), "resetting command pool")
}

func (c *CommandContext) Begin(label string) (gpu.Recorder, error) {
	if c.next == len(c.buffers) {
		allocInfo := vk.CommandBufferAllocateInfo{
			SType:              vk.StructureTypeCommandBufferAllocateInfo,
			CommandPool:        c.pool,
			Level:              vk.CommandBufferLevelPrimary,
			CommandBufferCount: 1,
		}
		buffers := make([]vk.CommandBuffer, 1)
		if err := created(vk.AllocateCommandBuffers(c.device.handle, &allocInfo, buffers), "command buffer %q", label); err != nil {
			return nil, err
		}
		c.buffers = append(c.buffers, buffers[0])
	}
	cmd := c.buffers[c.next]
	c.next++

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check(vk.BeginCommandBuffer(cmd, &beginInfo), "beginning %q", label); err != nil {
		return nil, err
	}
	return &Recorder{device: c.device, list: &CommandList{label: label, handle: cmd}}, nil
}

func (c *CommandContext) Destroy() {
	if c.pool == nil {
		return
	}
	if len(c.buffers) > 0 {
		vk.FreeCommandBuffers(c.device.handle, c.pool, uint32(len(c.buffers)), c.buffers)
		c.buffers = nil
	}
	vk.DestroyCommandPool(c.device.handle, c.pool, nil)
	c.pool = nil
}

type CommandList struct {
	label  string
	handle vk.CommandBuffer
}

func (l *CommandList) Label() string { return l.label }

// Recorder validates the command stream the way the simulated device does
// and reports the first problem from Close.
type Recorder struct {
	device *Device
	list   *CommandList
	inPass bool
	pass   passKey

	constants vk.DescriptorSet
	err       error
}

var _ gpu.Recorder = (*Recorder)(nil)

func (r *Recorder) fail(format string, args ...interface{}) {
	if r.err == nil {
		r.err = errors.Newf("%s: "+format, append([]interface{}{r.list.label}, args...)...)
	}
}

func (r *Recorder) Transition(target gpu.RenderTarget, from gpu.ResourceState, to gpu.ResourceState) {
	if r.inPass {
		r.fail("transition inside a render pass")
		return
	}
	img, ok := target.(*swapchainImage)
	if !ok {
		r.fail("transition of %T", target)
		return
	}
	aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	colorStage := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	switch {
	case from == gpu.StatePresent && to == gpu.StateRenderTarget:
		// the previous contents are never read, so the old layout is dropped
		imageBarrier(r.list.handle, img.handle, aspect,
			vk.ImageLayoutUndefined, vk.ImageLayoutColorAttachmentOptimal,
			colorStage, colorStage,
			0, vk.AccessFlags(vk.AccessColorAttachmentWriteBit))
	case from == gpu.StateRenderTarget && to == gpu.StatePresent:
		imageBarrier(r.list.handle, img.handle, aspect,
			vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutPresentSrc,
			colorStage, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			vk.AccessFlags(vk.AccessColorAttachmentWriteBit), 0)
	default:
		r.fail("transition from %s to %s", from, to)
	}
}

func (r *Recorder) BeginPass(pass gpu.PassDesc) {
	if r.inPass {
		r.fail("nested render pass")
		return
	}
	color, ok := pass.Color.(*swapchainImage)
	if !ok {
		r.fail("color attachment %T", pass.Color)
		return
	}
	key := passKey{color: color.format, depth: vk.FormatUndefined, clear: pass.Clear}
	var depthView vk.ImageView
	if pass.Depth != nil {
		depth, ok := pass.Depth.(*DepthTarget)
		if !ok {
			r.fail("depth attachment %T", pass.Depth)
			return
		}
		key.depth = depth.format
		depthView = depth.view
	}

	renderPass, err := r.device.renderPass(key)
	if err != nil {
		r.fail("%v", err)
		return
	}
	fb, err := r.device.framebuffer(renderPass, color.view, depthView, color.width, color.height)
	if err != nil {
		r.fail("%v", err)
		return
	}

	info := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  renderPass,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: color.width, Height: color.height},
		},
	}
	if pass.Clear {
		values := clearValues(pass.ClearColor, pass.ClearDepth, pass.Depth != nil)
		info.ClearValueCount = uint32(len(values))
		info.PClearValues = values
	}
	vk.CmdBeginRenderPass(r.list.handle, &info, vk.SubpassContentsInline)
	r.inPass = true
	r.pass = key
}

func (r *Recorder) EndPass() {
	if !r.inPass {
		r.fail("EndPass without BeginPass")
		return
	}
	vk.CmdEndRenderPass(r.list.handle)
	r.inPass = false
}

// SetViewport flips the viewport so clip space y points up like the other
// backends.
func (r *Recorder) SetViewport(width float32, height float32) {
	viewport := vk.Viewport{
		X:        0,
		Y:        height,
		Width:    width,
		Height:   -height,
		MinDepth: 0,
		MaxDepth: 1,
	}
	vk.CmdSetViewport(r.list.handle, 0, 1, []vk.Viewport{viewport})
	scissor := vk.Rect2D{
		Extent: vk.Extent2D{Width: uint32(width), Height: uint32(height)},
	}
	vk.CmdSetScissor(r.list.handle, 0, 1, []vk.Rect2D{scissor})
}

func (r *Recorder) BindPipeline(p gpu.Pipeline) {
	pl, ok := p.(*Pipeline)
	if !ok {
		r.fail("foreign pipeline %T", p)
		return
	}
	if !r.inPass {
		r.fail("%s pipeline bound outside a render pass", pl.kind)
		return
	}
	handle, err := pl.variant(r.pass)
	if err != nil {
		r.fail("%v", err)
		return
	}
	vk.CmdBindPipeline(r.list.handle, vk.PipelineBindPointGraphics, handle)
}

// BindConstants points the draw at the constant blocks starting at the
// range offset. The upload buffer's descriptor is only rebound when the
// buffer changes.
func (r *Recorder) BindConstants(br gpu.BufferRange) {
	ub, ok := br.Buffer.(*UploadBuffer)
	if !ok {
		r.fail("constants must live in an upload buffer, got %T", br.Buffer)
		return
	}
	if br.Offset%metadata.CONSTANT_ALIGNMENT != 0 {
		r.fail("constants offset %d is not a multiple of %d", br.Offset, metadata.CONSTANT_ALIGNMENT)
		return
	}
	if br.Offset+br.Size > ub.Size() {
		r.fail("constants [%d,+%d) outside buffer of %d bytes", br.Offset, br.Size, ub.Size())
		return
	}
	if r.constants != ub.constants {
		vk.CmdBindDescriptorSets(r.list.handle, vk.PipelineBindPointGraphics, r.device.pipelineLayout,
			0, 1, []vk.DescriptorSet{ub.constants}, 0, nil)
		r.constants = ub.constants
	}
	push := pushConstants{Base: uint32(br.Offset / metadata.CONSTANT_ALIGNMENT)}
	vk.CmdPushConstants(r.list.handle, r.device.pipelineLayout,
		vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit),
		0, uint32(unsafe.Sizeof(push)), unsafe.Pointer(&push))
}

func (r *Recorder) BindDescriptorTable(heap gpu.DescriptorHeap, table uint32) {
	h, ok := heap.(*DescriptorHeap)
	if !ok {
		r.fail("foreign descriptor heap %T", heap)
		return
	}
	if table >= uint32(len(h.sets)) {
		r.fail("descriptor table %d out of range", table)
		return
	}
	vk.CmdBindDescriptorSets(r.list.handle, vk.PipelineBindPointGraphics, r.device.pipelineLayout,
		1, 1, []vk.DescriptorSet{h.sets[table]}, 0, nil)
}

func (r *Recorder) buffer(b gpu.Buffer) vk.Buffer {
	switch buf := b.(type) {
	case *UploadBuffer:
		return buf.handle
	case *Buffer:
		return buf.handle
	}
	r.fail("foreign buffer %T", b)
	return nil
}

func (r *Recorder) BindVertexBuffer(br gpu.BufferRange, stride uint32) {
	handle := r.buffer(br.Buffer)
	if handle == nil {
		return
	}
	vk.CmdBindVertexBuffers(r.list.handle, 0, 1, []vk.Buffer{handle}, []vk.DeviceSize{vk.DeviceSize(br.Offset)})
}

func (r *Recorder) BindIndexBuffer(br gpu.BufferRange) {
	handle := r.buffer(br.Buffer)
	if handle == nil {
		return
	}
	vk.CmdBindIndexBuffer(r.list.handle, handle, vk.DeviceSize(br.Offset), vk.IndexTypeUint16)
}

func (r *Recorder) Draw(vertexCount uint32, firstVertex uint32) {
	if !r.inPass {
		r.fail("draw outside a render pass")
		return
	}
	vk.CmdDraw(r.list.handle, vertexCount, 1, firstVertex, 0)
}

func (r *Recorder) DrawIndexed(indexCount uint32, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if !r.inPass {
		r.fail("draw outside a render pass")
		return
	}
	vk.CmdDrawIndexed(r.list.handle, indexCount, 1, firstIndex, vertexOffset, firstInstance)
}

// DrawIndexedIndirect issues one multi-draw when the device supports it and
// one indirect draw per entry otherwise.
func (r *Recorder) DrawIndexedIndirect(args gpu.BufferRange, drawCount uint32, stride uint32) {
	if !r.inPass {
		r.fail("draw outside a render pass")
		return
	}
	handle := r.buffer(args.Buffer)
	if handle == nil || drawCount == 0 {
		return
	}
	if r.device.multiDraw {
		vk.CmdDrawIndexedIndirect(r.list.handle, handle, vk.DeviceSize(args.Offset), drawCount, stride)
		return
	}
	for i := uint32(0); i < drawCount; i++ {
		offset := args.Offset + uint64(i)*uint64(stride)
		vk.CmdDrawIndexedIndirect(r.list.handle, handle, vk.DeviceSize(offset), 1, stride)
	}
}

func (r *Recorder) Close() (gpu.CommandList, error) {
	if r.inPass {
		r.fail("closed inside a render pass")
	}
	if err := check(vk.EndCommandBuffer(r.list.handle), "ending %q", r.list.label); err != nil && r.err == nil {
		r.err = err
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.list, nil
}

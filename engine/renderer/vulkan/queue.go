package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
)

// Queue is the graphics queue, which also presents. After a swap chain
// acquire the first submission waits on the acquire semaphore before writing
// color attachments.
type Queue struct {
	device *Device
	handle vk.Queue

	acquired vk.Semaphore
}

var _ gpu.Queue = (*Queue)(nil)

func (q *Queue) Submit(lists ...gpu.CommandList) error {
	if len(lists) == 0 {
		return nil
	}
	buffers := make([]vk.CommandBuffer, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return errors.AssertionFailedf("command list %q was not recorded by this device", l.Label())
		}
		buffers = append(buffers, cl.handle)
	}

	info := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    buffers,
	}
	if q.acquired != nil {
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{q.acquired}
		info.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
	}
	if err := check(vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{info}, nil), "submitting %d command lists", len(buffers)); err != nil {
		return err
	}
	q.acquired = nil
	return nil
}

// Signal submits an empty batch with a fence. The fence completes once all
// earlier submissions did.
func (q *Queue) Signal(t gpu.Timeline, value uint64) error {
	timeline, ok := t.(*Timeline)
	if !ok {
		return errors.AssertionFailedf("timeline was not created by this device")
	}
	fence, err := q.device.acquireFence()
	if err != nil {
		return err
	}
	if err := check(vk.QueueSubmit(q.handle, 0, nil, fence), "signaling timeline value %d", value); err != nil {
		q.device.releaseFence(fence)
		return err
	}
	return timeline.push(value, fence)
}

// submitAndWait runs a single command buffer to completion.
func (q *Queue) submitAndWait(cmd vk.CommandBuffer, what string) error {
	info := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd},
	}
	if err := check(vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{info}, nil), "submitting %s", what); err != nil {
		return err
	}
	return check(vk.QueueWaitIdle(q.handle), "waiting for %s", what)
}

package vulkan

import (
	"context"
	"sync"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/asteroids/engine/containers"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
)

// pendingSignals bounds the signals a timeline can have in flight.
const pendingSignals = 16

// fenceWaitSlice is how long a single vkWaitForFences call may block before
// the context is checked again.
const fenceWaitSlice = 10 * time.Millisecond

type signal struct {
	value uint64
	fence vk.Fence
}

// Timeline emulates a timeline semaphore with binary fences: every Signal
// submits a fence and the counter advances as those fences complete in
// submission order.
type Timeline struct {
	device    *Device
	mutex     sync.Mutex
	pending   *containers.RingQueue[signal]
	completed uint64
}

var _ gpu.Timeline = (*Timeline)(nil)

func (d *Device) NewTimeline() (gpu.Timeline, error) {
	return &Timeline{
		device:  d,
		pending: containers.NewRingQueue[signal](pendingSignals),
	}, nil
}

func (t *Timeline) push(value uint64, fence vk.Fence) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if err := t.pending.Enqueue(signal{value: value, fence: fence}); err != nil {
		return core.CapacityExceeded("timeline signals", 1, 0)
	}
	return nil
}

// retire pops the front signal if its fence is the given one.
func (t *Timeline) retire(front signal) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	head, err := t.pending.Peek()
	if err != nil || head.fence != front.fence {
		return
	}
	_, _ = t.pending.Dequeue()
	if front.value > t.completed {
		t.completed = front.value
	}
	t.device.releaseFence(front.fence)
}

func (t *Timeline) Completed() uint64 {
	for {
		t.mutex.Lock()
		front, err := t.pending.Peek()
		completed := t.completed
		t.mutex.Unlock()
		if err != nil {
			return completed
		}
		if vk.GetFenceStatus(t.device.handle, front.fence) != vk.Success {
			return completed
		}
		t.retire(front)
	}
}

func (t *Timeline) Wait(ctx context.Context, value uint64) error {
	for {
		t.mutex.Lock()
		front, err := t.pending.Peek()
		completed := t.completed
		t.mutex.Unlock()
		if completed >= value {
			return nil
		}
		if err != nil {
			// nothing in flight can reach value
			<-ctx.Done()
			return ctx.Err()
		}

		result := vk.WaitForFences(t.device.handle, 1, []vk.Fence{front.fence}, vk.True, uint64(fenceWaitSlice.Nanoseconds()))
		switch result {
		case vk.Success:
			t.retire(front)
		case vk.Timeout:
			if err := ctx.Err(); err != nil {
				return err
			}
		default:
			return check(result, "waiting for timeline value %d", value)
		}
	}
}

func (t *Timeline) Destroy() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	for !t.pending.IsEmpty() {
		s, _ := t.pending.Dequeue()
		vk.DestroyFence(t.device.handle, s.fence, nil)
	}
}

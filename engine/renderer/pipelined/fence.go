package pipelined

import (
	"context"
	"time"

	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
)

// Fence tracks the values signaled on the queue. Submitted is only touched by
// the goroutine that drives the frame loop.
type Fence struct {
	queue     gpu.Queue
	timeline  gpu.Timeline
	submitted uint64
	timeout   time.Duration
	profiler  *core.Profiler
}

func NewFence(device gpu.Device, timeout time.Duration, profiler *core.Profiler) (*Fence, error) {
	tl, err := device.NewTimeline()
	if err != nil {
		return nil, core.CreationFailed(err, "creating frame fence")
	}
	if timeout < 0 {
		timeout = 0
	}
	return &Fence{
		queue:    device.Queue(),
		timeline: tl,
		timeout:  timeout,
		profiler: profiler,
	}, nil
}

// Submit asks the queue to signal a new value once everything enqueued so
// far has executed, and returns that value.
func (f *Fence) Submit() (uint64, error) {
	next := f.submitted + 1
	if err := f.queue.Signal(f.timeline, next); err != nil {
		return 0, core.DeviceLost(err, "signaling fence value %d", next)
	}
	f.submitted = next
	return next, nil
}

func (f *Fence) Submitted() uint64 { return f.submitted }

func (f *Fence) Completed() uint64 { return f.timeline.Completed() }

func (f *Fence) IsComplete(value uint64) bool {
	return f.timeline.Completed() >= value
}

// WaitUntil blocks until the GPU reached value. Not reaching it within the
// configured timeout means the device stopped making progress.
func (f *Fence) WaitUntil(value uint64) error {
	if f.IsComplete(value) {
		return nil
	}
	span := f.profiler.Begin(core.MarkerFenceWait)
	defer span.End()

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if err := f.timeline.Wait(ctx, value); err != nil {
		return core.DeviceLost(err, "waiting for fence value %d (completed %d, timeout %s)",
			value, f.timeline.Completed(), f.timeout)
	}
	return nil
}

// DrainAll waits for the highest value ever submitted.
func (f *Fence) DrainAll() error {
	if f.IsComplete(f.submitted) {
		return nil
	}
	core.LogDebug("draining gpu work up to fence value %d", f.submitted)
	return f.WaitUntil(f.submitted)
}

func (f *Fence) Destroy() {
	if f.timeline != nil {
		f.timeline.Destroy()
		f.timeline = nil
	}
}

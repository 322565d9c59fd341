package pipelined

import (
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
)

// Submitter enqueues the command lists of one frame in a fixed order: the
// pre-pass, the subsets by worker index, the post-pass. It is the only
// caller of the queue.
//
// With immediate submission every list is enqueued as soon as it is handed
// over; otherwise the lists are batched and enqueued together by Finish.
// Either way the fence is signaled exactly once per frame, after the
// post-pass, so the slot retire point does not depend on the mode.
type Submitter struct {
	queue     gpu.Queue
	fence     *Fence
	ring      *FrameRing
	profiler  *core.Profiler
	enqueue   bool
	immediate bool
	batch     []gpu.CommandList
	enqueued  int
	order     []string
}

func NewSubmitter(queue gpu.Queue, fence *Fence, ring *FrameRing, profiler *core.Profiler) *Submitter {
	return &Submitter{queue: queue, fence: fence, ring: ring, profiler: profiler}
}

// Begin starts a frame. Settings.Submit=false records everything but enqueues
// nothing; Settings.Multithreaded=false selects immediate submission.
func (s *Submitter) Begin(settings metadata.Settings) {
	s.enqueue = settings.Submit
	s.immediate = !settings.Multithreaded
	s.batch = s.batch[:0]
	s.enqueued = 0
	s.order = s.order[:0]
}

func (s *Submitter) Add(l gpu.CommandList) error {
	s.order = append(s.order, l.Label())
	if !s.enqueue {
		return nil
	}
	if s.immediate {
		return s.submit(l)
	}
	s.batch = append(s.batch, l)
	return nil
}

func (s *Submitter) submit(lists ...gpu.CommandList) error {
	span := s.profiler.Begin(core.MarkerRenderSubmit)
	defer span.End()
	if err := s.queue.Submit(lists...); err != nil {
		return core.DeviceLost(err, "submitting %d command lists", len(lists))
	}
	s.enqueued += len(lists)
	return nil
}

// Finish enqueues the pending batch, signals the fence and retires slot with
// the signaled value.
func (s *Submitter) Finish(slot *FrameSlot) (uint64, error) {
	if len(s.batch) > 0 {
		err := s.submit(s.batch...)
		s.batch = s.batch[:0]
		if err != nil {
			return 0, err
		}
	}
	value, err := s.fence.Submit()
	if err != nil {
		return 0, err
	}
	return value, s.ring.Retire(slot, value)
}

// Abort ends a frame that failed while recording. Lists already enqueued
// still get a fence value so the slot is not reused under them.
func (s *Submitter) Abort(slot *FrameSlot) {
	s.batch = s.batch[:0]
	if s.enqueued == 0 {
		s.ring.Cancel(slot)
		return
	}
	if value, err := s.fence.Submit(); err == nil {
		_ = s.ring.Retire(slot, value)
	} else {
		core.LogError("signaling fence for an aborted frame: %v", err)
	}
}

// Order returns the labels of the last frame's lists in enqueue order.
func (s *Submitter) Order() []string {
	return append([]string(nil), s.order...)
}

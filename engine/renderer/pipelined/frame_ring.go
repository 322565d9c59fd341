package pipelined

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/spaghettifunk/asteroids/engine/containers"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
)

type SlotState uint8

const (
	SlotIdle SlotState = iota
	SlotAcquired
	SlotRecording
	SlotSubmitted
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotAcquired:
		return "acquired"
	case SlotRecording:
		return "recording"
	case SlotSubmitted:
		return "submitted"
	}
	return fmt.Sprintf("slot-state(%d)", uint8(s))
}

// SlotLayout sizes the transient budgets of one frame slot. Every subset
// worker gets the same statically sized region.
type SlotLayout struct {
	Subsets     int
	Alignment   uint64
	PreBytes    uint64
	SubsetBytes uint64
	PostBytes   uint64

	PreTables    uint32
	SubsetTables uint32
	PostTables   uint32
}

func (l SlotLayout) UploadBytes() uint64 {
	return l.PreBytes + uint64(l.Subsets)*l.SubsetBytes + l.PostBytes
}

func (l SlotLayout) Tables() uint32 {
	return l.PreTables + uint32(l.Subsets)*l.SubsetTables + l.PostTables
}

// Region is the private share of a slot's budgets handed to one recorder.
type Region struct {
	Upload *LinearAllocator
	Tables *DescriptorTableAllocator
	// Context records the region's command list.
	Context gpu.CommandContext
}

func (r Region) reset() error {
	r.Upload.Reset()
	r.Tables.Reset()
	return r.Context.Reset()
}

type SlotStats struct {
	Acquisitions uint64
	// Acquisitions that found the previous use still executing.
	Waits    uint64
	WaitTime time.Duration
}

// FrameSlot is one entry of the frame ring. It exclusively owns its upload
// buffer, its descriptor tables and its command contexts.
type FrameSlot struct {
	index      int
	state      SlotState
	fenceValue uint64
	upload     gpu.UploadBuffer
	pre        Region
	subsets    []Region
	post       Region
	stats      SlotStats
}

// NewFrameSlot creates the resources of slot index. Its descriptor tables
// are the index-th run of layout.Tables() tables of heap.
func NewFrameSlot(device gpu.Device, heap gpu.DescriptorHeap, index int, layout SlotLayout) (*FrameSlot, error) {
	s := &FrameSlot{index: index}
	var err error
	if s.upload, err = device.NewUploadBuffer(layout.UploadBytes()); err != nil {
		return nil, core.CreationFailed(err, "frame slot %d upload buffer (%d bytes)", index, layout.UploadBytes())
	}

	upload := uint64(0)
	table := uint32(index) * layout.Tables()
	region := func(name string, bytes uint64, tables uint32) (Region, error) {
		var r Region
		var err error
		if r.Upload, err = NewLinearAllocator(name+" upload", s.upload, upload, bytes, layout.Alignment); err != nil {
			return r, err
		}
		if r.Tables, err = NewDescriptorTableAllocator(name+" descriptors", heap, table, tables); err != nil {
			return r, err
		}
		if r.Context, err = device.NewCommandContext(); err != nil {
			return r, core.CreationFailed(err, "%s command context", name)
		}
		upload += bytes
		table += tables
		return r, nil
	}

	if s.pre, err = region(fmt.Sprintf("slot %d pre-pass", index), layout.PreBytes, layout.PreTables); err != nil {
		s.Destroy()
		return nil, err
	}
	for i := 0; i < layout.Subsets; i++ {
		r, err := region(fmt.Sprintf("slot %d subset %d", index, i), layout.SubsetBytes, layout.SubsetTables)
		if err != nil {
			s.Destroy()
			return nil, err
		}
		s.subsets = append(s.subsets, r)
	}
	if s.post, err = region(fmt.Sprintf("slot %d post-pass", index), layout.PostBytes, layout.PostTables); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

func (s *FrameSlot) Index() int          { return s.index }
func (s *FrameSlot) State() SlotState    { return s.state }
func (s *FrameSlot) FenceValue() uint64  { return s.fenceValue }
func (s *FrameSlot) Stats() SlotStats    { return s.stats }
func (s *FrameSlot) Pre() Region         { return s.pre }
func (s *FrameSlot) Post() Region        { return s.post }
func (s *FrameSlot) SubsetCount() int    { return len(s.subsets) }
func (s *FrameSlot) Upload() gpu.Buffer  { return s.upload }
func (s *FrameSlot) Subset(i int) Region { return s.subsets[i] }

// BeginRecording moves an acquired slot to Recording.
func (s *FrameSlot) BeginRecording() error {
	if s.state != SlotAcquired {
		return errors.Newf("frame slot %d: recording from state %s", s.index, s.state)
	}
	s.state = SlotRecording
	return nil
}

func (s *FrameSlot) reset() error {
	if err := s.pre.reset(); err != nil {
		return err
	}
	for _, r := range s.subsets {
		if err := r.reset(); err != nil {
			return err
		}
	}
	return s.post.reset()
}

func (s *FrameSlot) Destroy() {
	destroy := func(r Region) {
		if r.Context != nil {
			r.Context.Destroy()
		}
	}
	destroy(s.pre)
	for _, r := range s.subsets {
		destroy(r)
	}
	destroy(s.post)
	if s.upload != nil {
		s.upload.Destroy()
		s.upload = nil
	}
}

// FrameRing rotates a fixed set of frame slots. A slot is handed out again
// only after the fence value recorded at its previous use completed.
type FrameRing struct {
	fence *Fence
	slots *containers.Rotation[*FrameSlot]
}

func NewFrameRing(fence *Fence, slots int, build func(index int) (*FrameSlot, error)) (*FrameRing, error) {
	rot, err := containers.NewRotation(slots, build)
	if err != nil {
		rot.Each(func(_ int, s *FrameSlot) { s.Destroy() })
		return nil, err
	}
	return &FrameRing{fence: fence, slots: rot}, nil
}

func (r *FrameRing) Len() int { return r.slots.Len() }

func (r *FrameRing) Slot(i int) *FrameSlot { return r.slots.At(i) }

func (r *FrameRing) wait(s *FrameSlot) error {
	if s.fenceValue != 0 && !r.fence.IsComplete(s.fenceValue) {
		start := hrtime.Now()
		if err := r.fence.WaitUntil(s.fenceValue); err != nil {
			return core.Wrapf(err, "frame slot %d", s.index)
		}
		s.stats.Waits++
		s.stats.WaitTime += hrtime.Since(start)
	}
	if s.state == SlotSubmitted {
		s.state = SlotIdle
	}
	return nil
}

// WaitNext blocks until the slot AcquireNext will return is free, without
// acquiring it.
func (r *FrameRing) WaitNext() error {
	_, s := r.slots.PeekNext()
	return r.wait(s)
}

// AcquireNext returns the next slot with its budgets rewound. It blocks while
// the GPU still executes the slot's previous frame.
func (r *FrameRing) AcquireNext() (*FrameSlot, error) {
	_, cur := r.slots.Current()
	if cur.state == SlotAcquired || cur.state == SlotRecording {
		return nil, errors.Newf("frame slot %d is still %s", cur.index, cur.state)
	}
	_, s := r.slots.PeekNext()
	if err := r.wait(s); err != nil {
		return nil, err
	}
	r.slots.Next()
	if err := s.reset(); err != nil {
		return nil, core.Wrapf(err, "resetting frame slot %d", s.index)
	}
	s.state = SlotAcquired
	s.stats.Acquisitions++
	return s, nil
}

// Retire records the fence value that marks the end of the slot's GPU work.
func (r *FrameRing) Retire(s *FrameSlot, value uint64) error {
	if s.state != SlotAcquired && s.state != SlotRecording {
		return errors.Newf("frame slot %d retired from state %s", s.index, s.state)
	}
	if value <= s.fenceValue {
		return errors.Newf("frame slot %d retired with fence value %d, previous %d", s.index, value, s.fenceValue)
	}
	s.fenceValue = value
	s.state = SlotSubmitted
	return nil
}

// Cancel hands an acquired slot back without submitting anything. Its
// previous fence value is kept.
func (r *FrameRing) Cancel(s *FrameSlot) {
	if s.state == SlotAcquired || s.state == SlotRecording {
		s.state = SlotIdle
	}
}

func (r *FrameRing) Each(fn func(s *FrameSlot)) {
	r.slots.Each(func(_ int, s *FrameSlot) { fn(s) })
}

// Destroy releases every slot. Callers drain the fence first.
func (r *FrameRing) Destroy() {
	r.slots.Each(func(_ int, s *FrameSlot) { s.Destroy() })
}

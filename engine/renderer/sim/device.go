// Package sim is an in-memory GPU. Work submitted to its queue completes
// either when a test says so (Manual) or on a background goroutine (Auto).
// Every executed command list is logged in submission order and misuse of
// resources still referenced by pending work is recorded as a hazard.
package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
)

type Mode uint8

const (
	// Manual completes queued work only through CompleteNext/CompleteThrough/CompleteAll.
	Manual Mode = iota
	// Auto completes queued work on a background goroutine.
	Auto
)

type Options struct {
	Mode Mode
	// Time each queued item takes to complete in Auto mode.
	Latency time.Duration
	Limits  gpu.Limits
	// Keep at most this many executed lists in the log. Zero keeps all.
	LogLimit int
}

// DefaultOptions matches the limits of a typical desktop device.
func DefaultOptions() Options {
	return Options{
		Mode:    Manual,
		Latency: time.Millisecond,
		Limits: gpu.Limits{
			ConstantAlignment:   256,
			MaxTexturesPerTable: 64,
		},
	}
}

// ExecutedList is a command list the simulated GPU finished.
type ExecutedList struct {
	Label    string
	Commands []Command
}

// queued is one item of the queue: either a batch of lists or a signal.
type queued struct {
	lists    []*CommandList
	timeline *Timeline
	value    uint64
}

type Device struct {
	mutex    sync.Mutex
	opts     Options
	queue    *Queue
	pending  []queued
	executed []ExecutedList
	hazards  []string
	lost     bool
	closed   bool
	// swap chain creation and resize fail while set
	refuseSwapchains bool
	nextID   uint64
	// closed and replaced whenever queued work completes
	progress chan struct{}
	wake     chan struct{}
	done     chan struct{}
}

func NewDevice(opts Options) *Device {
	if opts.Limits.ConstantAlignment == 0 {
		opts.Limits = DefaultOptions().Limits
	}
	d := &Device{
		opts:     opts,
		progress: make(chan struct{}),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	d.queue = &Queue{dev: d}
	if opts.Mode == Auto {
		go d.run()
	}
	core.LogDebug("simulated gpu created (mode=%d latency=%s)", opts.Mode, opts.Latency)
	return d
}

func (d *Device) Name() string       { return "simulated" }
func (d *Device) Limits() gpu.Limits { return d.opts.Limits }
func (d *Device) Queue() gpu.Queue   { return d.queue }

func (d *Device) id() uint64 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Device) hazard(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	core.LogError("simulated gpu hazard: %s", msg)
	d.hazards = append(d.hazards, msg)
}

// Hazards returns every misuse recorded so far.
func (d *Device) Hazards() []string {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]string(nil), d.hazards...)
}

// Executed returns the executed command lists in execution order.
func (d *Device) Executed() []ExecutedList {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]ExecutedList(nil), d.executed...)
}

// ResetLog drops the executed-list log.
func (d *Device) ResetLog() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.executed = nil
}

// Pending returns the number of queued items not completed yet.
func (d *Device) Pending() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.pending)
}

// RefuseSwapchains makes swap chain creation and resizing fail until it is
// called again with false.
func (d *Device) RefuseSwapchains(refuse bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.refuseSwapchains = refuse
}

func (d *Device) swapchainsRefused() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.refuseSwapchains
}

// LoseDevice stops all completion. Waits only return through their context.
func (d *Device) LoseDevice() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.lost = true
}

// CompleteNext completes the oldest queued item. It returns false when
// nothing is queued or the device is lost.
func (d *Device) CompleteNext() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.completeNextLocked()
}

// CompleteThrough completes queued items until t reaches value or the queue
// is empty.
func (d *Device) CompleteThrough(t gpu.Timeline, value uint64) {
	tl := t.(*Timeline)
	d.mutex.Lock()
	defer d.mutex.Unlock()
	for tl.completed < value && d.completeNextLocked() {
	}
}

// CompleteAll completes everything queued.
func (d *Device) CompleteAll() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	for d.completeNextLocked() {
	}
}

func (d *Device) completeNextLocked() bool {
	if d.lost || len(d.pending) == 0 {
		return false
	}
	item := d.pending[0]
	d.pending[0] = queued{}
	d.pending = d.pending[1:]

	for _, l := range item.lists {
		for _, r := range l.refs {
			r.busy--
		}
		d.executed = append(d.executed, ExecutedList{Label: l.label, Commands: l.commands})
		if d.opts.LogLimit > 0 && len(d.executed) > d.opts.LogLimit {
			d.executed = d.executed[len(d.executed)-d.opts.LogLimit:]
		}
	}
	if item.timeline != nil && item.value > item.timeline.completed {
		item.timeline.completed = item.value
	}
	close(d.progress)
	d.progress = make(chan struct{})
	return true
}

func (d *Device) enqueue(item queued) error {
	d.mutex.Lock()
	if d.closed {
		d.mutex.Unlock()
		return core.DeviceLost(nil, "simulated device destroyed")
	}
	d.pending = append(d.pending, item)
	d.mutex.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

func (d *Device) run() {
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		}
		for {
			if d.opts.Latency > 0 {
				select {
				case <-d.done:
					return
				case <-time.After(d.opts.Latency):
				}
			}
			if !d.CompleteNext() {
				break
			}
		}
	}
}

// waitProgress returns a channel closed at the next completion.
func (d *Device) waitProgress() <-chan struct{} {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.progress
}

func (d *Device) WaitIdle() error {
	for {
		d.mutex.Lock()
		if len(d.pending) == 0 {
			d.mutex.Unlock()
			return nil
		}
		if d.lost {
			d.mutex.Unlock()
			return core.DeviceLost(nil, "simulated device lost while idling")
		}
		ch := d.progress
		d.mutex.Unlock()
		<-ch
	}
}

// Destroy stops the completion goroutine. Work still queued is a hazard.
func (d *Device) Destroy() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.closed {
		return
	}
	if len(d.pending) > 0 {
		d.hazard("device destroyed with %d queued items", len(d.pending))
	}
	d.closed = true
	close(d.done)
}

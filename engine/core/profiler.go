package core

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/loov/hrtime"
)

// Marker names a profiled region of the frame.
type Marker uint8

const (
	MarkerFrame Marker = iota
	MarkerRender
	MarkerRenderSubmit
	MarkerRenderSubset
	MarkerFenceWait
	MarkerPresent
	MarkerFrameLockWait
	MarkerSimUpdate
	markerCount
)

var markerNames = [markerCount]string{
	"Frame", "Render", "RenderSubmit", "RenderSubset",
	"FenceWait", "Present", "FrameLockWait", "SimUpdate",
}

func (m Marker) String() string {
	if m >= markerCount {
		return "Unknown"
	}
	return markerNames[m]
}

// Profiler accumulates time spent between Begin/End pairs per marker and
// reports the per-interval averages at debug level. A nil *Profiler is valid
// and records nothing.
type Profiler struct {
	mutex    sync.Mutex
	totals   [markerCount]time.Duration
	counts   [markerCount]uint64
	averages [markerCount]time.Duration
	last     time.Duration
	interval time.Duration
}

func NewProfiler(interval time.Duration) *Profiler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Profiler{
		last:     hrtime.Now(),
		interval: interval,
	}
}

// Span is an open profiled region.
type Span struct {
	p      *Profiler
	marker Marker
	start  time.Duration
}

func (p *Profiler) Begin(m Marker) Span {
	if p == nil {
		return Span{}
	}
	return Span{p: p, marker: m, start: hrtime.Now()}
}

func (s Span) End() {
	if s.p == nil {
		return
	}
	d := hrtime.Since(s.start)
	s.p.mutex.Lock()
	s.p.totals[s.marker] += d
	s.p.counts[s.marker]++
	s.p.mutex.Unlock()
}

// Average returns the mean duration of m over the last completed interval.
func (p *Profiler) Average(m Marker) time.Duration {
	if p == nil || m >= markerCount {
		return 0
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.averages[m]
}

// Count returns the number of spans of m recorded in the current interval.
func (p *Profiler) Count(m Marker) uint64 {
	if p == nil || m >= markerCount {
		return 0
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.counts[m]
}

// Tick closes the current interval once it has elapsed and logs the averages.
// Returns true when a report was produced.
func (p *Profiler) Tick() bool {
	if p == nil {
		return false
	}
	now := hrtime.Now()
	if now-p.last < p.interval {
		return false
	}

	p.mutex.Lock()
	var sb strings.Builder
	for m := Marker(0); m < markerCount; m++ {
		if p.counts[m] == 0 {
			p.averages[m] = 0
			continue
		}
		p.averages[m] = p.totals[m] / time.Duration(p.counts[m])
		fmt.Fprintf(&sb, "%s=%.3fms ", m, float64(p.averages[m].Microseconds())/1000.0)
		p.totals[m] = 0
		p.counts[m] = 0
	}
	p.last = now
	p.mutex.Unlock()

	if sb.Len() > 0 {
		LogDebug("[Profiler] %s", strings.TrimSpace(sb.String()))
	}
	return true
}

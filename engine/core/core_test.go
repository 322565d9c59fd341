package core

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	lost := DeviceLost(nil, "fence %d", 7)
	assert.True(t, errors.Is(lost, ErrDeviceLost))
	assert.True(t, IsFatal(lost))
	assert.Contains(t, lost.Error(), "fence 7")

	wrapped := Wrapf(lost, "frame slot %d", 1)
	assert.True(t, errors.Is(wrapped, ErrDeviceLost))

	overflow := CapacityExceeded("upload heap", 512, 100)
	assert.True(t, errors.Is(overflow, ErrCapacityExceeded))
	assert.True(t, IsFatal(overflow))

	created := CreationFailed(errors.New("out of memory"), "creating buffer")
	assert.True(t, errors.Is(created, ErrCreationFailed))

	assert.False(t, IsFatal(ErrSwapchainBooting))
	assert.False(t, IsFatal(nil))
}

func TestMetricsSmoothing(t *testing.T) {
	m := &MetricsState{}
	m.update(0.010)
	assert.InDelta(t, 10.0, m.SmoothedMS, 1e-9)
	m.update(0.020)
	assert.InDelta(t, 12.0, m.SmoothedMS, 1e-9)

	for i := 0; i < int(AVG_COUNT); i++ {
		m.update(0.016)
	}
	assert.InDelta(t, 16.0, m.MSavg, 1e-9)
}

func TestProfilerNilIsNoop(t *testing.T) {
	var p *Profiler
	p.Begin(MarkerFrame).End()
	assert.False(t, p.Tick())
	assert.Equal(t, time.Duration(0), p.Average(MarkerFrame))
}

func TestProfilerAverages(t *testing.T) {
	p := NewProfiler(time.Nanosecond)
	s := p.Begin(MarkerFenceWait)
	time.Sleep(time.Millisecond)
	s.End()
	time.Sleep(time.Millisecond)
	require.True(t, p.Tick())
	assert.GreaterOrEqual(t, p.Average(MarkerFenceWait), time.Millisecond)
	assert.Equal(t, "FenceWait", MarkerFenceWait.String())
}

func TestEventDispatchOrder(t *testing.T) {
	require.True(t, EventSystemInitialize())
	defer EventSystemShutdown()

	var got []EventCode
	EventRegister(EVENT_CODE_KEY_PRESSED, func(c EventContext) bool {
		got = append(got, c.Type)
		return false
	})
	EventRegister(EVENT_CODE_RESIZED, func(c EventContext) bool {
		got = append(got, c.Type)
		return true
	})
	EventRegister(EVENT_CODE_RESIZED, func(c EventContext) bool {
		t.Fatal("propagation should stop at the first handler")
		return false
	})

	assert.True(t, EventFire(EventContext{Type: EVENT_CODE_RESIZED, Data: &SystemEvent{WindowWidth: 1920, WindowHeight: 1080}}))
	assert.True(t, EventFire(EventContext{Type: EVENT_CODE_KEY_PRESSED, Data: &KeyEvent{KeyCode: KEY_V}}))
	assert.False(t, EventFire(EventContext{Type: EVENT_CODE_MOUSE_WHEEL}))
	assert.Empty(t, got)

	assert.Equal(t, 2, EventDispatch())
	assert.Equal(t, []EventCode{EVENT_CODE_RESIZED, EVENT_CODE_KEY_PRESSED}, got)
}

package core

import "sync"

const AVG_COUNT uint8 = 30

// SMOOTHING_ALPHA weights the newest frame in the exponentially smoothed frame time.
const SMOOTHING_ALPHA float64 = 0.2

type MetricsState struct {
	FrameAVGCounter    uint8
	MStimes            [AVG_COUNT]float64
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64
	SmoothedMS         float64
}

var onceMetrics sync.Once
var metricsState *MetricsState = nil

func MetricsInitialize() error {
	onceMetrics.Do(func() {
		metricsState = &MetricsState{
			MStimes: [AVG_COUNT]float64{0},
		}
	})
	return nil
}

func MetricsUpdate(frameElapsedTime float64) {
	metricsState.update(frameElapsedTime)
}

func (m *MetricsState) update(frameElapsedTime float64) {
	// Calculate frame ms average
	frameMS := frameElapsedTime * 1000.0
	m.MStimes[m.FrameAVGCounter] = frameMS
	if m.FrameAVGCounter == AVG_COUNT-1 {
		m.MSavg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			m.MSavg += m.MStimes[i]
		}
		m.MSavg /= float64(AVG_COUNT)
	}
	m.FrameAVGCounter++
	m.FrameAVGCounter %= AVG_COUNT

	if m.SmoothedMS == 0 {
		m.SmoothedMS = frameMS
	} else {
		m.SmoothedMS = SMOOTHING_ALPHA*frameMS + (1.0-SMOOTHING_ALPHA)*m.SmoothedMS
	}

	// Calculate Frames per second.
	m.AccumulatedFrameMS += frameMS
	if m.AccumulatedFrameMS > 1000 {
		m.FPS = float64(m.Frames)
		m.AccumulatedFrameMS -= 1000
		m.Frames = 0
	}

	// Count all Frames.
	m.Frames++
}

func MetricsFrameTime() float64 {
	return metricsState.MSavg
}

// MetricsSmoothedFPS is the frame rate derived from the smoothed frame time.
func MetricsSmoothedFPS() float64 {
	if metricsState.SmoothedMS <= 0 {
		return 0
	}
	return 1000.0 / metricsState.SmoothedMS
}

func MetricsFrame() (float64, float64) {
	return metricsState.FPS, metricsState.MSavg
}

package core

import (
	"time"

	"github.com/spaghettifunk/vkframe/engine/containers"
)

const AVG_COUNT = 30

// FrameMetrics keeps a rolling average of frame times and a frames per
// second counter that is refreshed once every accumulated second.
type FrameMetrics struct {
	frameTimes         *containers.RingQueue[float64]
	msAvg              float64
	frames             int
	accumulatedFrameMS float64
	fps                float64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{
		frameTimes: containers.NewRingQueue[float64](AVG_COUNT),
	}
}

// Update records one frame. It reports true when a full second has been
// accumulated and FPS holds a fresh value.
func (m *FrameMetrics) Update(frame time.Duration) bool {
	frameMS := float64(frame.Microseconds()) / 1000.0

	m.frameTimes.Push(frameMS)
	var sum float64
	m.frameTimes.Each(func(v float64) { sum += v })
	m.msAvg = sum / float64(m.frameTimes.Len())

	m.frames++
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS >= 1000 {
		m.fps = float64(m.frames) * 1000.0 / m.accumulatedFrameMS
		m.frames = 0
		m.accumulatedFrameMS = 0
		return true
	}
	return false
}

func (m *FrameMetrics) FPS() float64 {
	return m.fps
}

// FrameTime is the rolling average frame time in milliseconds.
func (m *FrameMetrics) FrameTime() float64 {
	return m.msAvg
}

func (m *FrameMetrics) Frame() (float64, float64) {
	return m.fps, m.msAvg
}

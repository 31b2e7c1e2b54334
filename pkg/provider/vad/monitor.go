package vad

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/MrWong99/vadcal/pkg/types"
)

// Compile-time interface assertion.
var _ ProbabilitySource = (*Monitor)(nil)

// MonitorOption configures a [Monitor] during construction.
type MonitorOption func(*Monitor)

// WithGated starts the monitor with probability processing switched off, as in
// push-to-talk or wake-word modes. Frames passed to [Monitor.Feed] are dropped
// until [Monitor.ResumeProcessing] is called.
func WithGated() MonitorOption {
	return func(m *Monitor) {
		m.processing.Store(false)
	}
}

// Monitor adapts a [SessionHandle] into a [ProbabilitySource]. The audio input
// loop calls [Monitor.Feed] for every captured frame; the calibration sampler
// reads [Monitor.Current] on its own schedule.
//
// Feed must be called from a single goroutine (the session is not shared);
// every other method is safe for concurrent use.
type Monitor struct {
	session    SessionHandle
	processing atomic.Bool
	needsReset atomic.Bool
	latest     atomic.Uint64 // math.Float64bits of the last probability
}

// NewMonitor creates a [Monitor] over session. Processing is on unless
// [WithGated] is given.
func NewMonitor(session SessionHandle, opts ...MonitorOption) *Monitor {
	m := &Monitor{session: session}
	m.processing.Store(true)
	for _, o := range opts {
		o(m)
	}
	return m
}

// Feed scores frame with the underlying session and records its probability.
// When processing is paused the frame is dropped and Feed returns nil.
func (m *Monitor) Feed(frame types.AudioFrame) error {
	if !m.processing.Load() {
		return nil
	}
	if m.needsReset.Swap(false) {
		m.session.Reset()
	}
	ev, err := m.session.ProcessFrame(frame.Data)
	if err != nil {
		return fmt.Errorf("vad: process frame: %w", err)
	}
	p := min(max(ev.Probability, 0), 1)
	m.latest.Store(math.Float64bits(p))
	return nil
}

// Current returns the probability of the most recently processed frame.
func (m *Monitor) Current() float64 {
	return math.Float64frombits(m.latest.Load())
}

// IsProcessing reports whether frames are currently being scored.
func (m *Monitor) IsProcessing() bool {
	return m.processing.Load()
}

// ResumeProcessing switches frame scoring on.
func (m *Monitor) ResumeProcessing() {
	m.processing.Store(true)
}

// PauseProcessing switches frame scoring off and clears the last probability
// to 0. The session is reset on the next fed frame after resuming, from the
// Feed goroutine, so stale smoothing state does not leak across the pause.
func (m *Monitor) PauseProcessing() {
	if m.processing.Swap(false) {
		m.needsReset.Store(true)
		m.latest.Store(0)
	}
}

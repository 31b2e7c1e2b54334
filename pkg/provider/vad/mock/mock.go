// Package mock provides test doubles for the vad package interfaces.
//
// Use Session to inject VADEvent responses and inspect the frames that were
// submitted for processing. Use Source as a scripted [vad.ProbabilitySource]
// that records every processing-switch call.
//
// Example:
//
//	src := &mock.Source{Values: []float64{0.1, 0.1, 0.9}, Processing: false}
//	eng := calibrate.New(calibrate.Deps{Source: src, ...})
package mock

import (
	"sync"

	"github.com/MrWong99/vadcal/pkg/provider/vad"
	"github.com/MrWong99/vadcal/pkg/types"
)

// ProcessFrameCall records a single invocation of Session.ProcessFrame.
type ProcessFrameCall struct {
	// Frame is a copy of the bytes passed to ProcessFrame.
	Frame []byte
}

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// EventResult is returned by every ProcessFrame call.
	EventResult types.VADEvent

	// ProcessFrameErr, if non-nil, is returned by every ProcessFrame call.
	ProcessFrameErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// ProcessFrameCalls records every call to ProcessFrame in order.
	ProcessFrameCalls []ProcessFrameCall

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// ProcessFrame records the call and returns EventResult, ProcessFrameErr.
func (s *Session) ProcessFrame(frame []byte) (types.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.ProcessFrameCalls = append(s.ProcessFrameCalls, ProcessFrameCall{Frame: cp})
	return s.EventResult, s.ProcessFrameErr
}

// SetEventResult replaces EventResult. Thread-safe.
func (s *Session) SetEventResult(ev types.VADEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EventResult = ev
}

// Reset records the call by incrementing ResetCallCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// Ensure Session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*Session)(nil)

// Source is a mock implementation of vad.ProbabilitySource.
//
// Current walks through Values one call at a time and keeps returning the last
// value once the script is exhausted. An empty script returns Value.
type Source struct {
	mu sync.Mutex

	// Values is the scripted probability sequence returned by Current.
	Values []float64

	// Value is returned by Current when Values is empty.
	Value float64

	// Processing is the current state of the processing switch.
	Processing bool

	// --- Call records ---

	// CurrentCallCount is the number of times Current was called.
	CurrentCallCount int

	// ResumeCallCount is the number of times ResumeProcessing was called.
	ResumeCallCount int

	// PauseCallCount is the number of times PauseProcessing was called.
	PauseCallCount int
}

// Current records the call and returns the next scripted value.
func (s *Source) Current() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.CurrentCallCount
	s.CurrentCallCount++
	if len(s.Values) == 0 {
		return s.Value
	}
	if idx >= len(s.Values) {
		idx = len(s.Values) - 1
	}
	return s.Values[idx]
}

// SetValue replaces the scripted sequence with a constant value. Thread-safe.
func (s *Source) SetValue(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Values = nil
	s.Value = v
}

// IsProcessing returns Processing.
func (s *Source) IsProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Processing
}

// ResumeProcessing records the call and sets Processing to true.
func (s *Source) ResumeProcessing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResumeCallCount++
	s.Processing = true
}

// PauseProcessing records the call and sets Processing to false.
func (s *Source) PauseProcessing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PauseCallCount++
	s.Processing = false
}

// Calls returns the Current, Resume and Pause call counts. Thread-safe.
func (s *Source) Calls() (current, resume, pause int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CurrentCallCount, s.ResumeCallCount, s.PauseCallCount
}

// Ensure Source implements vad.ProbabilitySource at compile time.
var _ vad.ProbabilitySource = (*Source)(nil)

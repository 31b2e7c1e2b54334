// Package mock provides a test double for [settings.Sink] that records every
// update and can be told to fail for individual keys.
package mock

import (
	"sync"

	"github.com/MrWong99/vadcal/pkg/settings"
)

// Update records a single call to Sink.UpdateParameter.
type Update struct {
	Key   settings.Key
	Value any
}

// Sink is a mock implementation of settings.Sink.
type Sink struct {
	mu sync.Mutex

	// Values holds the current parameter values. Nil is treated as empty.
	Values map[settings.Key]any

	// UpdateErrs maps keys to the error UpdateParameter returns for them. A
	// failed update leaves Values unchanged.
	UpdateErrs map[settings.Key]error

	// --- Call records ---

	// Updates records every UpdateParameter call in order, including failed
	// ones.
	Updates []Update
}

// NewSink returns a Sink seeded with the given values.
func NewSink(values map[settings.Key]any) *Sink {
	return &Sink{Values: values}
}

// UpdateParameter records the call and stores value unless an error is
// configured for key.
func (s *Sink) UpdateParameter(key settings.Key, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Updates = append(s.Updates, Update{Key: key, Value: value})
	if err := s.UpdateErrs[key]; err != nil {
		return err
	}
	if s.Values == nil {
		s.Values = make(map[settings.Key]any)
	}
	s.Values[key] = value
	return nil
}

// Parameter returns Values[key].
func (s *Sink) Parameter(key settings.Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Values[key]
	return v, ok
}

// SetUpdateErr configures err for key. Thread-safe.
func (s *Sink) SetUpdateErr(key settings.Key, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErrs == nil {
		s.UpdateErrs = make(map[settings.Key]error)
	}
	s.UpdateErrs[key] = err
}

// Value returns Values[key]. Thread-safe.
func (s *Sink) Value(key settings.Key) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Values[key]
}

// Calls returns a copy of the recorded updates. Thread-safe.
func (s *Sink) Calls() []Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Update, len(s.Updates))
	copy(out, s.Updates)
	return out
}

// Ensure Sink implements settings.Sink at compile time.
var _ settings.Sink = (*Sink)(nil)

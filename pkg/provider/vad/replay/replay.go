// Package replay implements a [vad.ProbabilitySource] that plays back a
// recorded or hand-written probability trace in real time.
//
// Traces are YAML documents describing either raw per-frame probabilities or a
// list of constant segments:
//
//	frame_ms: 32
//	segments:
//	  - {probability: 0.05, duration_ms: 1500}
//	  - {probability: 0.85, duration_ms: 2400}
//	probabilities: [0.1, 0.12, 0.9]   # appended after segments
//
// The source is used for offline calibration runs and for reproducing field
// reports without a microphone.
package replay

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/vadcal/pkg/provider/vad"
)

// DefaultFrameMs is the frame duration assumed when a trace omits frame_ms.
const DefaultFrameMs = 32

// Compile-time interface assertion.
var _ vad.ProbabilitySource = (*Source)(nil)

// Segment is a run of frames sharing one probability.
type Segment struct {
	Probability float64 `yaml:"probability"`
	DurationMs  int     `yaml:"duration_ms"`
}

// Trace is a probability signal sampled at a fixed frame rate.
type Trace struct {
	FrameMs       int       `yaml:"frame_ms"`
	Segments      []Segment `yaml:"segments"`
	Probabilities []float64 `yaml:"probabilities"`
}

// Frame is a single expanded trace point.
type Frame struct {
	// TimeMs is the frame start relative to the beginning of the trace.
	TimeMs float64

	// Probability is the speech probability of the frame.
	Probability float64
}

// Load reads and validates the trace file at path.
func Load(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: open %q: %w", path, err)
	}
	defer f.Close()

	tr, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("replay: parse %q: %w", path, err)
	}
	return tr, nil
}

// Decode reads a YAML trace from r and validates it.
func Decode(r io.Reader) (*Trace, error) {
	tr := &Trace{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(tr); err != nil {
		return nil, fmt.Errorf("replay: decode yaml: %w", err)
	}
	if tr.FrameMs == 0 {
		tr.FrameMs = DefaultFrameMs
	}
	if err := tr.Validate(); err != nil {
		return nil, err
	}
	return tr, nil
}

// Validate checks that every value in the trace is usable.
func (t *Trace) Validate() error {
	var errs []error
	if t.FrameMs <= 0 {
		errs = append(errs, fmt.Errorf("frame_ms %d must be positive", t.FrameMs))
	}
	for i, s := range t.Segments {
		if s.Probability < 0 || s.Probability > 1 || math.IsNaN(s.Probability) {
			errs = append(errs, fmt.Errorf("segments[%d].probability %.3f is out of range [0, 1]", i, s.Probability))
		}
		if s.DurationMs <= 0 {
			errs = append(errs, fmt.Errorf("segments[%d].duration_ms %d must be positive", i, s.DurationMs))
		}
	}
	for i, p := range t.Probabilities {
		if p < 0 || p > 1 || math.IsNaN(p) {
			errs = append(errs, fmt.Errorf("probabilities[%d] %.3f is out of range [0, 1]", i, p))
		}
	}
	return errors.Join(errs...)
}

// Values expands the trace into one probability per frame.
func (t *Trace) Values() []float64 {
	frameMs := t.frameMs()
	var out []float64
	for _, s := range t.Segments {
		n := (s.DurationMs + frameMs - 1) / frameMs
		for range n {
			out = append(out, s.Probability)
		}
	}
	return append(out, t.Probabilities...)
}

// Frames expands the trace into timestamped frames starting at 0 ms.
func (t *Trace) Frames() []Frame {
	vals := t.Values()
	frames := make([]Frame, len(vals))
	for i, p := range vals {
		frames[i] = Frame{TimeMs: float64(i * t.frameMs()), Probability: p}
	}
	return frames
}

// Duration returns the total playback length of the trace.
func (t *Trace) Duration() time.Duration {
	return time.Duration(len(t.Values())*t.frameMs()) * time.Millisecond
}

func (t *Trace) frameMs() int {
	if t.FrameMs <= 0 {
		return DefaultFrameMs
	}
	return t.FrameMs
}

// Option configures a [Source].
type Option func(*Source)

// WithClock replaces the wall clock used to position playback. Intended for
// tests.
func WithClock(now func() time.Time) Option {
	return func(s *Source) {
		if now != nil {
			s.now = now
		}
	}
}

// WithGated starts the source with processing switched off.
func WithGated() Option {
	return func(s *Source) {
		s.processing = false
	}
}

// Source plays a [Trace] back in real time. Current returns the value of the
// frame under the playhead; once the trace is exhausted the last value is held.
// While processing is paused Current returns 0.
//
// All methods are safe for concurrent use.
type Source struct {
	now func() time.Time

	mu         sync.Mutex
	values     []float64
	frameMs    int
	started    time.Time
	processing bool
}

// New creates an idle [Source]. Call [Source.Play] to load a trace.
func New(opts ...Option) *Source {
	s := &Source{
		now:        time.Now,
		frameMs:    DefaultFrameMs,
		processing: true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Play replaces the current trace with tr and rewinds the playhead to now.
func (s *Source) Play(tr *Trace) {
	vals := tr.Values()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = vals
	s.frameMs = tr.frameMs()
	s.started = s.now()
}

// Current returns the probability under the playhead.
func (s *Source) Current() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.processing || len(s.values) == 0 {
		return 0
	}
	elapsed := s.now().Sub(s.started)
	idx := int(elapsed / (time.Duration(s.frameMs) * time.Millisecond))
	idx = min(max(idx, 0), len(s.values)-1)
	return s.values[idx]
}

// IsProcessing reports whether the source is producing probabilities.
func (s *Source) IsProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// ResumeProcessing switches the source on.
func (s *Source) ResumeProcessing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = true
}

// PauseProcessing switches the source off.
func (s *Source) PauseProcessing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = false
}

package calibrate

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/vadcal/pkg/provider/vad"
)

// DefaultTickInterval is one 512-sample VAD frame at 16 kHz.
const DefaultTickInterval = 32 * time.Millisecond

// Sampler reads a [vad.ProbabilitySource] once per tick.
type Sampler struct {
	interval time.Duration
	now      func() time.Time
}

// NewSampler returns a Sampler that ticks every interval and timestamps
// readings with now. Zero values select [DefaultTickInterval] and time.Now.
func NewSampler(interval time.Duration, now func() time.Time) *Sampler {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Sampler{interval: interval, now: now}
}

// Start begins sampling src on a new goroutine and returns the handle that
// stops it. Timestamps are milliseconds since Start. The loop also ends when
// ctx is cancelled; the samples collected so far stay available to Stop.
func (s *Sampler) Start(ctx context.Context, src vad.ProbabilitySource) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	origin := s.now()

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p := src.Current()
				ts := float64(s.now().Sub(origin)) / float64(time.Millisecond)
				h.mu.Lock()
				h.samples = append(h.samples, Sample{Probability: p, Timestamp: ts})
				h.mu.Unlock()
			}
		}
	}()
	return h
}

// Handle controls one running sampling loop.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	samples []Sample
}

// Stop halts the loop, waits for it to exit and returns the collected samples
// in timestamp order. Later calls return nil.
func (h *Handle) Stop() []Sample {
	h.cancel()
	<-h.done

	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.samples
	h.samples = nil
	return out
}

// Len returns the number of samples collected so far.
func (h *Handle) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.samples)
}

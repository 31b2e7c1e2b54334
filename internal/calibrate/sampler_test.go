package calibrate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/vadcal/pkg/provider/vad/mock"
)

// fakeClock advances by step on every call.
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newFakeClock(step time.Duration) *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0), step: step}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSampler_CollectsInOrder(t *testing.T) {
	src := &mock.Source{Values: []float64{0.1, 0.2, 0.3, 0.4, 0.5}, Processing: true}
	clock := newFakeClock(32 * time.Millisecond)
	h := NewSampler(time.Millisecond, clock.Now).Start(context.Background(), src)

	waitFor(t, "5 samples", func() bool { return h.Len() >= 5 })
	samples := h.Stop()

	if len(samples) < 5 {
		t.Fatalf("got %d samples, want ≥ 5", len(samples))
	}
	for i, want := range []float64{0.1, 0.2, 0.3, 0.4, 0.5} {
		if samples[i].Probability != want {
			t.Errorf("sample %d probability = %.1f, want %.1f", i, samples[i].Probability, want)
		}
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].Timestamp <= samples[i-1].Timestamp {
			t.Fatalf("timestamps not ascending at %d: %v", i, samples)
		}
	}
	// The origin read happens once at Start, so the first sample is one step in.
	if samples[0].Timestamp != 32 {
		t.Errorf("first timestamp = %.1f ms, want 32", samples[0].Timestamp)
	}
}

func TestSampler_StopHaltsLoop(t *testing.T) {
	src := &mock.Source{Value: 0.5, Processing: true}
	h := NewSampler(time.Millisecond, nil).Start(context.Background(), src)
	waitFor(t, "first sample", func() bool { return h.Len() > 0 })

	first := h.Stop()
	calls, _, _ := src.Calls()
	time.Sleep(10 * time.Millisecond)
	after, _, _ := src.Calls()

	if len(first) == 0 {
		t.Fatal("no samples returned")
	}
	if after != calls {
		t.Errorf("source polled %d more times after Stop", after-calls)
	}
	if again := h.Stop(); again != nil {
		t.Errorf("second Stop returned %d samples, want nil", len(again))
	}
}

func TestSampler_ContextCancelKeepsSamples(t *testing.T) {
	src := &mock.Source{Value: 0.3, Processing: true}
	ctx, cancel := context.WithCancel(context.Background())
	h := NewSampler(time.Millisecond, nil).Start(ctx, src)
	waitFor(t, "samples", func() bool { return h.Len() >= 2 })
	cancel()

	if got := h.Stop(); len(got) < 2 {
		t.Errorf("got %d samples after cancel, want ≥ 2", len(got))
	}
}

func TestNewSampler_Defaults(t *testing.T) {
	s := NewSampler(0, nil)
	if s.interval != DefaultTickInterval {
		t.Errorf("interval = %v, want %v", s.interval, DefaultTickInterval)
	}
	if s.now == nil {
		t.Error("clock not defaulted")
	}
}

package replay

import (
	"strings"
	"testing"
	"time"
)

const sampleTrace = `
frame_ms: 20
segments:
  - {probability: 0.1, duration_ms: 100}
  - {probability: 0.9, duration_ms: 50}
probabilities: [0.3, 0.4]
`

func TestDecode_ExpandsSegments(t *testing.T) {
	tr, err := Decode(strings.NewReader(sampleTrace))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	vals := tr.Values()
	// 100/20 = 5 frames, ceil(50/20) = 3 frames, plus 2 raw values.
	if len(vals) != 10 {
		t.Fatalf("len(Values()) = %d, want 10", len(vals))
	}
	if vals[4] != 0.1 || vals[5] != 0.9 || vals[8] != 0.3 || vals[9] != 0.4 {
		t.Errorf("unexpected values %v", vals)
	}
	if d := tr.Duration(); d != 200*time.Millisecond {
		t.Errorf("Duration() = %v, want 200ms", d)
	}

	frames := tr.Frames()
	if frames[3].TimeMs != 60 {
		t.Errorf("frames[3].TimeMs = %v, want 60", frames[3].TimeMs)
	}
}

func TestDecode_DefaultFrameMs(t *testing.T) {
	tr, err := Decode(strings.NewReader("probabilities: [0.5]\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tr.FrameMs != DefaultFrameMs {
		t.Errorf("FrameMs = %d, want %d", tr.FrameMs, DefaultFrameMs)
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"probability out of range", "segments:\n  - {probability: 1.5, duration_ms: 10}\n", "segments[0].probability"},
		{"zero duration", "segments:\n  - {probability: 0.5, duration_ms: 0}\n", "segments[0].duration_ms"},
		{"probability not a number", "segments:\n  - {probability: .nan, duration_ms: 10}\n", "segments[0].probability"},
		{"raw out of range", "probabilities: [0.2, -0.1]\n", "probabilities[1]"},
		{"raw not a number", "probabilities: [.nan]\n", "probabilities[0]"},
		{"negative frame", "frame_ms: -5\n", "frame_ms"},
		{"unknown field", "framems: 5\n", "framems"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestSource_PlaybackFollowsClock(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }
	s := New(WithClock(clock))

	if got := s.Current(); got != 0 {
		t.Errorf("Current() before Play = %v, want 0", got)
	}

	s.Play(&Trace{FrameMs: 10, Probabilities: []float64{0.1, 0.2, 0.3}})
	if got := s.Current(); got != 0.1 {
		t.Errorf("Current() at 0ms = %v, want 0.1", got)
	}
	now = now.Add(15 * time.Millisecond)
	if got := s.Current(); got != 0.2 {
		t.Errorf("Current() at 15ms = %v, want 0.2", got)
	}
	now = now.Add(time.Second)
	if got := s.Current(); got != 0.3 {
		t.Errorf("Current() past end = %v, want last value 0.3", got)
	}
}

func TestSource_ProcessingSwitch(t *testing.T) {
	s := New(WithGated())
	s.Play(&Trace{Probabilities: []float64{0.7}})

	if s.IsProcessing() {
		t.Fatal("gated source should not be processing")
	}
	if got := s.Current(); got != 0 {
		t.Errorf("Current() while paused = %v, want 0", got)
	}
	s.ResumeProcessing()
	if got := s.Current(); got != 0.7 {
		t.Errorf("Current() after resume = %v, want 0.7", got)
	}
	s.PauseProcessing()
	if s.IsProcessing() {
		t.Error("IsProcessing() = true after pause")
	}
}

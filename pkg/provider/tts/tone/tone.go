// Package tone provides an offline tts.Provider that renders text as a
// syllable-modulated sine tone. It has no network dependency and produces a
// deterministic duration per character, which makes it suitable for dry runs
// of the calibration flow and for tests that need real PCM timing.
package tone

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"time"

	"github.com/MrWong99/vadcal/pkg/provider/tts"
	"github.com/MrWong99/vadcal/pkg/types"
)

const (
	// DefaultSampleRate is the PCM output rate in Hz.
	DefaultSampleRate = 16000

	// DefaultCharDuration is the rendered duration of one character at rate 1.0.
	DefaultCharDuration = 60 * time.Millisecond

	chunkDuration = 20 * time.Millisecond
	syllable      = 180 * time.Millisecond
	baseFrequency = 220.0
	amplitude     = 0.3
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Option configures a [Provider].
type Option func(*Provider)

// WithSampleRate sets the PCM output rate.
func WithSampleRate(hz int) Option {
	return func(p *Provider) {
		if hz > 0 {
			p.sampleRate = hz
		}
	}
}

// WithCharDuration sets the rendered length of one character at rate 1.0.
func WithCharDuration(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.charDuration = d
		}
	}
}

// Provider synthesises mono signed 16-bit little-endian PCM.
type Provider struct {
	sampleRate   int
	charDuration time.Duration
}

// New creates a tone [Provider].
func New(opts ...Option) *Provider {
	p := &Provider{
		sampleRate:   DefaultSampleRate,
		charDuration: DefaultCharDuration,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SampleRate returns the PCM output rate in Hz.
func (p *Provider) SampleRate() int {
	return p.sampleRate
}

// Duration returns how long text renders at the given speed factor.
func (p *Provider) Duration(text string, speed float64) time.Duration {
	if speed <= 0 {
		speed = 1
	}
	n := len([]rune(strings.TrimSpace(text)))
	return time.Duration(float64(time.Duration(n)*p.charDuration) / speed)
}

// SynthesizeStream collects all text fragments, then emits the tone in 20 ms
// chunks. voice.SpeedFactor scales the duration and voice.PitchShift shifts the
// carrier by semitones.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	out := make(chan []byte, 8)
	go func() {
		defer close(out)

		var sb strings.Builder
		for {
			select {
			case <-ctx.Done():
				return
			case frag, ok := <-text:
				if !ok {
					p.render(ctx, out, sb.String(), voice)
					return
				}
				sb.WriteString(frag)
			}
		}
	}()
	return out, nil
}

// render writes the PCM for s to out until done or ctx is cancelled.
func (p *Provider) render(ctx context.Context, out chan<- []byte, s string, voice types.VoiceProfile) {
	total := samplesIn(p.Duration(s, voice.SpeedFactor), p.sampleRate)
	perChunk := samplesIn(chunkDuration, p.sampleRate)
	perSyllable := float64(samplesIn(syllable, p.sampleRate))
	freq := baseFrequency * math.Pow(2, voice.PitchShift/12)

	for start := 0; start < total; start += perChunk {
		n := min(perChunk, total-start)
		buf := make([]byte, n*2)
		for i := range n {
			idx := start + i
			t := float64(idx) / float64(p.sampleRate)
			env := math.Sin(math.Pi * math.Mod(float64(idx), perSyllable) / perSyllable)
			v := amplitude * env * math.Sin(2*math.Pi*freq*t)
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(v*math.MaxInt16)))
		}
		select {
		case <-ctx.Done():
			return
		case out <- buf:
		}
	}
}

func samplesIn(d time.Duration, rate int) int {
	return int(int64(d) * int64(rate) / int64(time.Second))
}

// ListVoices returns the single built-in voice.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	return []types.VoiceProfile{{
		ID:          "tone",
		Name:        "Sine tone",
		Provider:    "tone",
		SpeedFactor: 1.0,
	}}, nil
}

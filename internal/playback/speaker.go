// Package playback plays synthesised speech to an audio output. It implements
// [tts.Speaker] on top of any streaming [tts.Provider].
package playback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/vadcal/pkg/audio"
	"github.com/MrWong99/vadcal/pkg/provider/tts"
	"github.com/MrWong99/vadcal/pkg/types"
)

// Speaking rate bounds accepted by [Speaker.Speak].
const (
	MinRate = 0.5
	MaxRate = 2.0
)

// Compile-time interface assertion.
var _ tts.Speaker = (*Speaker)(nil)

// Option configures a [Speaker].
type Option func(*Speaker)

// WithVoice selects the voice passed to the provider.
func WithVoice(v types.VoiceProfile) Option {
	return func(s *Speaker) { s.voice = v }
}

// WithFormat sets the PCM format the provider emits. Default: 16 kHz mono.
func WithFormat(f audio.Format) Option {
	return func(s *Speaker) { s.format = f }
}

// WithRealtime paces output so each chunk is written no earlier than its
// playback position. Without it chunks are written as fast as they arrive,
// which suits devices that block on write. Enabled by default.
func WithRealtime(on bool) Option {
	return func(s *Speaker) { s.realtime = on }
}

// Speaker synthesises utterances and writes the PCM to an output.
//
// One utterance plays at a time; Speak preempts any utterance still playing.
type Speaker struct {
	provider tts.Provider
	out      io.Writer
	voice    types.VoiceProfile
	format   audio.Format
	realtime bool

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// New creates a Speaker that writes audio from provider to out.
func New(provider tts.Provider, out io.Writer, opts ...Option) *Speaker {
	s := &Speaker{
		provider: provider,
		out:      out,
		format:   audio.Format{SampleRate: 16000, Channels: 1},
		realtime: true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Speak implements [tts.Speaker]. rate is clamped to [MinRate, MaxRate].
func (s *Speaker) Speak(ctx context.Context, text string, rate float64) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.mu.Unlock()
	defer s.release(seq)

	voice := s.voice
	voice.SpeedFactor = min(max(rate, MinRate), MaxRate)

	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	audioCh, err := s.provider.SynthesizeStream(ctx, textCh, voice)
	if err != nil {
		return fmt.Errorf("playback: synthesize: %w", err)
	}

	start := time.Now()
	var played time.Duration
	for {
		select {
		case <-ctx.Done():
			go audio.Drain(audioCh)
			return ctx.Err()
		case chunk, ok := <-audioCh:
			if !ok {
				// Let the tail of the buffer play out.
				if err := s.waitUntil(ctx, start.Add(played)); err != nil {
					return err
				}
				slog.Debug("utterance played", "chars", len(text), "duration", played)
				return nil
			}
			if err := s.waitUntil(ctx, start.Add(played)); err != nil {
				go audio.Drain(audioCh)
				return err
			}
			if _, err := s.out.Write(chunk); err != nil {
				go audio.Drain(audioCh)
				return fmt.Errorf("playback: write audio: %w", err)
			}
			played += s.format.Duration(len(chunk))
		}
	}
}

// Cancel implements [tts.Speaker].
func (s *Speaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Speaker) release(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq == seq {
		s.cancel = nil
	}
}

// waitUntil blocks until t in realtime mode, or until ctx is done.
func (s *Speaker) waitUntil(ctx context.Context, t time.Time) error {
	if !s.realtime {
		return ctx.Err()
	}
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package resilience

import (
	"context"

	"github.com/MrWong99/vadcal/pkg/provider/tts"
	"github.com/MrWong99/vadcal/pkg/types"
)

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// TTSFallback is a [tts.Provider] that fails over across backends. Only stream
// setup is covered: once a backend has returned its audio channel, mid-stream
// failures surface as a short stream.
//
// All backends must emit the same PCM format.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// NewTTSFallback creates a [TTSFallback] preferring primary.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg CircuitBreakerConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers provider behind the existing backends.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Group exposes the underlying group, e.g. to inspect breaker state.
func (f *TTSFallback) Group() *FallbackGroup[tts.Provider] {
	return f.group
}

// SynthesizeStream implements [tts.Provider].
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	return Execute(f.group, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, voice)
	})
}

// ListVoices implements [tts.Provider].
func (f *TTSFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return Execute(f.group, func(p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

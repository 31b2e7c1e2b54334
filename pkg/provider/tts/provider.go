// Package tts defines the Provider interface for Text-to-Speech backends and
// the Speaker interface for blocking utterance playback.
//
// A TTS provider wraps a speech synthesis service and presents a uniform
// streaming interface: SynthesizeStream accepts a channel of text fragments and
// returns a channel of raw PCM audio bytes as they become available.
//
// A [Speaker] sits one level higher: it synthesises a complete utterance,
// plays it out, and returns when playback has finished, failed, or been
// cancelled. The calibration engine depends only on Speaker.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/vadcal/pkg/types"
)

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and returns a
	// channel that emits raw PCM audio byte slices as they are synthesised.
	//
	// The returned audio channel is closed by the implementation when all text has
	// been synthesised or when ctx is cancelled. The caller must drain the audio
	// channel to avoid blocking the provider's internal goroutines.
	//
	// Returns a non-nil error only if the stream cannot be started.
	SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error)

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}

// Speaker plays complete utterances.
//
// Implementations must be safe for concurrent use; Cancel is typically called
// from a different goroutine than the one blocked in Speak.
type Speaker interface {
	// Speak synthesises text at the given rate (0.5–2.0, 1.0 = normal) and
	// blocks until playback has finished. It returns nil on natural completion,
	// ctx.Err() or [context.Canceled] when preempted, or the synthesis error.
	Speak(ctx context.Context, text string, rate float64) error

	// Cancel preempts the utterance currently being spoken, if any. Speak
	// returns promptly afterwards.
	Cancel()
}

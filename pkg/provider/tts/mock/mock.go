// Package mock provides test doubles for the tts package interfaces.
//
// Use Provider to feed controlled audio chunks to consumers and to verify the
// VoiceProfile passed to the TTS backend. Use Speaker to control exactly when an
// utterance completes, fails, or observes cancellation.
//
// Example:
//
//	sp := mock.NewSpeaker()
//	go func() { _ = sp.Speak(ctx, "hello", 1.0) }()
//	<-sp.Started()
//	sp.Finish(nil) // Speak returns nil
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vadcal/pkg/provider/tts"
	"github.com/MrWong99/vadcal/pkg/types"
)

// SynthesizeStreamCall records a single invocation of SynthesizeStream.
type SynthesizeStreamCall struct {
	// Ctx is the context passed to SynthesizeStream.
	Ctx context.Context
	// Voice is the VoiceProfile passed to SynthesizeStream.
	Voice types.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SynthesizeChunks is the sequence of audio byte slices emitted on the channel
	// returned by SynthesizeStream.
	SynthesizeChunks [][]byte

	// SynthesizeErr, if non-nil, is returned as the error from SynthesizeStream
	// instead of starting a channel.
	SynthesizeErr error

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []types.VoiceProfile

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// --- Call records ---

	// SynthesizeStreamCalls records every call to SynthesizeStream in order.
	SynthesizeStreamCalls []SynthesizeStreamCall

	// Texts collects every text fragment read from the input channels.
	Texts []string
}

// SynthesizeStream records the call and, if SynthesizeErr is nil, returns a
// channel that emits SynthesizeChunks then closes.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	p.SynthesizeStreamCalls = append(p.SynthesizeStreamCalls, SynthesizeStreamCall{Ctx: ctx, Voice: voice})
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([][]byte, len(p.SynthesizeChunks))
	copy(chunks, p.SynthesizeChunks)
	p.mu.Unlock()

	ch := make(chan []byte)
	go func() {
		defer close(ch)
		for s := range text {
			p.mu.Lock()
			p.Texts = append(p.Texts, s)
			p.mu.Unlock()
		}
		for _, audio := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- audio:
			}
		}
	}()
	return ch, nil
}

// ListVoices records nothing and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ListVoicesResult, p.ListVoicesErr
}

// Calls returns a copy of the recorded SynthesizeStream calls. Thread-safe.
func (p *Provider) Calls() []SynthesizeStreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeStreamCall, len(p.SynthesizeStreamCalls))
	copy(out, p.SynthesizeStreamCalls)
	return out
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)

// SpeakCall records a single invocation of Speaker.Speak.
type SpeakCall struct {
	// Text is the utterance passed to Speak.
	Text string
	// Rate is the speaking rate passed to Speak.
	Rate float64
}

// Speaker is a mock implementation of tts.Speaker whose utterances complete
// only when the test says so.
//
// Speak blocks until [Speaker.Finish] is called, Cancel is called, or ctx is
// done. Use [NewSpeaker] to construct one.
type Speaker struct {
	mu      sync.Mutex
	active  bool
	started chan struct{}
	finish  chan error
	cancel  chan struct{}

	// SpeakCalls records every call to Speak in order.
	SpeakCalls []SpeakCall

	// CancelCallCount is the number of times Cancel was called.
	CancelCallCount int
}

// NewSpeaker returns a ready-to-use [Speaker].
func NewSpeaker() *Speaker {
	return &Speaker{
		started: make(chan struct{}, 16),
		finish:  make(chan error, 1),
		cancel:  make(chan struct{}, 1),
	}
}

// Speak records the call, signals Started, and blocks until the utterance is
// finished, cancelled, or ctx is done.
func (s *Speaker) Speak(ctx context.Context, text string, rate float64) error {
	s.mu.Lock()
	s.SpeakCalls = append(s.SpeakCalls, SpeakCall{Text: text, Rate: rate})
	s.active = true
	select {
	case <-s.cancel: // stale token from an earlier utterance
	default:
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
	}()

	s.started <- struct{}{}

	select {
	case err := <-s.finish:
		return err
	case <-s.cancel:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel records the call and releases a pending Speak with
// [context.Canceled]. It has no effect when nothing is being spoken.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	s.CancelCallCount++
	active := s.active
	s.mu.Unlock()
	if !active {
		return
	}
	select {
	case s.cancel <- struct{}{}:
	default:
	}
}

// Started returns a channel that receives one value per Speak call, after the
// call has been recorded.
func (s *Speaker) Started() <-chan struct{} {
	return s.started
}

// Finish completes the pending (or next) Speak call with err.
func (s *Speaker) Finish(err error) {
	s.finish <- err
}

// Calls returns a copy of the recorded Speak calls and the Cancel call count.
// Thread-safe.
func (s *Speaker) Calls() ([]SpeakCall, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SpeakCall, len(s.SpeakCalls))
	copy(out, s.SpeakCalls)
	return out, s.CancelCallCount
}

// Ensure Speaker implements tts.Speaker at compile time.
var _ tts.Speaker = (*Speaker)(nil)

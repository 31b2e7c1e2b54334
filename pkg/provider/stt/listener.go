package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrNotListening is returned by [Gate.SendAudio] when no session is open.
var ErrNotListening = errors.New("stt: not listening")

// Listener is the on/off switch of the speech recognizer.
//
// Implementations must be safe for concurrent use.
type Listener interface {
	// IsListening reports whether the recognizer is currently capturing audio.
	IsListening() bool

	// StartListening starts capturing. It returns once the capture has been
	// requested; the recognizer may still be warming up. Calling it while
	// already listening is a no-op.
	StartListening(ctx context.Context) error

	// StopListening stops capturing. Calling it while not listening is a no-op.
	StopListening() error
}

// Compile-time interface assertion.
var _ Listener = (*Gate)(nil)

// Gate implements [Listener] by opening an STT session on StartListening and
// closing it on StopListening. While open, microphone frames can be forwarded
// with [Gate.SendAudio].
type Gate struct {
	provider Provider
	cfg      StreamConfig

	mu      sync.Mutex
	session SessionHandle
}

// NewGate creates a closed [Gate] over provider.
func NewGate(provider Provider, cfg StreamConfig) *Gate {
	return &Gate{provider: provider, cfg: cfg}
}

// IsListening reports whether a session is open.
func (g *Gate) IsListening() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session != nil
}

// StartListening opens a new STT session unless one is already open.
func (g *Gate) StartListening(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session != nil {
		return nil
	}
	sess, err := g.provider.StartStream(ctx, g.cfg)
	if err != nil {
		return fmt.Errorf("stt: start listening: %w", err)
	}
	g.session = sess
	slog.Debug("stt gate opened", "sample_rate", g.cfg.SampleRate, "language", g.cfg.Language)
	return nil
}

// StopListening closes the open session, if any.
func (g *Gate) StopListening() error {
	g.mu.Lock()
	sess := g.session
	g.session = nil
	g.mu.Unlock()
	if sess == nil {
		return nil
	}
	if err := sess.Close(); err != nil {
		return fmt.Errorf("stt: stop listening: %w", err)
	}
	slog.Debug("stt gate closed")
	return nil
}

// SendAudio forwards chunk to the open session.
func (g *Gate) SendAudio(chunk []byte) error {
	g.mu.Lock()
	sess := g.session
	g.mu.Unlock()
	if sess == nil {
		return ErrNotListening
	}
	return sess.SendAudio(chunk)
}

// Compile-time interface assertion.
var _ Listener = (*Switch)(nil)

// Switch is a [Listener] without a recognizer behind it. Hosts that run
// calibration offline, or that gate capture elsewhere, use it to track the
// requested listening state.
type Switch struct {
	on atomic.Bool
}

// NewSwitch returns a Switch in the given state.
func NewSwitch(listening bool) *Switch {
	s := &Switch{}
	s.on.Store(listening)
	return s
}

// IsListening implements [Listener].
func (s *Switch) IsListening() bool { return s.on.Load() }

// StartListening implements [Listener].
func (s *Switch) StartListening(context.Context) error {
	if !s.on.Swap(true) {
		slog.Debug("listening switched on")
	}
	return nil
}

// StopListening implements [Listener].
func (s *Switch) StopListening() error {
	if s.on.Swap(false) {
		slog.Debug("listening switched off")
	}
	return nil
}

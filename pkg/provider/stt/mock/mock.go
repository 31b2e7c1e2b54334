// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider and Session to exercise [stt.Gate]. Use Listener as a
// stand-alone [stt.Listener] that records every switch call.
//
// Example:
//
//	l := &mock.Listener{Listening: false}
//	_ = l.StartListening(ctx)
//	// l.StartCallCount == 1, l.IsListening() == true
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vadcal/pkg/provider/stt"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by StartStream. If nil, StartStream
	// returns a new default Session.
	Session stt.SessionHandle

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{FinalsCh: make(chan stt.Transcript)}, nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.SessionHandle.
type Session struct {
	mu sync.Mutex

	// FinalsCh is returned by Finals.
	FinalsCh chan stt.Transcript

	// SendAudioErr, if non-nil, is returned by SendAudio.
	SendAudioErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// SentAudio holds a copy of every chunk passed to SendAudio.
	SentAudio [][]byte

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// SendAudio records a copy of chunk and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SentAudio = append(s.SentAudio, cp)
	return s.SendAudioErr
}

// Finals returns FinalsCh.
func (s *Session) Finals() <-chan stt.Transcript {
	return s.FinalsCh
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// Ensure Session implements stt.SessionHandle at compile time.
var _ stt.SessionHandle = (*Session)(nil)

// Listener is a mock implementation of stt.Listener.
type Listener struct {
	mu sync.Mutex

	// Listening is the current switch state.
	Listening bool

	// StartErr, if non-nil, is returned by StartListening and leaves Listening
	// unchanged.
	StartErr error

	// StopErr, if non-nil, is returned by StopListening. Listening is still
	// cleared.
	StopErr error

	// --- Call records ---

	// StartCallCount is the number of times StartListening was called.
	StartCallCount int

	// StopCallCount is the number of times StopListening was called.
	StopCallCount int
}

// IsListening returns Listening.
func (l *Listener) IsListening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Listening
}

// StartListening records the call and switches Listening on unless StartErr
// is set.
func (l *Listener) StartListening(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.StartCallCount++
	if l.StartErr != nil {
		return l.StartErr
	}
	l.Listening = true
	return nil
}

// StopListening records the call and switches Listening off.
func (l *Listener) StopListening() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.StopCallCount++
	l.Listening = false
	return l.StopErr
}

// Calls returns the start and stop call counts. Thread-safe.
func (l *Listener) Calls() (start, stop int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.StartCallCount, l.StopCallCount
}

// Ensure Listener implements stt.Listener at compile time.
var _ stt.Listener = (*Listener)(nil)

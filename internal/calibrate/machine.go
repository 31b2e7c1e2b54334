// Package calibrate tunes voice activity detection to the user's room and
// voice.
//
// A calibration run has two user-guided measurement phases. In phase 1 the
// user pauses briefly and then speaks; the samples are split into ambient and
// speech populations with Otsu's method and a hysteresis threshold pair is
// derived. In phase 2 a fixed utterance is played back while the microphone
// stays open; spikes of leaked playback above the phase 1 threshold determine
// how long speech must persist before it counts as a speech start.
//
// [Machine] drives a run against injected collaborators. While a run is in
// progress it forces the recognizer to listen, forces probability processing
// on and (during phase 2) switches interruption off. Every path back to
// [StateIdle] restores those values.
package calibrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/vadcal/internal/observe"
	"github.com/MrWong99/vadcal/pkg/provider/stt"
	"github.com/MrWong99/vadcal/pkg/provider/tts"
	"github.com/MrWong99/vadcal/pkg/provider/vad"
	"github.com/MrWong99/vadcal/pkg/settings"
)

var (
	// ErrNoPhase1Result is returned by [Machine.StartPhase2] when phase 1 has
	// not produced a result.
	ErrNoPhase1Result = errors.New("calibrate: no phase 1 result")

	// ErrInvalidTransition is returned when an operation is not allowed in the
	// current state.
	ErrInvalidTransition = errors.New("calibrate: invalid transition")

	// ErrClosed is returned by operations on a closed [Machine].
	ErrClosed = errors.New("calibrate: machine closed")
)

// DefaultUtterance is the sentence played back during phase 2.
const DefaultUtterance = "The quick brown fox jumps over the lazy dog while the five boxing wizards jump quickly."

// Deps are the collaborators a [Machine] coordinates. All fields are required.
type Deps struct {
	Source   vad.ProbabilitySource
	Listener stt.Listener
	Speaker  tts.Speaker
	Settings settings.Sink
}

// Snapshot is a consistent view of a [Machine].
type Snapshot struct {
	State     State
	Phase1    *Phase1Result
	Phase2    *Phase2Result
	LastError error
}

// Option configures a [Machine].
type Option func(*Machine)

// WithTickInterval sets the sampling interval. Default: [DefaultTickInterval].
func WithTickInterval(d time.Duration) Option {
	return func(m *Machine) { m.tick = d }
}

// WithClock replaces the clock used for sample timestamps and phase timing.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithUtterance sets the phase 2 playback text and speaking rate.
func WithUtterance(text string, rate float64) Option {
	return func(m *Machine) {
		if text != "" {
			m.utterance = text
		}
		if rate > 0 {
			m.rate = rate
		}
	}
}

// WithPhase1Params replaces the speech-profile analysis parameters.
func WithPhase1Params(p Phase1Params) Option {
	return func(m *Machine) { m.p1 = p }
}

// WithPhase2Params replaces the leakage analysis parameters.
func WithPhase2Params(p Phase2Params) Option {
	return func(m *Machine) { m.p2 = p }
}

// WithMetrics records run metrics to met instead of [observe.DefaultMetrics].
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Machine) {
		if met != nil {
			m.metrics = met
		}
	}
}

type stateChange struct{ from, to State }

// Machine is the calibration state machine:
//
//	Idle → Phase1 → Phase1Summary → Phase2 → Phase2Summary → Idle
//
// Start moves Idle to Phase1 and retries from Phase1Summary. FinishPhase1 ends
// phase 1. StartPhase2 begins playback; its completion ends phase 2, or on
// failure returns to Phase1Summary. Apply leaves Phase2Summary. Cancel leaves
// any state.
//
// All methods are safe for concurrent use. Transitions are serialised by a
// mutex; state-change callbacks run after it is released.
type Machine struct {
	deps      Deps
	metrics   *observe.Metrics
	now       func() time.Time
	tick      time.Duration
	utterance string
	rate      float64
	p1        Phase1Params
	p2        Phase2Params

	mu        sync.Mutex
	state     State
	epoch     uint64
	closed    bool
	sampler   *Handle
	phase1    *Phase1Result
	phase2    *Phase2Result
	lastErr   error
	observers []func(from, to State)
	pending   []stateChange

	listening    *Override[bool]
	processing   *Override[bool]
	interruption *Override[bool]

	phaseCtx   context.Context
	phaseSpan  trace.Span
	phaseStart time.Time

	playCancel context.CancelFunc
	playDone   chan struct{}
}

// New creates an idle [Machine].
func New(deps Deps, opts ...Option) *Machine {
	m := &Machine{
		deps:      deps,
		metrics:   observe.DefaultMetrics(),
		now:       time.Now,
		tick:      DefaultTickInterval,
		utterance: DefaultUtterance,
		rate:      1.0,
		p1:        DefaultPhase1Params(),
		p2:        DefaultPhase2Params(),
		phaseCtx:  context.Background(),
	}
	for _, o := range opts {
		o(m)
	}

	m.listening = NewOverride(func(ctx context.Context, on bool) error {
		if on {
			return deps.Listener.StartListening(ctx)
		}
		return deps.Listener.StopListening()
	})
	m.processing = NewOverride(func(_ context.Context, on bool) error {
		if on {
			deps.Source.ResumeProcessing()
		} else {
			deps.Source.PauseProcessing()
		}
		return nil
	})
	m.interruption = NewOverride(func(_ context.Context, enabled bool) error {
		return deps.Settings.UpdateParameter(settings.KeyInterruptionEnabled, enabled)
	})
	return m
}

// OnStateChange registers fn to be called after every transition. Callbacks
// run outside the machine's lock on the goroutine that caused the transition
// (the playback goroutine for the end of phase 2) and may call back into it,
// Close included.
func (m *Machine) OnStateChange(fn func(from, to State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the most recent asynchronous failure (playback or a
// failed restore after playback). It is cleared by Start and StartPhase2.
func (m *Machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Snapshot returns the current state and copies of the stored results.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{State: m.state, LastError: m.lastErr}
	if m.phase1 != nil {
		r := *m.phase1
		s.Phase1 = &r
	}
	if m.phase2 != nil {
		r := *m.phase2
		s.Phase2 = &r
	}
	return s
}

// Start begins phase 1. From Idle it first makes sure the recognizer is
// listening and probability processing is on, remembering what it changed.
// From Phase1Summary it discards the previous phase 1 result and measures
// again, keeping the overrides of the original Start.
//
// ctx is passed to StartListening; the run itself lives until Apply, Cancel
// or Close.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.unlock()

	if m.closed {
		return ErrClosed
	}
	switch m.state {
	case StateIdle:
		if err := m.acquire(ctx); err != nil {
			return err
		}
	case StatePhase1Summary:
		slog.Info("retrying calibration phase 1")
	default:
		return fmt.Errorf("%w: start in state %s", ErrInvalidTransition, m.state)
	}

	m.epoch++
	m.phase1, m.phase2, m.lastErr = nil, nil, nil
	m.beginPhase(ctx, "phase1")
	m.transition(StatePhase1)
	return nil
}

// FinishPhase1 stops sampling and analyses the speech profile. A result with
// NoSpeechDetected set is still stored; the caller may Start again or Cancel.
func (m *Machine) FinishPhase1() (Phase1Result, error) {
	m.mu.Lock()
	defer m.unlock()

	if m.state != StatePhase1 {
		return Phase1Result{}, fmt.Errorf("%w: finish phase 1 in state %s", ErrInvalidTransition, m.state)
	}
	samples := m.stopSampler("phase1")
	res := AnalyzePhase1(samples, m.p1)
	m.phase1 = &res

	if res.NoSpeechDetected {
		m.metrics.RecordRun(m.phaseCtx, observe.OutcomeNoSpeech)
		slog.Info("phase 1 found no speech", "samples", len(samples), "ambient_ceiling", res.AmbientCeiling)
	} else {
		m.metrics.RecordThresholds(m.phaseCtx, res.PositiveThreshold, res.NegativeThreshold)
		slog.Info("phase 1 analysed",
			"samples", len(samples),
			"split", res.SplitPoint,
			"positive", res.PositiveThreshold,
			"negative", res.NegativeThreshold,
		)
	}
	m.transition(StatePhase1Summary)
	return res, nil
}

// StartPhase2 switches interruption off, starts sampling and plays the
// calibration utterance in the background. When playback finishes the leakage
// is analysed and the machine moves to Phase2Summary; if playback fails it
// returns to Phase1Summary and the failure is available from LastError.
func (m *Machine) StartPhase2(ctx context.Context) error {
	m.mu.Lock()
	defer m.unlock()

	if m.closed {
		return ErrClosed
	}
	if m.phase1 == nil {
		return ErrNoPhase1Result
	}
	if m.state != StatePhase1Summary {
		return fmt.Errorf("%w: start phase 2 in state %s", ErrInvalidTransition, m.state)
	}

	m.interruption.Acquire(m.interruptionEnabled())
	if err := m.interruption.Set(ctx, false); err != nil {
		_ = m.interruption.Restore(ctx)
		return fmt.Errorf("calibrate: disable interruption: %w", err)
	}

	m.epoch++
	m.phase2, m.lastErr = nil, nil
	m.beginPhase(ctx, "phase2")
	m.transition(StatePhase2)

	playCtx, cancel := context.WithCancel(context.WithoutCancel(m.phaseCtx))
	done := make(chan struct{})
	m.playCancel, m.playDone = cancel, done
	go m.play(playCtx, m.epoch, done)
	return nil
}

// Apply writes the tuned parameters to the settings sink, undoes the run's
// overrides and returns to Idle. Write failures do not stop the remaining
// writes or the restore; all failures are returned joined.
func (m *Machine) Apply(ctx context.Context) error {
	m.mu.Lock()
	defer m.unlock()

	if m.state != StatePhase2Summary {
		return fmt.Errorf("%w: apply in state %s", ErrInvalidTransition, m.state)
	}

	var errs []error
	update := func(key settings.Key, v any) bool {
		if err := m.deps.Settings.UpdateParameter(key, v); err != nil {
			slog.Warn("failed to apply calibration parameter", "key", key, "err", err)
			errs = append(errs, fmt.Errorf("calibrate: update %s: %w", key, err))
			return false
		}
		return true
	}
	m.applyThresholds(update)
	update(settings.KeyMinSpeechStartMs, m.phase2.RecommendedMinSpeechStartMs)

	errs = append(errs, m.release(ctx)...)
	if m.phase2.RecommendDisableInterruption {
		update(settings.KeyInterruptionEnabled, false)
	}

	slog.Info("calibration applied",
		"positive", m.phase1.PositiveThreshold,
		"negative", m.phase1.NegativeThreshold,
		"min_speech_start_ms", m.phase2.RecommendedMinSpeechStartMs,
		"disable_interruption", m.phase2.RecommendDisableInterruption,
	)
	m.metrics.RecordRun(ctx, observe.OutcomeApplied)
	m.epoch++
	m.phase1, m.phase2 = nil, nil
	m.transition(StateIdle)
	return errors.Join(errs...)
}

// applyThresholds writes the threshold pair so that the stored negative never
// exceeds the stored positive. A lowered positive goes after the negative;
// when the first write fails the second is skipped. Callers hold m.mu.
func (m *Machine) applyThresholds(update func(settings.Key, any) bool) {
	pos, neg := m.phase1.PositiveThreshold, m.phase1.NegativeThreshold
	first, second := settings.KeyPositiveThreshold, settings.KeyNegativeThreshold
	firstV, secondV := pos, neg
	if cur, ok := m.deps.Settings.Parameter(settings.KeyNegativeThreshold); ok {
		if v, ok := cur.(float64); ok && pos < v {
			first, second = second, first
			firstV, secondV = neg, pos
		}
	}
	if !update(first, firstV) {
		slog.Warn("skipping threshold update to keep the pair ordered", "key", second)
		return
	}
	update(second, secondV)
}

// Cancel abandons the run from any state: sampling stops, pending playback is
// cancelled, every override is restored and both results are discarded.
// Cancel in Idle does nothing. Restore failures are returned joined; the
// machine is Idle regardless.
func (m *Machine) Cancel() error {
	m.mu.Lock()
	defer m.unlock()
	return m.abort()
}

// Close cancels any run in progress and waits for background playback to
// return. Further Start and StartPhase2 calls fail with [ErrClosed]. Close is
// idempotent.
func (m *Machine) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	err := m.abort()
	done := m.playDone
	m.unlock()

	if done != nil {
		<-done
	}
	return err
}

// abort implements Cancel. Callers hold m.mu.
func (m *Machine) abort() error {
	if m.state == StateIdle {
		return nil
	}
	m.epoch++
	if m.sampler != nil {
		m.stopSampler("cancelled")
	}
	if m.playCancel != nil {
		m.playCancel()
		m.playCancel = nil
		m.deps.Speaker.Cancel()
	}
	errs := m.release(context.Background())
	m.phase1, m.phase2, m.lastErr = nil, nil, nil
	m.metrics.RecordRun(context.Background(), observe.OutcomeCancelled)
	slog.Info("calibration cancelled", "state", m.state)
	m.transition(StateIdle)
	return errors.Join(errs...)
}

// play speaks the calibration utterance and reports back. It runs on its own
// goroutine.
// done is closed before observers see the resulting transition, so an
// observer may Close the machine.
func (m *Machine) play(ctx context.Context, epoch uint64, done chan struct{}) {
	err := m.deps.Speaker.Speak(ctx, m.utterance, m.rate)

	m.mu.Lock()
	m.playbackFinished(epoch, err)
	pending, observers := m.takePending()
	m.mu.Unlock()

	close(done)
	notify(pending, observers)
}

// playbackFinished completes phase 2 unless the run has moved on since the
// playback was started. Callers hold m.mu.
func (m *Machine) playbackFinished(epoch uint64, playErr error) {
	if epoch != m.epoch || m.state != StatePhase2 {
		slog.Debug("ignoring stale playback completion", "epoch", epoch, "current", m.epoch)
		return
	}
	m.playCancel()
	m.playCancel = nil

	samples := m.stopSampler("phase2")
	var restoreErr error
	if err := m.interruption.Restore(context.Background()); err != nil {
		restoreErr = fmt.Errorf("calibrate: restore interruption: %w", err)
		slog.Warn("failed to restore interruption setting", "err", err)
	}

	if playErr != nil {
		m.lastErr = errors.Join(fmt.Errorf("calibrate: playback: %w", playErr), restoreErr)
		m.metrics.RecordRun(context.Background(), observe.OutcomePlaybackFailed)
		slog.Warn("calibration playback failed", "err", playErr)
		m.transition(StatePhase1Summary)
		return
	}

	res := AnalyzePhase2(samples, m.phase1.PositiveThreshold, m.p2)
	for _, s := range res.Spikes {
		m.metrics.RecordSpike(context.Background(), s.Duration)
	}
	m.phase2 = &res
	m.lastErr = restoreErr
	slog.Info("phase 2 analysed",
		"samples", len(samples),
		"spikes", len(res.Spikes),
		"max_spike_ms", res.MaxSpikeDuration,
		"min_speech_start_ms", res.RecommendedMinSpeechStartMs,
		"disable_interruption", res.RecommendDisableInterruption,
	)
	m.transition(StatePhase2Summary)
}

// acquire takes the listening and processing overrides. On failure nothing
// stays changed.
func (m *Machine) acquire(ctx context.Context) error {
	m.listening.Acquire(m.deps.Listener.IsListening())
	if err := m.listening.Set(ctx, true); err != nil {
		_ = m.listening.Restore(ctx)
		slog.Warn("failed to start listening for calibration", "err", err)
		return fmt.Errorf("calibrate: start listening: %w", err)
	}
	m.processing.Acquire(m.deps.Source.IsProcessing())
	return m.processing.Set(ctx, true)
}

// release restores every override in reverse order of acquisition.
func (m *Machine) release(ctx context.Context) []error {
	var errs []error
	if err := m.interruption.Restore(ctx); err != nil {
		errs = append(errs, fmt.Errorf("calibrate: restore interruption: %w", err))
	}
	if err := m.processing.Restore(ctx); err != nil {
		errs = append(errs, fmt.Errorf("calibrate: restore processing: %w", err))
	}
	if err := m.listening.Restore(ctx); err != nil {
		errs = append(errs, fmt.Errorf("calibrate: stop listening: %w", err))
	}
	for _, err := range errs {
		slog.Warn("calibration restore failed", "err", err)
	}
	return errs
}

// interruptionEnabled reads the pre-override interruption setting. A missing
// or malformed value counts as enabled.
func (m *Machine) interruptionEnabled() bool {
	v, ok := m.deps.Settings.Parameter(settings.KeyInterruptionEnabled)
	if b, isBool := v.(bool); ok && isBool {
		return b
	}
	slog.Debug("interruption setting unavailable, assuming enabled", "value", v)
	return true
}

// beginPhase opens the phase span and starts the sampler.
func (m *Machine) beginPhase(ctx context.Context, phase string) {
	m.phaseCtx, m.phaseSpan = observe.StartSpan(ctx, "calibrate."+phase)
	m.phaseStart = m.now()
	sampler := NewSampler(m.tick, m.now)
	m.sampler = sampler.Start(context.WithoutCancel(m.phaseCtx), m.deps.Source)
}

// stopSampler stops the active sampler, records the phase and ends its span.
func (m *Machine) stopSampler(outcome string) []Sample {
	samples := m.sampler.Stop()
	m.sampler = nil

	phase := "phase1"
	if m.state == StatePhase2 {
		phase = "phase2"
	}
	m.metrics.RecordPhase(m.phaseCtx, phase, len(samples), m.now().Sub(m.phaseStart).Seconds())
	m.phaseSpan.SetAttributes(
		attribute.Int("samples", len(samples)),
		attribute.String("outcome", outcome),
	)
	m.phaseSpan.End()
	return samples
}

// transition records a state change. Callers hold m.mu.
func (m *Machine) transition(to State) {
	from := m.state
	m.state = to
	m.pending = append(m.pending, stateChange{from: from, to: to})
	observe.Logger(m.phaseCtx).Info("calibration state changed", "from", from, "to", to)
}

// unlock releases m.mu and then delivers pending state changes.
func (m *Machine) unlock() {
	pending, observers := m.takePending()
	m.mu.Unlock()
	notify(pending, observers)
}

// takePending hands over the queued state changes. Callers hold m.mu.
func (m *Machine) takePending() ([]stateChange, []func(from, to State)) {
	pending := m.pending
	m.pending = nil
	return pending, m.observers
}

func notify(pending []stateChange, observers []func(from, to State)) {
	for _, c := range pending {
		for _, fn := range observers {
			fn(c.from, c.to)
		}
	}
}

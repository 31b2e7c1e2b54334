// Package vad defines the interfaces for Voice Activity Detection backends and
// the live speech-probability signal consumed by calibration.
//
// A VAD engine wraps a frame-level speech detector (e.g., Silero VAD or WebRTC
// VAD) and surfaces it as a stateful, per-stream session. The calibration
// engine does not process frames itself: it polls a [ProbabilitySource] once per
// tick. [Monitor] bridges the two by feeding frames into a session and exposing
// the most recent probability.
//
// Some operating modes gate probability computation off while the assistant is
// idle (push-to-talk, wake-word). [ProbabilitySource] therefore exposes an
// explicit processing switch that calibration can force on for its duration.
package vad

// Config holds the parameters for a VAD session. These are exactly the values
// the calibration engine tunes.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// frames passed to ProcessFrame. Common values: 8000, 16000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds.
	FrameSizeMs int

	// SpeechThreshold is the probability above which a frame is classified as
	// speech (the "positive" threshold). Range: [0.0, 1.0]. Typical: 0.5.
	SpeechThreshold float64

	// SilenceThreshold is the probability below which an active speech segment is
	// considered ended (the "negative" threshold). Must be ≤ SpeechThreshold.
	SilenceThreshold float64

	// MinSpeechStartMs is how long the probability must stay above
	// SpeechThreshold before a speech start is reported. Zero disables the
	// debounce.
	MinSpeechStartMs int
}

// SessionHandle represents an active VAD session for a single audio stream.
//
// A SessionHandle should not be shared between goroutines unless the
// implementation explicitly guarantees concurrent safety.
type SessionHandle interface {
	// ProcessFrame analyses a single audio frame and returns the detection result.
	// It must not block.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset clears all accumulated detection state without closing the session.
	Reset()

	// Close releases all resources associated with the session. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// ProbabilitySource is the live speech-probability signal sampled during
// calibration.
//
// Implementations must be safe for concurrent use: Current is called from the
// sampling goroutine while the processing switch is flipped by the calibration
// state machine.
type ProbabilitySource interface {
	// Current returns the most recent speech probability in [0, 1]. It must not
	// block. When processing is paused the last computed value (or 0) is
	// returned.
	Current() float64

	// IsProcessing reports whether probability computation is currently running.
	IsProcessing() bool

	// ResumeProcessing turns probability computation on, including in operating
	// modes that normally gate it off. Idempotent.
	ResumeProcessing()

	// PauseProcessing turns probability computation off. Idempotent.
	PauseProcessing()
}

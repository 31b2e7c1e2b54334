// Package types holds the small set of values shared by providers, the
// calibration engine and the playback layer. Keeping them here lets provider
// packages depend on each other's data without import cycles.
package types

import "time"

// AudioFrame is one chunk of signed 16-bit little-endian PCM as captured from
// the microphone and handed to a VAD session.
type AudioFrame struct {
	Data       []byte
	SampleRate int
	Channels   int

	// Timestamp is the capture offset from the start of the stream.
	Timestamp time.Duration
}

// VoiceProfile selects the voice used to speak the calibration utterance.
type VoiceProfile struct {
	// ID is the backend's voice identifier.
	ID       string
	Name     string
	Provider string

	// PitchShift moves the voice by semitones, 0 keeps the native pitch.
	PitchShift float64

	// SpeedFactor is the speaking rate. 1.0 is normal speed and the playback
	// layer accepts values from 0.5 to 2.0.
	SpeedFactor float64

	// Metadata carries backend-specific labels (accent, category, ...).
	Metadata map[string]string
}

// VADEvent is the verdict of a VAD session for one frame.
type VADEvent struct {
	Type VADEventType

	// Probability is the raw speech probability in [0, 1]. Calibration only
	// looks at this value; Type depends on the thresholds being tuned.
	Probability float64
}

// VADEventType classifies a frame relative to the current speech state.
type VADEventType int

const (
	VADSpeechStart VADEventType = iota
	VADSpeechContinue
	VADSpeechEnd
	VADSilence
)

var vadEventNames = [...]string{
	VADSpeechStart:    "speech_start",
	VADSpeechContinue: "speech_continue",
	VADSpeechEnd:      "speech_end",
	VADSilence:        "silence",
}

func (t VADEventType) String() string {
	if t < 0 || int(t) >= len(vadEventNames) {
		return "unknown"
	}
	return vadEventNames[t]
}

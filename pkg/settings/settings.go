// Package settings defines the persistence boundary for tuned VAD parameters.
//
// The calibration engine writes its results through a [Sink] and temporarily
// overrides individual keys (interruption) while it measures. Two sinks are
// provided: [MemoryStore] for embedding and tests, and [FileStore] which keeps
// the values in a YAML document on disk.
package settings

import (
	"errors"
	"fmt"

	"github.com/MrWong99/vadcal/pkg/provider/vad"
)

// Key names a tunable parameter.
type Key string

// Parameter keys understood by every sink.
const (
	KeyPositiveThreshold   Key = "positiveThreshold"
	KeyNegativeThreshold   Key = "negativeThreshold"
	KeyMinSpeechStartMs    Key = "minSpeechStartMs"
	KeyInterruptionEnabled Key = "interruptionEnabled"
)

var (
	// ErrUnknownKey is returned when a sink is asked about a key it does not
	// store.
	ErrUnknownKey = errors.New("settings: unknown key")

	// ErrInvalidValue is returned when a value has the wrong type or is out of
	// range for its key.
	ErrInvalidValue = errors.New("settings: invalid value")
)

// Sink persists parameter updates.
//
// Implementations must be safe for concurrent use.
type Sink interface {
	// UpdateParameter stores value under key. Thresholds take float64,
	// minSpeechStartMs takes int and interruptionEnabled takes bool.
	UpdateParameter(key Key, value any) error

	// Parameter returns the stored value for key. ok is false for unknown keys.
	Parameter(key Key) (value any, ok bool)
}

// Values is the full set of tuned parameters.
type Values struct {
	PositiveThreshold   float64 `yaml:"positive_threshold"`
	NegativeThreshold   float64 `yaml:"negative_threshold"`
	MinSpeechStartMs    int     `yaml:"min_speech_start_ms"`
	InterruptionEnabled bool    `yaml:"interruption_enabled"`
}

// Defaults returns the parameters used before any calibration has run.
func Defaults() Values {
	return Values{
		PositiveThreshold:   0.5,
		NegativeThreshold:   0.35,
		MinSpeechStartMs:    150,
		InterruptionEnabled: true,
	}
}

// VADConfig returns base with the tuned thresholds and debounce applied.
func (v Values) VADConfig(base vad.Config) vad.Config {
	base.SpeechThreshold = v.PositiveThreshold
	base.SilenceThreshold = v.NegativeThreshold
	base.MinSpeechStartMs = v.MinSpeechStartMs
	return base
}

// Get returns the value stored under key.
func (v Values) Get(key Key) (any, bool) {
	switch key {
	case KeyPositiveThreshold:
		return v.PositiveThreshold, true
	case KeyNegativeThreshold:
		return v.NegativeThreshold, true
	case KeyMinSpeechStartMs:
		return v.MinSpeechStartMs, true
	case KeyInterruptionEnabled:
		return v.InterruptionEnabled, true
	}
	return nil, false
}

// Set validates value and stores it under key.
func (v *Values) Set(key Key, value any) error {
	switch key {
	case KeyPositiveThreshold, KeyNegativeThreshold:
		f, ok := value.(float64)
		if !ok || f < 0 || f > 1 {
			return fmt.Errorf("%w: %s = %v, want float64 in [0, 1]", ErrInvalidValue, key, value)
		}
		if key == KeyPositiveThreshold {
			v.PositiveThreshold = f
		} else {
			v.NegativeThreshold = f
		}
	case KeyMinSpeechStartMs:
		n, ok := value.(int)
		if !ok || n < 0 {
			return fmt.Errorf("%w: %s = %v, want non-negative int", ErrInvalidValue, key, value)
		}
		v.MinSpeechStartMs = n
	case KeyInterruptionEnabled:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: %s = %v, want bool", ErrInvalidValue, key, value)
		}
		v.InterruptionEnabled = b
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return nil
}

// Validate checks the cross-field constraints of a loaded document.
func (v Values) Validate() error {
	var errs []error
	if v.PositiveThreshold < 0 || v.PositiveThreshold > 1 {
		errs = append(errs, fmt.Errorf("positive_threshold %.2f is out of range [0, 1]", v.PositiveThreshold))
	}
	if v.NegativeThreshold < 0 || v.NegativeThreshold > 1 {
		errs = append(errs, fmt.Errorf("negative_threshold %.2f is out of range [0, 1]", v.NegativeThreshold))
	}
	if v.NegativeThreshold > v.PositiveThreshold {
		errs = append(errs, fmt.Errorf("negative_threshold %.2f exceeds positive_threshold %.2f", v.NegativeThreshold, v.PositiveThreshold))
	}
	if v.MinSpeechStartMs < 0 {
		errs = append(errs, fmt.Errorf("min_speech_start_ms %d must not be negative", v.MinSpeechStartMs))
	}
	return errors.Join(errs...)
}

// Package config provides the configuration schema, loader, and provider
// registry for the vadcal calibration tool.
package config

import (
	"time"

	"github.com/MrWong99/vadcal/internal/calibrate"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Settings    SettingsConfig    `yaml:"settings"`
}

// ServerConfig holds logging and telemetry settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address of the Prometheus scrape endpoint
	// (e.g., ":9464"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// ProvidersConfig selects the implementations the calibration run talks to.
// Each field names a provider registered in the [Registry].
type ProvidersConfig struct {
	VAD ProviderEntry `yaml:"vad"`
	TTS ProviderEntry `yaml:"tts"`

	// TTSFallback is tried when TTS fails to start a stream. It must emit
	// the same PCM format as TTS. Optional.
	TTSFallback ProviderEntry `yaml:"tts_fallback"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "replay", "tone").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// CalibrationConfig tunes a calibration run. Zero values fall back to the
// defaults of the calibrate package.
type CalibrationConfig struct {
	// TickInterval is the sampling period of the probability signal.
	TickInterval time.Duration `yaml:"tick_interval"`

	// Utterance is the sentence played back during phase 2.
	Utterance string `yaml:"utterance"`

	// SpeechRate is the playback rate of the utterance in [0.5, 2.0].
	SpeechRate float64 `yaml:"speech_rate"`

	Phase1 Phase1Config `yaml:"phase1"`
	Phase2 Phase2Config `yaml:"phase2"`
}

// Phase1Config mirrors [calibrate.Phase1Params]. Omitted fields keep the
// default; an explicit 0 is used as given.
type Phase1Config struct {
	HistogramBins *int     `yaml:"histogram_bins"`
	MinMeanGap    *float64 `yaml:"min_mean_gap"`
	CandidateMin  *float64 `yaml:"candidate_min"`
	CandidateMax  *float64 `yaml:"candidate_max"`
	Interpolation *float64 `yaml:"interpolation"`
	Hysteresis    *float64 `yaml:"hysteresis"`
}

// Phase2Config mirrors [calibrate.Phase2Params]. Omitted fields keep the
// default; an explicit 0 is used as given.
//
// FrameMs is the step the recommended minimum speech start is rounded up to.
// The VAD frame is 32 ms, so any other value yields recommendations that are
// no longer whole VAD frames.
type Phase2Config struct {
	MinSpikeMs                 *float64 `yaml:"min_spike_ms"`
	DefaultMinSpeechStartMs    *int     `yaml:"default_min_speech_start_ms"`
	FrameMs                    *int     `yaml:"frame_ms"`
	MinMarginMs                *float64 `yaml:"min_margin_ms"`
	MarginRatio                *float64 `yaml:"margin_ratio"`
	DisableInterruptionAboveMs *float64 `yaml:"disable_interruption_above_ms"`
}

// SettingsConfig locates the persisted VAD settings.
type SettingsConfig struct {
	// Path is the YAML file written when a calibration is applied. Empty keeps
	// the settings in memory only.
	Path string `yaml:"path"`

	// HistoryPath is a JSON-lines file receiving one record per finished
	// simulated run. Empty disables the history.
	HistoryPath string `yaml:"history_path"`
}

// Params returns the phase 1 analysis parameters with omitted fields taken from
// [calibrate.DefaultPhase1Params].
func (c Phase1Config) Params() calibrate.Phase1Params {
	p := calibrate.DefaultPhase1Params()
	setIf(&p.Bins, c.HistogramBins)
	setIf(&p.MinMeanGap, c.MinMeanGap)
	setIf(&p.CandidateMin, c.CandidateMin)
	setIf(&p.CandidateMax, c.CandidateMax)
	setIf(&p.Interpolation, c.Interpolation)
	setIf(&p.Hysteresis, c.Hysteresis)
	return p
}

// Params returns the phase 2 analysis parameters with omitted fields taken from
// [calibrate.DefaultPhase2Params].
func (c Phase2Config) Params() calibrate.Phase2Params {
	p := calibrate.DefaultPhase2Params()
	setIf(&p.MinSpikeMs, c.MinSpikeMs)
	setIf(&p.DefaultMinSpeechStartMs, c.DefaultMinSpeechStartMs)
	setIf(&p.FrameMs, c.FrameMs)
	setIf(&p.MinMarginMs, c.MinMarginMs)
	setIf(&p.MarginRatio, c.MarginRatio)
	setIf(&p.DisableInterruptionAboveMs, c.DisableInterruptionAboveMs)
	return p
}

// Options converts the calibration section into machine options.
func (c CalibrationConfig) Options() []calibrate.Option {
	opts := []calibrate.Option{
		calibrate.WithPhase1Params(c.Phase1.Params()),
		calibrate.WithPhase2Params(c.Phase2.Params()),
	}
	if c.TickInterval > 0 {
		opts = append(opts, calibrate.WithTickInterval(c.TickInterval))
	}
	if c.Utterance != "" || c.SpeechRate != 0 {
		opts = append(opts, calibrate.WithUtterance(c.Utterance, c.SpeechRate))
	}
	return opts
}

func setIf[T int | float64](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"vad": {"replay"},
	"tts": {"tone", "elevenlabs"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// An empty document yields the zero [Config], which is valid.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("tts", cfg.Providers.TTSFallback.Name)

	cal := cfg.Calibration
	if cal.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("calibration.tick_interval %s must not be negative", cal.TickInterval))
	}
	if cal.SpeechRate != 0 && (cal.SpeechRate < 0.5 || cal.SpeechRate > 2.0) {
		errs = append(errs, fmt.Errorf("calibration.speech_rate %.2f is out of range [0.5, 2.0]", cal.SpeechRate))
	}
	if err := cal.Phase1.Params().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("calibration.phase1: %w", err))
	}
	if err := cal.Phase2.Params().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("calibration.phase2: %w", err))
	}

	for field, e := range map[string]ProviderEntry{"tts": cfg.Providers.TTS, "tts_fallback": cfg.Providers.TTSFallback} {
		if e.Name == "elevenlabs" && e.APIKey == "" {
			errs = append(errs, fmt.Errorf("providers.%s: elevenlabs requires api_key", field))
		}
	}
	if fb := cfg.Providers.TTSFallback.Name; fb != "" && fb == cfg.Providers.TTS.Name {
		slog.Warn("providers.tts_fallback repeats providers.tts", "name", fb)
	}
	if cfg.Settings.Path == "" {
		slog.Warn("settings.path is empty; applied calibrations will not be persisted")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

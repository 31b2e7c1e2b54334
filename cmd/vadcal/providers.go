package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/vadcal/internal/config"
	"github.com/MrWong99/vadcal/internal/resilience"
	"github.com/MrWong99/vadcal/pkg/audio"
	"github.com/MrWong99/vadcal/pkg/provider/tts"
	"github.com/MrWong99/vadcal/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/vadcal/pkg/provider/tts/tone"
	"github.com/MrWong99/vadcal/pkg/provider/vad"
	"github.com/MrWong99/vadcal/pkg/provider/vad/replay"
	"github.com/MrWong99/vadcal/pkg/types"
)

// registerBuiltinProviders wires the provider factories that ship with vadcal
// into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("replay", func(entry config.ProviderEntry) (vad.ProbabilitySource, error) {
		src := replay.New()
		if path := entry.StringOption("trace", ""); path != "" {
			tr, err := replay.Load(path)
			if err != nil {
				return nil, err
			}
			src.Play(tr)
		}
		return src, nil
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("tone", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []tone.Option{tone.WithSampleRate(entry.IntOption("sample_rate", tone.DefaultSampleRate))}
		if ms := entry.IntOption("char_ms", 0); ms > 0 {
			opts = append(opts, tone.WithCharDuration(time.Duration(ms)*time.Millisecond))
		}
		return tone.New(opts...), nil
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if f := entry.StringOption("output_format", ""); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURLs(entry.StringOption("ws_base_url", ""), entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})
}

// buildTTS creates the configured TTS provider and the PCM format it emits.
// An unnamed provider selects the offline tone voice. When a fallback is
// configured the result fails over to it.
func buildTTS(reg *config.Registry, providers config.ProvidersConfig) (tts.Provider, audio.Format, error) {
	entry := providers.TTS
	if entry.Name == "" {
		entry.Name = "tone"
	}
	p, err := reg.CreateTTS(entry)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", entry.Name)
	format := outputFormat(entry)

	fbEntry := providers.TTSFallback
	if fbEntry.Name == "" {
		return p, format, nil
	}
	fb, err := reg.CreateTTS(fbEntry)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("create tts fallback %q: %w", fbEntry.Name, err)
	}
	if fbFormat := outputFormat(fbEntry); fbFormat != format {
		return nil, audio.Format{}, fmt.Errorf("tts fallback %q emits %d Hz, primary %q emits %d Hz",
			fbEntry.Name, fbFormat.SampleRate, entry.Name, format.SampleRate)
	}
	group := resilience.NewTTSFallback(p, entry.Name, resilience.CircuitBreakerConfig{})
	group.AddFallback(fbEntry.Name, fb)
	slog.Info("provider created", "kind", "tts_fallback", "name", fbEntry.Name)
	return group, format, nil
}

// outputFormat reports the PCM format a TTS entry is configured to emit.
func outputFormat(entry config.ProviderEntry) audio.Format {
	f := audio.Format{SampleRate: tone.DefaultSampleRate, Channels: 1}
	switch entry.Name {
	case "tone":
		f.SampleRate = entry.IntOption("sample_rate", tone.DefaultSampleRate)
	case "elevenlabs":
		// Output formats are named pcm_<rate>.
		if rate, ok := strings.CutPrefix(entry.StringOption("output_format", ""), "pcm_"); ok {
			if hz, err := strconv.Atoi(rate); err == nil && hz > 0 {
				f.SampleRate = hz
			}
		}
	}
	return f
}

// voiceFor returns the voice profile selected by a TTS entry.
func voiceFor(entry config.ProviderEntry) types.VoiceProfile {
	return types.VoiceProfile{
		ID:       entry.StringOption("voice_id", ""),
		Provider: entry.Name,
	}
}

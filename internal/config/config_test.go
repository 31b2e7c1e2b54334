package config_test

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/vadcal/internal/calibrate"
	"github.com/MrWong99/vadcal/internal/config"
	"github.com/MrWong99/vadcal/pkg/provider/tts"
	ttsmock "github.com/MrWong99/vadcal/pkg/provider/tts/mock"
	"github.com/MrWong99/vadcal/pkg/provider/vad"
	vadmock "github.com/MrWong99/vadcal/pkg/provider/vad/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  log_level: debug
  metrics_addr: ":9464"

providers:
  vad:
    name: replay
    options:
      trace: testdata/speech.yaml
      frame_ms: 20
  tts:
    name: elevenlabs
    api_key: el-test
    options:
      voice_id: rachel
  tts_fallback:
    name: tone

calibration:
  tick_interval: 20ms
  utterance: The quick brown fox jumps over the lazy dog.
  speech_rate: 1.25
  phase1:
    histogram_bins: 50
    candidate_min: 0.2
    hysteresis: 0.1
  phase2:
    min_spike_ms: 20
    frame_ms: 20
    disable_interruption_above_ms: 400

settings:
  path: /var/lib/vadcal/settings.yaml
  history_path: /var/lib/vadcal/history.jsonl
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Server.MetricsAddr != ":9464" {
		t.Errorf("server.metrics_addr: got %q, want %q", cfg.Server.MetricsAddr, ":9464")
	}
	if cfg.Providers.VAD.Name != "replay" {
		t.Errorf("providers.vad.name: got %q, want %q", cfg.Providers.VAD.Name, "replay")
	}
	if got := cfg.Providers.VAD.StringOption("trace", ""); got != "testdata/speech.yaml" {
		t.Errorf("providers.vad.options.trace: got %q", got)
	}
	if got := cfg.Providers.VAD.IntOption("frame_ms", 0); got != 20 {
		t.Errorf("providers.vad.options.frame_ms: got %d, want 20", got)
	}
	if cfg.Providers.TTSFallback.Name != "tone" {
		t.Errorf("providers.tts_fallback.name: got %q, want tone", cfg.Providers.TTSFallback.Name)
	}
	if cfg.Calibration.TickInterval != 20*time.Millisecond {
		t.Errorf("calibration.tick_interval: got %s, want 20ms", cfg.Calibration.TickInterval)
	}
	if cfg.Calibration.SpeechRate != 1.25 {
		t.Errorf("calibration.speech_rate: got %.2f, want 1.25", cfg.Calibration.SpeechRate)
	}
	if cfg.Settings.Path != "/var/lib/vadcal/settings.yaml" {
		t.Errorf("settings.path: got %q", cfg.Settings.Path)
	}
	if cfg.Settings.HistoryPath != "/var/lib/vadcal/history.jsonl" {
		t.Errorf("settings.history_path: got %q", cfg.Settings.HistoryPath)
	}
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	for _, doc := range []string{"", "{}"} {
		cfg, err := config.LoadFromReader(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", doc, err)
		}
		if cfg.Calibration.Phase1.Params() != calibrate.DefaultPhase1Params() {
			t.Errorf("empty config %q: phase1 params differ from defaults", doc)
		}
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("calibration:\n  tick: 32ms\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

// ── Parameter conversion ─────────────────────────────────────────────────────

func TestPhaseParams_Overrides(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p1 := cfg.Calibration.Phase1.Params()
	want1 := calibrate.DefaultPhase1Params()
	want1.Bins = 50
	want1.CandidateMin = 0.2
	want1.Hysteresis = 0.1
	if p1 != want1 {
		t.Errorf("phase1 params: got %+v, want %+v", p1, want1)
	}

	p2 := cfg.Calibration.Phase2.Params()
	want2 := calibrate.DefaultPhase2Params()
	want2.MinSpikeMs = 20
	want2.FrameMs = 20
	want2.DisableInterruptionAboveMs = 400
	if p2 != want2 {
		t.Errorf("phase2 params: got %+v, want %+v", p2, want2)
	}
}

func TestPhaseParams_ExplicitZero(t *testing.T) {
	const doc = `
calibration:
  phase1:
    min_mean_gap: 0
    hysteresis: 0
  phase2:
    min_spike_ms: 0
    min_margin_ms: 0
`
	cfg, err := config.LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	p1 := cfg.Calibration.Phase1.Params()
	want1 := calibrate.DefaultPhase1Params()
	want1.MinMeanGap = 0
	want1.Hysteresis = 0
	if p1 != want1 {
		t.Errorf("phase1 params: got %+v, want %+v", p1, want1)
	}

	p2 := cfg.Calibration.Phase2.Params()
	want2 := calibrate.DefaultPhase2Params()
	want2.MinSpikeMs = 0
	want2.MinMarginMs = 0
	if p2 != want2 {
		t.Errorf("phase2 params: got %+v, want %+v", p2, want2)
	}
}

func TestCalibrationConfig_Options(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.CalibrationConfig
		want int
	}{
		{name: "zero", cfg: config.CalibrationConfig{}, want: 2},
		{name: "tick only", cfg: config.CalibrationConfig{TickInterval: 10 * time.Millisecond}, want: 3},
		{name: "rate only", cfg: config.CalibrationConfig{SpeechRate: 1.5}, want: 3},
		{name: "everything", cfg: config.CalibrationConfig{TickInterval: time.Millisecond, Utterance: "hi", SpeechRate: 1}, want: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.cfg.Options()); got != tt.want {
				t.Errorf("len(Options()) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestProviderEntry_Options(t *testing.T) {
	e := config.ProviderEntry{Options: map[string]any{
		"voice":  "rachel",
		"rate":   16000,
		"frac":   1.5,
		"whole":  24000.0,
		"number": 7,
	}}
	if got := e.StringOption("voice", "x"); got != "rachel" {
		t.Errorf("StringOption(voice) = %q", got)
	}
	if got := e.StringOption("number", "x"); got != "x" {
		t.Errorf("StringOption(number) = %q, want default", got)
	}
	if got := e.StringOption("missing", "def"); got != "def" {
		t.Errorf("StringOption(missing) = %q, want default", got)
	}
	if got := e.IntOption("rate", 0); got != 16000 {
		t.Errorf("IntOption(rate) = %d", got)
	}
	if got := e.IntOption("whole", 0); got != 24000 {
		t.Errorf("IntOption(whole) = %d", got)
	}
	if got := e.IntOption("frac", 3); got != 3 {
		t.Errorf("IntOption(frac) = %d, want default", got)
	}
	if got := e.IntOption("voice", 5); got != 5 {
		t.Errorf("IntOption(voice) = %d, want default", got)
	}

	var empty config.ProviderEntry
	if got := empty.IntOption("rate", 9); got != 9 {
		t.Errorf("nil options: IntOption = %d, want 9", got)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	reg := config.NewRegistry()

	_, err := reg.CreateVAD(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("vad: expected ErrProviderNotRegistered, got: %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), `vad/"nonexistent"`) {
		t.Errorf("vad: error should name the provider, got: %v", err)
	}

	_, err = reg.CreateTTS(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("tts: expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	reg := config.NewRegistry()
	wantSrc := &vadmock.Source{}
	wantTTS := &ttsmock.Provider{}

	var gotEntry config.ProviderEntry
	reg.RegisterVAD("stub", func(e config.ProviderEntry) (vad.ProbabilitySource, error) {
		gotEntry = e
		return wantSrc, nil
	})
	reg.RegisterTTS("stub", func(config.ProviderEntry) (tts.Provider, error) {
		return wantTTS, nil
	})

	entry := config.ProviderEntry{Name: "stub", Options: map[string]any{"trace": "a.yaml"}}
	src, err := reg.CreateVAD(entry)
	if err != nil {
		t.Fatalf("CreateVAD: unexpected error: %v", err)
	}
	if src != wantSrc {
		t.Error("CreateVAD returned an unexpected instance")
	}
	if gotEntry.StringOption("trace", "") != "a.yaml" {
		t.Errorf("factory received entry %+v", gotEntry)
	}

	p, err := reg.CreateTTS(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("CreateTTS: unexpected error: %v", err)
	}
	if p != wantTTS {
		t.Error("CreateTTS returned an unexpected instance")
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterTTS("broken", func(config.ProviderEntry) (tts.Provider, error) {
		return nil, boom
	})
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "broken"}); !errors.Is(err, boom) {
		t.Errorf("expected factory error, got: %v", err)
	}
}

func TestRegistry_OverwriteAndNames(t *testing.T) {
	reg := config.NewRegistry()
	first := &ttsmock.Provider{}
	second := &ttsmock.Provider{}
	reg.RegisterTTS("tone", func(config.ProviderEntry) (tts.Provider, error) { return first, nil })
	reg.RegisterTTS("tone", func(config.ProviderEntry) (tts.Provider, error) { return second, nil })
	reg.RegisterTTS("elevenlabs", func(config.ProviderEntry) (tts.Provider, error) { return first, nil })

	p, err := reg.CreateTTS(config.ProviderEntry{Name: "tone"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != second {
		t.Error("later registration should overwrite the earlier one")
	}

	if got, want := reg.Names("tts"), []string{"elevenlabs", "tone"}; !slices.Equal(got, want) {
		t.Errorf("Names(tts) = %v, want %v", got, want)
	}
	if got := reg.Names("vad"); len(got) != 0 {
		t.Errorf("Names(vad) = %v, want empty", got)
	}
	if got := reg.Names("llm"); got != nil {
		t.Errorf("Names(llm) = %v, want nil", got)
	}
}

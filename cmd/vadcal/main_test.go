package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/vadcal/internal/config"
	"github.com/MrWong99/vadcal/internal/history"
	"github.com/MrWong99/vadcal/internal/resilience"
	"github.com/MrWong99/vadcal/pkg/provider/tts/tone"
	"github.com/MrWong99/vadcal/pkg/settings"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level config.LogLevel
		want  slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		l := newLogger(tt.level)
		if !l.Enabled(context.Background(), tt.want) {
			t.Errorf("level %q: %s not enabled", tt.level, tt.want)
		}
		if tt.want > slog.LevelDebug && l.Enabled(context.Background(), tt.want-1) {
			t.Errorf("level %q: below %s enabled", tt.level, tt.want)
		}
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.TTS.Name != "" {
		t.Errorf("expected zero config, got %+v", cfg)
	}
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "server:\n  log_level: chatty\n")
	if _, err := loadConfig(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		name  string
		entry config.ProviderEntry
		want  int
	}{
		{name: "tone default", entry: config.ProviderEntry{Name: "tone"}, want: 16000},
		{name: "tone custom", entry: config.ProviderEntry{Name: "tone", Options: map[string]any{"sample_rate": 48000}}, want: 48000},
		{name: "elevenlabs default", entry: config.ProviderEntry{Name: "elevenlabs"}, want: 16000},
		{name: "elevenlabs pcm", entry: config.ProviderEntry{Name: "elevenlabs", Options: map[string]any{"output_format": "pcm_24000"}}, want: 24000},
		{name: "elevenlabs mp3", entry: config.ProviderEntry{Name: "elevenlabs", Options: map[string]any{"output_format": "mp3_44100_128"}}, want: 16000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := outputFormat(tt.entry)
			if f.SampleRate != tt.want || f.Channels != 1 {
				t.Errorf("outputFormat() = %+v, want %d Hz mono", f, tt.want)
			}
		})
	}
}

func TestTraceSamples(t *testing.T) {
	path := writeFile(t, t.TempDir(), "trace.yaml", "frame_ms: 20\nprobabilities: [0.1, 0.5, 0.9]\n")
	samples, err := traceSamples(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}
	if samples[2].Timestamp != 40 || samples[2].Probability != 0.9 {
		t.Errorf("samples[2] = %+v, want {0.9 40}", samples[2])
	}
}

func TestRegistry_BuiltinProviders(t *testing.T) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "tone"}); err != nil {
		t.Errorf("tone: %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "elevenlabs"}); err == nil {
		t.Error("elevenlabs without api key: expected error")
	}
	if _, err := reg.CreateVAD(config.ProviderEntry{Name: "replay"}); err != nil {
		t.Errorf("replay: %v", err)
	}
	missing := config.ProviderEntry{Name: "replay", Options: map[string]any{"trace": filepath.Join(t.TempDir(), "none.yaml")}}
	if _, err := reg.CreateVAD(missing); err == nil {
		t.Error("replay with missing trace: expected error")
	}
}

func TestSimulate_AppliesSettings(t *testing.T) {
	dir := t.TempDir()
	speech := writeFile(t, dir, "speech.yaml", `
segments:
  - {probability: 0.05, duration_ms: 400}
  - {probability: 0.9, duration_ms: 400}
`)
	leakage := writeFile(t, dir, "leakage.yaml", `
segments:
  - {probability: 0.02, duration_ms: 200}
`)
	settingsPath := filepath.Join(dir, "settings.yaml")

	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			TTS: config.ProviderEntry{Name: "tone", Options: map[string]any{"char_ms": 5}},
		},
		Calibration: config.CalibrationConfig{Utterance: "hello"},
	}
	cmd := &SimulateCmd{Speech: speech, Leakage: leakage, Settings: settingsPath}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := cmd.Run(&appContext{ctx: ctx, cfg: cfg}); err != nil {
		t.Fatalf("simulate: %v", err)
	}

	store, err := settings.OpenFile(settingsPath)
	if err != nil {
		t.Fatalf("reopen settings: %v", err)
	}
	v := store.Values()
	if v.MinSpeechStartMs != 150 {
		t.Errorf("min speech start = %d, want 150", v.MinSpeechStartMs)
	}
	if !v.InterruptionEnabled {
		t.Error("interruption should stay enabled without leakage")
	}
	if v.NegativeThreshold > v.PositiveThreshold || v.PositiveThreshold < 0.15 || v.PositiveThreshold > 0.9 {
		t.Errorf("thresholds out of range: %+v", v)
	}
}

func TestSimulate_DryRunLeavesSettings(t *testing.T) {
	dir := t.TempDir()
	speech := writeFile(t, dir, "speech.yaml", "probabilities: [0.1, 0.1, 0.1]\n")
	leakage := writeFile(t, dir, "leakage.yaml", "probabilities: [0.1]\n")
	settingsPath := filepath.Join(dir, "settings.yaml")

	cfg := &config.Config{
		Providers:   config.ProvidersConfig{TTS: config.ProviderEntry{Name: "tone", Options: map[string]any{"char_ms": 5}}},
		Calibration: config.CalibrationConfig{Utterance: "hi"},
		Settings:    config.SettingsConfig{HistoryPath: filepath.Join(dir, "runs.jsonl")},
	}
	cmd := &SimulateCmd{Speech: speech, Leakage: leakage, Settings: settingsPath, DryRun: true}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := cmd.Run(&appContext{ctx: ctx, cfg: cfg}); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	store, err := settings.OpenFile(settingsPath)
	if err != nil {
		t.Fatalf("reopen settings: %v", err)
	}
	if got := store.Values(); got != settings.Defaults() {
		t.Errorf("dry run changed settings: got %+v, want %+v", got, settings.Defaults())
	}

	recs, err := history.NewFileStore(cfg.Settings.HistoryPath).Last(0)
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if len(recs) != 1 || recs[0].Outcome != "discarded" || !recs[0].NoSpeechDetected {
		t.Errorf("history = %+v, want one discarded no-speech run", recs)
	}
	if err := (&HistoryCmd{Last: 5}).Run(&appContext{ctx: ctx, cfg: cfg}); err != nil {
		t.Errorf("history command: %v", err)
	}
}

func TestHistoryCmd_RequiresPath(t *testing.T) {
	err := (&HistoryCmd{}).Run(&appContext{ctx: context.Background(), cfg: &config.Config{}})
	if err == nil {
		t.Fatal("expected error without a history path")
	}
}

func TestBuildTTS(t *testing.T) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	p, format, err := buildTTS(reg, config.ProvidersConfig{})
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if _, ok := p.(*tone.Provider); !ok || format.SampleRate != 16000 {
		t.Errorf("default: got %T at %d Hz, want tone at 16000 Hz", p, format.SampleRate)
	}

	withFallback := config.ProvidersConfig{
		TTS:         config.ProviderEntry{Name: "elevenlabs", APIKey: "el-test"},
		TTSFallback: config.ProviderEntry{Name: "tone"},
	}
	p, _, err = buildTTS(reg, withFallback)
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	fb, ok := p.(*resilience.TTSFallback)
	if !ok {
		t.Fatalf("fallback: got %T, want *resilience.TTSFallback", p)
	}
	if got := fb.Group().Names(); len(got) != 2 || got[0] != "elevenlabs" || got[1] != "tone" {
		t.Errorf("fallback order = %v", got)
	}

	mismatch := withFallback
	mismatch.TTSFallback.Options = map[string]any{"sample_rate": 24000}
	if _, _, err := buildTTS(reg, mismatch); err == nil {
		t.Error("mismatched sample rates: expected error")
	}
}

func TestVoicesCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voices" || r.Header.Get("xi-api-key") != "el-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"voices":[{"voice_id":"rachel","name":"Rachel","category":"premade"}]}`))
	}))
	defer srv.Close()

	tests := []struct {
		name    string
		entry   config.ProviderEntry
		wantErr bool
	}{
		{name: "default tone", entry: config.ProviderEntry{}},
		{name: "elevenlabs", entry: config.ProviderEntry{Name: "elevenlabs", APIKey: "el-test", BaseURL: srv.URL}},
		{name: "rejected key", entry: config.ProviderEntry{Name: "elevenlabs", APIKey: "wrong", BaseURL: srv.URL}, wantErr: true},
		{name: "unknown provider", entry: config.ProviderEntry{Name: "nope"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Providers: config.ProvidersConfig{TTS: tt.entry}}
			err := (&VoicesCmd{Timeout: 5 * time.Second}).Run(&appContext{ctx: context.Background(), cfg: cfg})
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

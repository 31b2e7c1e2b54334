package main

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/vadcal/internal/calibrate"
	"github.com/MrWong99/vadcal/internal/report"
	"github.com/MrWong99/vadcal/pkg/provider/vad/replay"
)

// AnalyzeCmd groups the offline analysis subcommands.
type AnalyzeCmd struct {
	Speech  AnalyzeSpeechCmd  `cmd:"" help:"Derive positive and negative thresholds from a pause-then-speak trace."`
	Leakage AnalyzeLeakageCmd `cmd:"" help:"Measure playback leakage spikes in a trace."`
}

// AnalyzeSpeechCmd runs the speech-profile analysis over a trace.
type AnalyzeSpeechCmd struct {
	Trace string `arg:"" type:"existingfile" help:"Probability trace (YAML)."`
}

// Run implements the kong command.
func (c *AnalyzeSpeechCmd) Run(app *appContext) error {
	samples, err := traceSamples(c.Trace)
	if err != nil {
		return err
	}
	res := calibrate.AnalyzePhase1(samples, app.cfg.Calibration.Phase1.Params())
	slog.Info("speech profile analysed",
		"trace", c.Trace,
		"samples", len(samples),
		"positive", res.PositiveThreshold,
		"negative", res.NegativeThreshold,
		"no_speech", res.NoSpeechDetected,
	)
	fmt.Println(report.Phase1(res))
	return nil
}

// AnalyzeLeakageCmd runs the echo-leakage analysis over a trace.
type AnalyzeLeakageCmd struct {
	Trace     string  `arg:"" type:"existingfile" help:"Probability trace (YAML) recorded during playback."`
	Threshold float64 `short:"t" default:"0.5" help:"Positive threshold spikes are measured against."`
}

// Run implements the kong command.
func (c *AnalyzeLeakageCmd) Run(app *appContext) error {
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold %.2f is out of range (0, 1]", c.Threshold)
	}
	samples, err := traceSamples(c.Trace)
	if err != nil {
		return err
	}
	res := calibrate.AnalyzePhase2(samples, c.Threshold, app.cfg.Calibration.Phase2.Params())
	slog.Info("echo leakage analysed",
		"trace", c.Trace,
		"spikes", len(res.Spikes),
		"max_spike_ms", res.MaxSpikeDuration,
		"min_speech_start_ms", res.RecommendedMinSpeechStartMs,
	)
	fmt.Println(report.Phase2(res))
	return nil
}

// traceSamples loads a trace and converts its frames into samples.
func traceSamples(path string) ([]calibrate.Sample, error) {
	tr, err := replay.Load(path)
	if err != nil {
		return nil, err
	}
	frames := tr.Frames()
	samples := make([]calibrate.Sample, len(frames))
	for i, f := range frames {
		samples[i] = calibrate.Sample{Probability: f.Probability, Timestamp: f.TimeMs}
	}
	return samples, nil
}

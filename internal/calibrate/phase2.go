package calibrate

import (
	"errors"
	"fmt"
	"math"
)

// Phase2Params tunes the echo-leakage analysis. All durations are in
// milliseconds.
type Phase2Params struct {
	// MinSpikeMs discards spikes of this duration or shorter as sensor noise.
	MinSpikeMs float64

	// DefaultMinSpeechStartMs is recommended when no spike survives.
	DefaultMinSpeechStartMs int

	// FrameMs is the step the recommendation is rounded up to. With the
	// default 32 every recommendation is a whole number of VAD frames; other
	// values give multiples of FrameMs instead.
	FrameMs int

	// MinMarginMs and MarginRatio define the safety margin added to the
	// longest spike: max(MinMarginMs, MarginRatio·longest).
	MinMarginMs float64
	MarginRatio float64

	// DisableInterruptionAboveMs is the longest spike that can still be
	// debounced. Longer leakage recommends disabling interruption.
	DisableInterruptionAboveMs float64
}

// DefaultPhase2Params returns the standard analysis parameters.
func DefaultPhase2Params() Phase2Params {
	return Phase2Params{
		MinSpikeMs:                 10,
		DefaultMinSpeechStartMs:    150,
		FrameMs:                    32,
		MinMarginMs:                50,
		MarginRatio:                0.3,
		DisableInterruptionAboveMs: 500,
	}
}

// Validate reports every out-of-range parameter.
func (p Phase2Params) Validate() error {
	var errs []error
	if p.MinSpikeMs < 0 {
		errs = append(errs, fmt.Errorf("min_spike_ms %.1f must not be negative", p.MinSpikeMs))
	}
	if p.DefaultMinSpeechStartMs <= 0 {
		errs = append(errs, fmt.Errorf("default_min_speech_start_ms %d must be positive", p.DefaultMinSpeechStartMs))
	}
	if p.FrameMs <= 0 {
		errs = append(errs, fmt.Errorf("frame_ms %d must be positive", p.FrameMs))
	}
	if p.MinMarginMs < 0 || p.MarginRatio < 0 {
		errs = append(errs, fmt.Errorf("margin (min %.1f, ratio %.2f) must not be negative", p.MinMarginMs, p.MarginRatio))
	}
	if p.DisableInterruptionAboveMs <= 0 {
		errs = append(errs, fmt.Errorf("disable_interruption_above_ms %.1f must be positive", p.DisableInterruptionAboveMs))
	}
	return errors.Join(errs...)
}

// AnalyzePhase2 measures leakage spikes in samples against threshold and
// recommends a speech-start debounce. Empty input yields no spikes and the
// default recommendation.
func AnalyzePhase2(samples []Sample, threshold float64, p Phase2Params) Phase2Result {
	res := Phase2Result{
		Samples:   samples,
		Threshold: threshold,
		Spikes:    DetectSpikes(samples, threshold, p.MinSpikeMs),
	}
	for _, s := range res.Spikes {
		res.MaxSpikeDuration = max(res.MaxSpikeDuration, s.Duration)
	}
	res.RecommendedMinSpeechStartMs = RecommendMinSpeechStart(res.MaxSpikeDuration, p)
	res.RecommendDisableInterruption = res.MaxSpikeDuration > p.DisableInterruptionAboveMs
	return res
}

// DetectSpikes returns the runs of samples with probability ≥ threshold that
// last longer than minMs. A run ends at the timestamp of the first sample
// below threshold, or at the last sample when the run reaches the end of
// input. The result is ordered by StartTime and never overlaps.
func DetectSpikes(samples []Sample, threshold, minMs float64) []Spike {
	var (
		spikes []Spike
		cur    Spike
		open   bool
	)
	closeAt := func(end float64) {
		cur.EndTime = end
		cur.Duration = cur.EndTime - cur.StartTime
		if cur.Duration > minMs {
			spikes = append(spikes, cur)
		}
		open = false
	}
	for _, s := range samples {
		switch {
		case s.Probability >= threshold && !open:
			cur = Spike{StartTime: s.Timestamp, PeakProbability: s.Probability}
			open = true
		case s.Probability >= threshold:
			cur.PeakProbability = max(cur.PeakProbability, s.Probability)
		case open:
			closeAt(s.Timestamp)
		}
	}
	if open {
		closeAt(samples[len(samples)-1].Timestamp)
	}
	return spikes
}

// RecommendMinSpeechStart returns the debounce for a longest spike of maxMs:
// the default when there was none, otherwise the spike plus margin rounded up
// to whole frames.
func RecommendMinSpeechStart(maxMs float64, p Phase2Params) int {
	if maxMs <= 0 {
		return p.DefaultMinSpeechStartMs
	}
	margin := max(p.MinMarginMs, p.MarginRatio*maxMs)
	frames := math.Ceil((maxMs + margin) / float64(p.FrameMs))
	return int(frames) * p.FrameMs
}

package calibrate

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// stepsPerUnit snaps derived thresholds to multiples of 0.05.
const stepsPerUnit = 20

// Threshold range shared by both phases.
const (
	MinThreshold = 0.05
	MaxThreshold = 0.9
)

// Phase1Params tunes the speech-profile analysis.
type Phase1Params struct {
	// Bins is the number of equal-width histogram bins over [0, 1].
	Bins int

	// MinMeanGap is the smallest distance between the speech and ambient
	// means that counts as a separable speech population.
	MinMeanGap float64

	// CandidateMin and CandidateMax clamp the interpolated threshold.
	CandidateMin float64
	CandidateMax float64

	// Interpolation is where the positive threshold sits between the ambient
	// 90th percentile (0) and the speech 10th percentile (1).
	Interpolation float64

	// Hysteresis is the distance of the negative threshold below the positive.
	Hysteresis float64

	// NoSpeechPositive and NoSpeechNegative are reported when no speech
	// population was found.
	NoSpeechPositive float64
	NoSpeechNegative float64
}

// DefaultPhase1Params returns the standard analysis parameters.
func DefaultPhase1Params() Phase1Params {
	return Phase1Params{
		Bins:             100,
		MinMeanGap:       0.1,
		CandidateMin:     0.15,
		CandidateMax:     0.9,
		Interpolation:    0.3,
		Hysteresis:       0.15,
		NoSpeechPositive: 0.7,
		NoSpeechNegative: 0.55,
	}
}

// Validate reports every out-of-range parameter.
func (p Phase1Params) Validate() error {
	var errs []error
	if p.Bins < 2 {
		errs = append(errs, fmt.Errorf("histogram_bins %d must be at least 2", p.Bins))
	}
	if p.MinMeanGap < 0 || p.MinMeanGap > 1 {
		errs = append(errs, fmt.Errorf("min_mean_gap %.3f is out of range [0, 1]", p.MinMeanGap))
	}
	if p.CandidateMin < MinThreshold || p.CandidateMax > MaxThreshold || p.CandidateMin > p.CandidateMax {
		errs = append(errs, fmt.Errorf("candidate range [%.2f, %.2f] must lie within [%.2f, %.2f]",
			p.CandidateMin, p.CandidateMax, MinThreshold, MaxThreshold))
	}
	if p.Interpolation < 0 || p.Interpolation > 1 {
		errs = append(errs, fmt.Errorf("interpolation %.3f is out of range [0, 1]", p.Interpolation))
	}
	if p.Hysteresis < 0 {
		errs = append(errs, fmt.Errorf("hysteresis %.3f must not be negative", p.Hysteresis))
	}
	if p.NoSpeechNegative > p.NoSpeechPositive {
		errs = append(errs, fmt.Errorf("no-speech negative %.2f exceeds positive %.2f", p.NoSpeechNegative, p.NoSpeechPositive))
	}
	return errors.Join(errs...)
}

// AnalyzePhase1 classifies samples into ambient and speech populations with
// Otsu's method and derives a hysteresis threshold pair from them. It never
// fails: input without a separable speech population yields a result with
// NoSpeechDetected set.
func AnalyzePhase1(samples []Sample, p Phase1Params) Phase1Result {
	res := Phase1Result{Samples: samples}
	noSpeech := func() Phase1Result {
		res.NoSpeechDetected = true
		res.PositiveThreshold = p.NoSpeechPositive
		res.NegativeThreshold = p.NoSpeechNegative
		return res
	}
	if len(samples) == 0 {
		return noSpeech()
	}

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Probability
	}
	res.SplitPoint = OtsuSplit(values, p.Bins)

	var ambient, speech []float64
	for _, v := range values {
		if v <= res.SplitPoint {
			ambient = append(ambient, v)
		} else {
			speech = append(speech, v)
		}
	}
	res.AmbientMean = mean(ambient)
	res.SpeechMean = mean(speech)

	if len(ambient) > 0 {
		res.AmbientCeiling = slices.Max(ambient)
	}
	if len(speech) == 0 || len(ambient) == 0 || res.SpeechMean-res.AmbientMean < p.MinMeanGap {
		return noSpeech()
	}

	slices.Sort(ambient)
	slices.Sort(speech)
	ambientP90 := percentile(ambient, 0.9)
	res.SpeechFloor = percentile(speech, 0.1)
	res.AmbientCeiling = ambientP90

	candidate := ambientP90 + p.Interpolation*(res.SpeechFloor-ambientP90)
	candidate = min(max(candidate, p.CandidateMin), p.CandidateMax)

	res.PositiveThreshold = snap(candidate)
	res.NegativeThreshold = snap(max(res.PositiveThreshold-p.Hysteresis, MinThreshold))
	return res
}

// OtsuSplit returns the boundary that maximises the between-class variance of
// a histogram of values over [0, 1] with the given number of bins. The first
// maximum wins. The boundary is the centre of the winning bin.
func OtsuSplit(values []float64, bins int) float64 {
	if bins < 2 {
		bins = 2
	}
	hist := make([]float64, bins)
	for _, v := range values {
		idx := int(v * float64(bins))
		hist[min(max(idx, 0), bins-1)]++
	}

	total := float64(len(values))
	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i) * c
	}

	var (
		best, bestVar float64
		wB, sumB      float64
	)
	for t, c := range hist {
		wB += c
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * c
		mB := sumB / wB
		mF := (sumAll - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > bestVar {
			bestVar = between
			best = float64(t)
		}
	}
	return (best + 0.5) / float64(bins)
}

// percentile returns the element at index ⌊q·n⌋ of sorted, clamped to the
// slice bounds.
func percentile(sorted []float64, q float64) float64 {
	idx := int(math.Floor(q * float64(len(sorted))))
	return sorted[min(max(idx, 0), len(sorted)-1)]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// snap rounds x to the nearest multiple of 0.05.
func snap(x float64) float64 {
	return math.Round(x*stepsPerUnit) / stepsPerUnit
}

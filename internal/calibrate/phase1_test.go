package calibrate

import (
	"math"
	"math/rand/v2"
	"testing"
)

const eps = 1e-9

// run is n consecutive samples at probability p.
type run struct {
	n int
	p float64
}

// series builds samples 32 ms apart from runs.
func series(runs ...run) []Sample {
	var out []Sample
	for _, r := range runs {
		for range r.n {
			out = append(out, Sample{Probability: r.p, Timestamp: float64(len(out) * 32)})
		}
	}
	return out
}

func fromValues(values []float64) []Sample {
	out := make([]Sample, len(values))
	for i, v := range values {
		out[i] = Sample{Probability: v, Timestamp: float64(i * 32)}
	}
	return out
}

func isStep(x float64) bool {
	return math.Abs(x*20-math.Round(x*20)) < 1e-6
}

func checkThresholdInvariants(t *testing.T, res Phase1Result) {
	t.Helper()
	for name, v := range map[string]float64{"positive": res.PositiveThreshold, "negative": res.NegativeThreshold} {
		if v < MinThreshold-eps || v > MaxThreshold+eps {
			t.Errorf("%s threshold %.4f outside [0.05, 0.9]", name, v)
		}
		if !isStep(v) {
			t.Errorf("%s threshold %.4f is not a multiple of 0.05", name, v)
		}
	}
	if res.NegativeThreshold > res.PositiveThreshold+eps {
		t.Errorf("negative %.2f > positive %.2f", res.NegativeThreshold, res.PositiveThreshold)
	}
}

func TestAnalyzePhase1_Degenerate(t *testing.T) {
	tests := []struct {
		name        string
		samples     []Sample
		wantCeiling float64
	}{
		{"empty", nil, 0},
		{"flat ambient", series(run{200, 0.05}), 0},
		{"flat zero", series(run{50, 0}), 0},
		{"flat speech-like", series(run{120, 0.9}), 0},
		{"narrow band", series(run{60, 0.3}, run{60, 0.35}), 0.3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := AnalyzePhase1(tc.samples, DefaultPhase1Params())
			if !res.NoSpeechDetected {
				t.Fatalf("NoSpeechDetected = false, want true (split %.3f)", res.SplitPoint)
			}
			if res.PositiveThreshold != 0.7 || res.NegativeThreshold != 0.55 {
				t.Errorf("thresholds = %.2f/%.2f, want 0.70/0.55", res.PositiveThreshold, res.NegativeThreshold)
			}
			if math.Abs(res.AmbientCeiling-tc.wantCeiling) > eps {
				t.Errorf("AmbientCeiling = %.3f, want %.3f", res.AmbientCeiling, tc.wantCeiling)
			}
			if len(res.Samples) != len(tc.samples) {
				t.Errorf("Samples len = %d, want %d", len(res.Samples), len(tc.samples))
			}
		})
	}
}

func TestAnalyzePhase1_TwoClusters(t *testing.T) {
	res := AnalyzePhase1(series(run{100, 0.1}, run{100, 0.85}), DefaultPhase1Params())

	if res.NoSpeechDetected {
		t.Fatal("NoSpeechDetected = true, want false")
	}
	// Every boundary between the clusters separates them equally well; the
	// first one, the centre of the ambient bin, wins.
	if math.Abs(res.SplitPoint-0.105) > eps {
		t.Errorf("SplitPoint = %.3f, want 0.105", res.SplitPoint)
	}
	if math.Abs(res.AmbientMean-0.1) > eps || math.Abs(res.SpeechMean-0.85) > eps {
		t.Errorf("means = %.3f/%.3f, want 0.10/0.85", res.AmbientMean, res.SpeechMean)
	}
	if res.SpeechFloor != 0.85 || res.AmbientCeiling != 0.1 {
		t.Errorf("floor/ceiling = %.2f/%.2f, want 0.85/0.10", res.SpeechFloor, res.AmbientCeiling)
	}
	// 0.1 + 0.3·(0.85 − 0.1) = 0.325 sits on a rounding boundary.
	if res.PositiveThreshold < 0.3-eps || res.PositiveThreshold > 0.35+eps {
		t.Errorf("PositiveThreshold = %.2f, want 0.30 or 0.35", res.PositiveThreshold)
	}
	if math.Abs(res.NegativeThreshold-(res.PositiveThreshold-0.15)) > eps {
		t.Errorf("NegativeThreshold = %.2f, want positive − 0.15", res.NegativeThreshold)
	}
	checkThresholdInvariants(t, res)
}

func TestAnalyzePhase1_Thresholds(t *testing.T) {
	tests := []struct {
		name    string
		samples []Sample
		wantPos float64
		wantNeg float64
	}{
		// 0.05 + 0.3·0.85 = 0.305
		{"quiet room", series(run{150, 0.05}, run{100, 0.9}), 0.3, 0.15},
		// 0.02 + 0.3·0.3 = 0.11, clamped up to 0.15
		{"clamped low", series(run{100, 0.02}, run{100, 0.32}), 0.15, 0.05},
		// 0.6 + 0.3·0.38 = 0.714
		{"noisy room", series(run{100, 0.6}, run{100, 0.98}), 0.7, 0.55},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := AnalyzePhase1(tc.samples, DefaultPhase1Params())
			if res.NoSpeechDetected {
				t.Fatal("NoSpeechDetected = true")
			}
			if math.Abs(res.PositiveThreshold-tc.wantPos) > eps {
				t.Errorf("PositiveThreshold = %.3f, want %.2f", res.PositiveThreshold, tc.wantPos)
			}
			if math.Abs(res.NegativeThreshold-tc.wantNeg) > eps {
				t.Errorf("NegativeThreshold = %.3f, want %.2f", res.NegativeThreshold, tc.wantNeg)
			}
			checkThresholdInvariants(t, res)
		})
	}
}

func TestAnalyzePhase1_Percentiles(t *testing.T) {
	// Ambient 0.00..0.19, speech 0.70..0.89 in steps of 0.01.
	var values []float64
	for i := range 20 {
		values = append(values, float64(i)/100)
	}
	for i := range 20 {
		values = append(values, 0.7+float64(i)/100)
	}
	res := AnalyzePhase1(fromValues(values), DefaultPhase1Params())
	if res.NoSpeechDetected {
		t.Fatal("NoSpeechDetected = true")
	}
	// Index ⌊0.9·20⌋ = 18 and ⌊0.1·20⌋ = 2.
	if math.Abs(res.AmbientCeiling-0.18) > eps {
		t.Errorf("AmbientCeiling = %.3f, want 0.18", res.AmbientCeiling)
	}
	if math.Abs(res.SpeechFloor-0.72) > eps {
		t.Errorf("SpeechFloor = %.3f, want 0.72", res.SpeechFloor)
	}
}

func TestAnalyzePhase1_CustomParams(t *testing.T) {
	p := DefaultPhase1Params()
	p.MinMeanGap = 0.5
	res := AnalyzePhase1(series(run{100, 0.2}, run{100, 0.6}), p)
	if !res.NoSpeechDetected {
		t.Error("gap 0.4 below MinMeanGap 0.5 should be degenerate")
	}

	p = DefaultPhase1Params()
	p.CandidateMin = 0.4
	res = AnalyzePhase1(series(run{100, 0.02}, run{100, 0.32}), p)
	if math.Abs(res.PositiveThreshold-0.4) > eps {
		t.Errorf("PositiveThreshold = %.2f, want clamp to 0.40", res.PositiveThreshold)
	}
}

func TestAnalyzePhase1_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for i := range 500 {
		n := rng.IntN(300)
		values := make([]float64, n)
		ambient, speech := rng.Float64()*0.5, 0.5+rng.Float64()*0.5
		for j := range values {
			switch rng.IntN(3) {
			case 0:
				values[j] = rng.Float64()
			case 1:
				values[j] = min(1, ambient+rng.Float64()*0.1)
			default:
				values[j] = min(1, speech+rng.Float64()*0.1)
			}
		}
		res := AnalyzePhase1(fromValues(values), DefaultPhase1Params())
		checkThresholdInvariants(t, res)
		if t.Failed() {
			t.Fatalf("iteration %d: values %v", i, values)
		}
	}
}

func TestAnalyzePhase1_NarrowBandIsDegenerate(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	for i := range 300 {
		base := rng.Float64() * 0.9
		values := make([]float64, 1+rng.IntN(200))
		for j := range values {
			values[j] = base + rng.Float64()*0.0999
		}
		if res := AnalyzePhase1(fromValues(values), DefaultPhase1Params()); !res.NoSpeechDetected {
			t.Fatalf("iteration %d: band [%.3f, %.3f) not degenerate: %+v", i, base, base+0.1, res)
		}
	}
}

func TestOtsuSplit(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		// Every boundary between the clusters ties; the first one wins.
		{"tied plateau", []float64{0.1, 0.1, 0.85, 0.85}, 0.105},
		{"unbalanced", []float64{0.1, 0.1, 0.1, 0.5, 0.9}, 0.105},
		{"single bin", []float64{0.42, 0.42}, 0.005},
		{"upper edge in last bin", []float64{0, 1}, 0.005},
		{"empty", nil, 0.005},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := OtsuSplit(tc.values, 100); math.Abs(got-tc.want) > eps {
				t.Errorf("OtsuSplit = %.4f, want %.4f", got, tc.want)
			}
		})
	}
}

func TestPhase1Params_Validate(t *testing.T) {
	if err := DefaultPhase1Params().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	p := DefaultPhase1Params()
	p.Bins = 1
	p.CandidateMin = 0.01
	p.Interpolation = 2
	if err := p.Validate(); err == nil {
		t.Error("expected error")
	}
}

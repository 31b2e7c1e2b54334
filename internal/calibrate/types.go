package calibrate

// Sample is one reading of the speech-probability signal.
type Sample struct {
	// Probability is the speech probability in [0, 1].
	Probability float64

	// Timestamp is the reading time in milliseconds since the sampler started.
	Timestamp float64
}

// Phase1Result is the outcome of the speech-profile phase.
type Phase1Result struct {
	Samples []Sample

	// PositiveThreshold is the derived speech threshold, a multiple of 0.05.
	PositiveThreshold float64

	// NegativeThreshold is the derived silence threshold, a multiple of 0.05
	// and never above PositiveThreshold.
	NegativeThreshold float64

	// AmbientCeiling is the 90th percentile of the ambient population, or its
	// maximum when no speech was detected.
	AmbientCeiling float64

	// SpeechFloor is the 10th percentile of the speech population.
	SpeechFloor float64

	// NoSpeechDetected reports that the samples did not separate into two
	// populations. The thresholds then hold conservative defaults and the user
	// should be offered a retry.
	NoSpeechDetected bool

	// SplitPoint is the Otsu boundary between ambient and speech.
	SplitPoint float64

	// AmbientMean and SpeechMean are the population means. Zero for an empty
	// population.
	AmbientMean float64
	SpeechMean  float64
}

// Spike is a contiguous run of samples at or above the leakage threshold.
type Spike struct {
	StartTime       float64
	EndTime         float64
	Duration        float64
	PeakProbability float64
}

// Phase2Result is the outcome of the echo-leakage phase.
type Phase2Result struct {
	Samples []Sample

	// Threshold is the Phase-1 positive threshold the spikes were measured
	// against.
	Threshold float64

	// Spikes are the surviving spikes ordered by StartTime.
	Spikes []Spike

	// MaxSpikeDuration is the longest spike in milliseconds, or 0.
	MaxSpikeDuration float64

	// RecommendedMinSpeechStartMs is the speech-start debounce that rides out
	// the longest observed leakage.
	RecommendedMinSpeechStartMs int

	// RecommendDisableInterruption is set when leakage is too long to debounce.
	RecommendDisableInterruption bool
}

// State is a calibration state.
type State int

const (
	StateIdle State = iota
	StatePhase1
	StatePhase1Summary
	StatePhase2
	StatePhase2Summary
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePhase1:
		return "phase1"
	case StatePhase1Summary:
		return "phase1_summary"
	case StatePhase2:
		return "phase2"
	case StatePhase2Summary:
		return "phase2_summary"
	default:
		return "unknown"
	}
}

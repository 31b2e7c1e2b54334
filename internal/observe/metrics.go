// Package observe provides observability primitives for vadcal:
// OpenTelemetry metrics, tracing, trace-aware logging, and HTTP middleware for
// the metrics endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all vadcal metrics.
const meterName = "github.com/MrWong99/vadcal"

// Calibration run outcomes, used as the "outcome" attribute of
// [Metrics.CalibrationRuns].
const (
	OutcomeApplied        = "applied"
	OutcomeCancelled      = "cancelled"
	OutcomeNoSpeech       = "no_speech"
	OutcomePlaybackFailed = "playback_failed"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Counters ---

	// CalibrationRuns counts finished calibration attempts. Use with attribute:
	//   attribute.String("outcome", ...)
	CalibrationRuns metric.Int64Counter

	// Samples counts probability samples collected. Use with attribute:
	//   attribute.String("phase", ...)
	Samples metric.Int64Counter

	// --- Histograms ---

	// PhaseDuration tracks how long each measurement phase ran. Use with
	// attribute:
	//   attribute.String("phase", ...)
	PhaseDuration metric.Float64Histogram

	// SpikeDuration tracks the duration of every detected leakage spike.
	SpikeDuration metric.Float64Histogram

	// PositiveThreshold tracks the speech thresholds derived in phase 1.
	PositiveThreshold metric.Float64Histogram

	// NegativeThreshold tracks the silence thresholds derived in phase 1.
	NegativeThreshold metric.Float64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// phaseBuckets defines histogram bucket boundaries (in seconds) for
// user-guided measurement phases.
var phaseBuckets = []float64{1, 2.5, 5, 10, 15, 30, 60, 120}

// spikeBuckets defines histogram bucket boundaries (in milliseconds) around the
// interesting region of leakage spike durations.
var spikeBuckets = []float64{16, 32, 64, 128, 256, 500, 1000, 2000}

// thresholdBuckets match the 0.05 quantisation of derived thresholds.
var thresholdBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.CalibrationRuns, err = m.Int64Counter("vadcal.calibration.runs",
		metric.WithDescription("Finished calibration attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Samples, err = m.Int64Counter("vadcal.samples",
		metric.WithDescription("Probability samples collected by phase."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.PhaseDuration, err = m.Float64Histogram("vadcal.phase.duration",
		metric.WithDescription("Duration of a measurement phase."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(phaseBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpikeDuration, err = m.Float64Histogram("vadcal.spike.duration",
		metric.WithDescription("Duration of leakage spikes detected during playback."),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(spikeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PositiveThreshold, err = m.Float64Histogram("vadcal.threshold.positive",
		metric.WithDescription("Derived speech (positive) thresholds."),
		metric.WithExplicitBucketBoundaries(thresholdBuckets...),
	); err != nil {
		return nil, err
	}
	if met.NegativeThreshold, err = m.Float64Histogram("vadcal.threshold.negative",
		metric.WithDescription("Derived silence (negative) thresholds."),
		metric.WithExplicitBucketBoundaries(thresholdBuckets...),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("vadcal.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordRun records a finished calibration attempt.
func (m *Metrics) RecordRun(ctx context.Context, outcome string) {
	m.CalibrationRuns.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordPhase records the sample count and duration (seconds) of a completed
// measurement phase.
func (m *Metrics) RecordPhase(ctx context.Context, phase string, samples int, seconds float64) {
	attrs := metric.WithAttributes(Attr("phase", phase))
	m.Samples.Add(ctx, int64(samples), attrs)
	m.PhaseDuration.Record(ctx, seconds, attrs)
}

// RecordThresholds records a derived threshold pair.
func (m *Metrics) RecordThresholds(ctx context.Context, positive, negative float64) {
	m.PositiveThreshold.Record(ctx, positive)
	m.NegativeThreshold.Record(ctx, negative)
}

// RecordSpike records the duration of one leakage spike in milliseconds.
func (m *Metrics) RecordSpike(ctx context.Context, durationMs float64) {
	m.SpikeDuration.Record(ctx, durationMs)
}

// Package health serves the liveness, readiness and calibration status
// endpoints next to the metrics endpoint.
//
//   - /healthz answers 200 while the process can serve HTTP.
//   - /readyz answers 200 only when every registered [Checker] passes.
//   - /calibration reports the state and results of the running calibration.
//
// Responses are JSON.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/MrWong99/vadcal/internal/calibrate"
)

const checkTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Snapshotter is implemented by [calibrate.Machine].
type Snapshotter interface {
	Snapshot() calibrate.Snapshot
}

// Handler serves the health endpoints. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
	machine  Snapshotter
}

// New creates a [Handler]. machine may be nil, in which case /calibration
// answers 404.
func New(machine Snapshotter, checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...), machine: machine}
}

// Register adds the routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.HandleFunc("GET /calibration", h.Calibration)
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs every checker with a [checkTimeout] deadline.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK
	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	writeJSON(w, status, res)
}

// CalibrationStatus is the /calibration response body.
type CalibrationStatus struct {
	State     string  `json:"state"`
	LastError string  `json:"last_error,omitempty"`
	Phase1    *Phase1 `json:"phase1,omitempty"`
	Phase2    *Phase2 `json:"phase2,omitempty"`
}

// Phase1 summarises a speech-profile result.
type Phase1 struct {
	Samples           int     `json:"samples"`
	PositiveThreshold float64 `json:"positive_threshold"`
	NegativeThreshold float64 `json:"negative_threshold"`
	NoSpeechDetected  bool    `json:"no_speech_detected"`
}

// Phase2 summarises an echo-leakage result.
type Phase2 struct {
	Samples                      int     `json:"samples"`
	Spikes                       int     `json:"spikes"`
	MaxSpikeDurationMs           float64 `json:"max_spike_duration_ms"`
	RecommendedMinSpeechStartMs  int     `json:"recommended_min_speech_start_ms"`
	RecommendDisableInterruption bool    `json:"recommend_disable_interruption"`
}

// Calibration reports the machine's snapshot.
func (h *Handler) Calibration(w http.ResponseWriter, _ *http.Request) {
	if h.machine == nil {
		writeJSON(w, http.StatusNotFound, result{Status: "no calibration"})
		return
	}
	writeJSON(w, http.StatusOK, statusOf(h.machine.Snapshot()))
}

func statusOf(s calibrate.Snapshot) CalibrationStatus {
	st := CalibrationStatus{State: s.State.String()}
	if s.LastError != nil {
		st.LastError = s.LastError.Error()
	}
	if p := s.Phase1; p != nil {
		st.Phase1 = &Phase1{
			Samples:           len(p.Samples),
			PositiveThreshold: p.PositiveThreshold,
			NegativeThreshold: p.NegativeThreshold,
			NoSpeechDetected:  p.NoSpeechDetected,
		}
	}
	if p := s.Phase2; p != nil {
		st.Phase2 = &Phase2{
			Samples:                      len(p.Samples),
			Spikes:                       len(p.Spikes),
			MaxSpikeDurationMs:           p.MaxSpikeDuration,
			RecommendedMinSpeechStartMs:  p.RecommendedMinSpeechStartMs,
			RecommendDisableInterruption: p.RecommendDisableInterruption,
		}
	}
	return st
}

// SettingsDir checks that the directory holding the settings file at path
// accepts new files, so an applied calibration can be persisted.
func SettingsDir(path string) Checker {
	return Checker{Name: "settings", Check: func(context.Context) error {
		dir := filepath.Dir(path)
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		f, err := os.CreateTemp(dir, ".vadcal-health-*")
		if err != nil {
			return fmt.Errorf("%s is not writable: %w", dir, err)
		}
		name := f.Name()
		f.Close()
		return os.Remove(name)
	}}
}

// MachineState fails while the machine reports a last error, e.g. a failed
// playback awaiting retry.
func MachineState(m Snapshotter) Checker {
	return Checker{Name: "calibration", Check: func(context.Context) error {
		if err := m.Snapshot().LastError; err != nil {
			return errors.Join(errors.New("last attempt failed"), err)
		}
		return nil
	}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

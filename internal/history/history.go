// Package history keeps an append-only log of calibration runs as JSON lines,
// one record per finished run.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/vadcal/internal/calibrate"
)

// Record is a single finished calibration run.
type Record struct {
	Timestamp time.Time `json:"timestamp"`

	// Outcome is "applied" or "discarded".
	Outcome string `json:"outcome"`

	PositiveThreshold   float64 `json:"positive_threshold"`
	NegativeThreshold   float64 `json:"negative_threshold"`
	NoSpeechDetected    bool    `json:"no_speech_detected,omitempty"`
	MaxSpikeDurationMs  float64 `json:"max_spike_duration_ms"`
	MinSpeechStartMs    int     `json:"min_speech_start_ms"`
	DisableInterruption bool    `json:"disable_interruption,omitempty"`
}

// FromResults builds a record from both phase results.
func FromResults(outcome string, p1 calibrate.Phase1Result, p2 calibrate.Phase2Result) Record {
	return Record{
		Timestamp:           time.Now().UTC(),
		Outcome:             outcome,
		PositiveThreshold:   p1.PositiveThreshold,
		NegativeThreshold:   p1.NegativeThreshold,
		NoSpeechDetected:    p1.NoSpeechDetected,
		MaxSpikeDurationMs:  p2.MaxSpikeDuration,
		MinSpeechStartMs:    p2.RecommendedMinSpeechStartMs,
		DisableInterruption: p2.RecommendDisableInterruption,
	}
}

// FileStore appends records to a local file. Safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore writing to path. The file is created on the
// first append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Append writes rec as one line.
func (s *FileStore) Append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("history: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("history: write: %w", err)
	}
	return nil
}

// Last returns up to n of the most recent records, oldest first. A missing
// file yields no records. n <= 0 returns every record.
func (s *FileStore) Last(n int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: open file: %w", err)
	}
	defer f.Close()

	var recs []Record
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("history: line %d: %w", line, err)
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("history: read: %w", err)
	}
	if n > 0 && len(recs) > n {
		recs = recs[len(recs)-n:]
	}
	return recs, nil
}

// Package metrics captures per-step and per-reference timings for a run and
// persists them alongside the run output, so that throughput on large
// inventories (e.g. a full 2,000-reference download) can be reported and
// estimated accurately.
package metrics

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dealerops/bookout/internal/state"
)

// StepMetric records the duration of a discrete orchestration step.
type StepMetric struct {
	Name            string    `json:"name"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// ReferenceMetric records timing and outcome for a single reference attempt
// that reached a terminal per-attempt outcome (success, retry, failure).
type ReferenceMetric struct {
	Reference       string    `json:"reference"`
	WorkerID        int       `json:"worker_id"`
	Attempt         int       `json:"attempt"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
}

// Reference attempt statuses.
const (
	StatusSuccess = "success"
	StatusRetried = "retried"
	StatusFailed  = "failed"
)

// Summary aggregates the entire run.
type Summary struct {
	TotalInventory int       `json:"total_inventory"`
	Attempted      int       `json:"attempted"`
	Succeeded      int       `json:"succeeded"`
	Failed         int       `json:"failed"`
	Remaining      int       `json:"remaining"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
	RuntimeSeconds float64   `json:"runtime_seconds"`
}

// Recorder accumulates run metrics. All methods are safe for concurrent use
// by the workers and the watchdog.
type Recorder struct {
	mu        sync.Mutex
	runID     string
	startedAt time.Time
	metadata  map[string]string
	steps     []StepMetric
	refs      []ReferenceMetric
	active    map[string]time.Time
	summary   *Summary
}

// NewRecorder creates a recorder for the given run ID.
func NewRecorder(runID string) *Recorder {
	return &Recorder{
		runID:     runID,
		startedAt: time.Now().UTC(),
		metadata:  make(map[string]string),
		active:    make(map[string]time.Time),
	}
}

// AddMetadata attaches a run setting to the metrics document.
func (r *Recorder) AddMetadata(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata[key] = value
}

// TrackStep starts timing a named orchestration step and returns a function
// that records its duration when called. Intended for defer.
func (r *Recorder) TrackStep(name string) func() {
	started := time.Now()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.steps = append(r.steps, StepMetric{
			Name:            name,
			StartedAt:       started.UTC(),
			DurationSeconds: time.Since(started).Seconds(),
		})
	}
}

// StartReference marks the beginning of a processing attempt for ref.
func (r *Recorder) StartReference(ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[ref] = time.Now()
}

// EndReference marks the end of a processing attempt for ref.
func (r *Recorder) EndReference(ref string, workerID, attempt int, status, errClass string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	started, ok := r.active[ref]
	if !ok {
		started = time.Now()
	}
	delete(r.active, ref)

	r.refs = append(r.refs, ReferenceMetric{
		Reference:       ref,
		WorkerID:        workerID,
		Attempt:         attempt,
		StartedAt:       started.UTC(),
		DurationSeconds: time.Since(started).Seconds(),
		Status:          status,
		Error:           errClass,
	})
}

// Finalize records the run summary.
func (r *Recorder) Finalize(totalInventory, attempted, succeeded, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	completed := time.Now().UTC()
	r.summary = &Summary{
		TotalInventory: totalInventory,
		Attempted:      attempted,
		Succeeded:      succeeded,
		Failed:         failed,
		Remaining:      totalInventory - succeeded - failed,
		StartedAt:      r.startedAt,
		CompletedAt:    completed,
		RuntimeSeconds: completed.Sub(r.startedAt).Seconds(),
	}
}

// AverageSuccessSeconds returns the mean duration of successful attempts.
// The bool is false when no successful attempt has been recorded.
func (r *Recorder) AverageSuccessSeconds() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total float64
	var count int
	for _, m := range r.refs {
		if m.Status == StatusSuccess && m.DurationSeconds > 0 {
			total += m.DurationSeconds
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return total / float64(count), true
}

// EstimateSeconds estimates wall-clock seconds to process target references
// at the observed average success rate, divided across the given worker
// count. The bool is false when no estimate is possible.
func (r *Recorder) EstimateSeconds(target, workers int) (float64, bool) {
	avg, ok := r.AverageSuccessSeconds()
	if !ok || target <= 0 {
		return 0, false
	}
	if workers < 1 {
		workers = 1
	}
	return avg * float64(target) / float64(workers), true
}

// document is the persisted metrics.json layout.
type document struct {
	RunID     string            `json:"run_id"`
	Metadata  map[string]string `json:"metadata"`
	Steps     []StepMetric      `json:"steps"`
	Refs      []ReferenceMetric `json:"references"`
	Summary   *Summary          `json:"summary"`
	StartedAt time.Time         `json:"started_at"`
}

// Save persists the metrics document to path atomically.
func (r *Recorder) Save(path string) error {
	r.mu.Lock()
	doc := document{
		RunID:     r.runID,
		Metadata:  r.metadata,
		Steps:     r.steps,
		Refs:      r.refs,
		Summary:   r.summary,
		StartedAt: r.startedAt,
	}
	r.mu.Unlock()

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	return state.WriteFileAtomic(path, data, 0o644)
}

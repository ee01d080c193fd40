package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// CheckpointView is a read-only snapshot of the checkpoint counters.
type CheckpointView struct {
	RunID               string    `json:"run_id"`
	RunStartedAt        time.Time `json:"run_started_at"`
	Attempted           int       `json:"attempted"`
	Succeeded           int       `json:"succeeded"`
	Failed              int       `json:"failed"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastReference       string    `json:"last_reference,omitempty"`
	LastUpdatedAt       time.Time `json:"last_updated_at"`
}

// Checkpoint is the durable run-level counters document. All counters except
// ConsecutiveFailures are monotonic; ConsecutiveFailures resets on success.
// The document is persisted after every terminal per-reference outcome.
type Checkpoint struct {
	mu   sync.Mutex
	path string
	doc  CheckpointView
}

// LoadCheckpoint loads the checkpoint at path, carrying forward totals from
// a previous run in the same run directory. runID identifies this process
// invocation and is always overwritten.
func LoadCheckpoint(path, runID string) (*Checkpoint, error) {
	c := &Checkpoint{
		path: path,
		doc: CheckpointView{
			RunID:        runID,
			RunStartedAt: time.Now().UTC(),
		},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var prev CheckpointView
	if err := json.Unmarshal(data, &prev); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint file %s: %w", path, err)
	}
	c.doc = prev
	c.doc.RunID = runID
	c.doc.ConsecutiveFailures = 0
	return c, nil
}

// RecordSuccess records a terminal success for ref and persists.
func (c *Checkpoint) RecordSuccess(ref string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.doc.Attempted++
	c.doc.Succeeded++
	c.doc.ConsecutiveFailures = 0
	c.doc.LastReference = ref
	return c.save()
}

// RecordFailure records a terminal failure for ref and persists.
func (c *Checkpoint) RecordFailure(ref string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.doc.Attempted++
	c.doc.Failed++
	c.doc.ConsecutiveFailures++
	c.doc.LastReference = ref
	return c.save()
}

// IsStuck reports whether the run has accumulated threshold or more
// consecutive terminal failures without a success in between.
func (c *Checkpoint) IsStuck(threshold int) bool {
	if threshold <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.ConsecutiveFailures >= threshold
}

// Snapshot returns a copy of the current counters.
func (c *Checkpoint) Snapshot() CheckpointView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc
}

// save rewrites the checkpoint document. Caller must hold the mutex.
func (c *Checkpoint) save() error {
	c.doc.LastUpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&c.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	return WriteFileAtomic(c.path, data, 0o644)
}

// Package state provides the durable per-run stores: the reference tracking
// document and the run checkpoint. Both are single JSON files rewritten
// atomically on every update so that a crash at any point leaves a loadable
// document on disk.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Status is the terminal outcome recorded for a reference.
// A nil entry in the tracking document means the reference is still pending.
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusFailed     Status = "failed"
)

// Tracking is the durable reference → status mapping for a run directory.
// The zero status (absent pointer) means pending. Transitions are
// pending → downloaded (terminal) or pending → failed; downloaded is never
// demoted.
type Tracking struct {
	mu      sync.Mutex
	path    string
	entries map[string]*Status
}

// LoadTracking loads the tracking document at path, or returns an empty
// store if the file does not exist yet.
func LoadTracking(path string) (*Tracking, error) {
	t := &Tracking{
		path:    path,
		entries: make(map[string]*Status),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tracking file: %w", err)
	}
	if err := json.Unmarshal(data, &t.entries); err != nil {
		return nil, fmt.Errorf("failed to parse tracking file %s: %w", path, err)
	}
	return t, nil
}

// Reconcile ensures every inventory reference has an entry. New references
// start pending, unless hasPDF reports an artifact already on disk, in which
// case they are marked downloaded immediately. Failed entries whose PDF does
// not exist revert to pending so a later run retries them. Entries for
// references no longer in the inventory are preserved untouched.
func (t *Tracking) Reconcile(refs []string, hasPDF func(ref string) bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	downloaded := StatusDownloaded
	for _, ref := range refs {
		status, ok := t.entries[ref]
		switch {
		case !ok || status == nil:
			if hasPDF != nil && hasPDF(ref) {
				t.entries[ref] = &downloaded
			} else {
				t.entries[ref] = nil
			}
		case *status == StatusFailed:
			if hasPDF == nil || !hasPDF(ref) {
				t.entries[ref] = nil
			}
		}
	}
	return t.save()
}

// MarkDownloaded records a terminal success for ref. Successful state is
// never overwritten by later calls.
func (t *Tracking) MarkDownloaded(ref string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	status := StatusDownloaded
	t.entries[ref] = &status
	return t.save()
}

// MarkFailed records a terminal failure for ref. If the reference already
// reached downloaded, the call is a no-op: downloaded is never demoted.
func (t *Tracking) MarkFailed(ref string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing := t.entries[ref]; existing != nil && *existing == StatusDownloaded {
		return nil
	}
	status := StatusFailed
	t.entries[ref] = &status
	return t.save()
}

// MarkPending reverts ref to pending. Used by the validator repair pass when
// a produced PDF turns out to be wrong and must be refetched.
func (t *Tracking) MarkPending(ref string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[ref]; !ok {
		return nil
	}
	t.entries[ref] = nil
	return t.save()
}

// StatusOf returns the recorded status for ref. The bool reports whether the
// reference is known at all; a known reference with empty status is pending.
func (t *Tracking) StatusOf(ref string) (Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	status, ok := t.entries[ref]
	if !ok {
		return "", false
	}
	if status == nil {
		return "", true
	}
	return *status, true
}

// Pending filters refs down to those not yet downloaded or terminally failed,
// preserving inventory order.
func (t *Tracking) Pending(refs []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var pending []string
	for _, ref := range refs {
		if status, ok := t.entries[ref]; !ok || status == nil {
			pending = append(pending, ref)
		}
	}
	return pending
}

// Counts returns the number of downloaded, failed, and pending entries.
func (t *Tracking) Counts() (downloaded, failed, pending int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, status := range t.entries {
		switch {
		case status == nil:
			pending++
		case *status == StatusDownloaded:
			downloaded++
		case *status == StatusFailed:
			failed++
		}
	}
	return downloaded, failed, pending
}

// Len returns the total number of tracked references.
func (t *Tracking) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// save rewrites the tracking document. Caller must hold the mutex.
func (t *Tracking) save() error {
	data, err := json.MarshalIndent(t.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tracking: %w", err)
	}
	return WriteFileAtomic(t.path, data, 0o644)
}

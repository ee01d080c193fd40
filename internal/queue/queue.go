// Package queue implements the in-memory task queue that distributes
// reference numbers to workers. The queue is the only arbiter of which worker
// processes which reference: a reference is in at most one of pending,
// in-progress, completed, or terminally-failed at any instant, and the four
// sets together always account for every reference the queue was seeded with.
package queue

import (
	"sync"
	"time"
)

// Lease describes an in-progress reference.
type Lease struct {
	WorkerID  int
	StartedAt time.Time
	Attempt   int
}

// TaskQueue is a mutex-guarded FIFO of reference numbers with retry support
// and stuck-task recovery.
type TaskQueue struct {
	mu         sync.Mutex
	pending    []string
	inProgress map[string]Lease
	completed  map[string]struct{}
	retries    map[string]int
	failed     map[string]int // terminal failures: reference → total attempts
	initial    int
}

// New creates a queue seeded with refs in order.
func New(refs []string) *TaskQueue {
	q := &TaskQueue{
		pending:    make([]string, len(refs)),
		inProgress: make(map[string]Lease),
		completed:  make(map[string]struct{}),
		retries:    make(map[string]int),
		failed:     make(map[string]int),
		initial:    len(refs),
	}
	copy(q.pending, refs)
	return q
}

// Get pops the next pending reference and leases it to workerID, returning
// the lease taken. The bool is false when no reference is pending; the caller
// distinguishes "empty but work outstanding" from "drained" via Stats.
//
// The lease is returned from under the same lock that grants it: looking it
// up afterwards would race the watchdog, which may recover the reference in
// between and leave the caller reporting a zero attempt.
func (q *TaskQueue) Get(workerID int) (string, Lease, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return "", Lease{}, false
	}
	ref := q.pending[0]
	q.pending = q.pending[1:]
	lease := Lease{
		WorkerID:  workerID,
		StartedAt: time.Now(),
		Attempt:   q.retries[ref] + 1,
	}
	q.inProgress[ref] = lease
	return ref, lease, true
}

// Complete records a terminal success for ref by workerID.
//
// The call is ignored when the worker no longer holds the lease (the watchdog
// recovered the reference, or another worker already completed it). This is
// what keeps success at-most-once when a stale worker reports late.
func (q *TaskQueue) Complete(workerID int, ref string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	lease, ok := q.inProgress[ref]
	if !ok || lease.WorkerID != workerID {
		return false
	}
	delete(q.inProgress, ref)
	delete(q.retries, ref)
	q.completed[ref] = struct{}{}
	return true
}

// Fail records a failed attempt for ref by workerID. If retries remain the
// reference is re-appended to pending; otherwise it is recorded as a terminal
// failure. Returns (handled, terminal): handled is false when the worker no
// longer holds the lease and the failure was discarded.
func (q *TaskQueue) Fail(workerID int, ref string, maxRetries int) (handled, terminal bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	lease, ok := q.inProgress[ref]
	if !ok || lease.WorkerID != workerID {
		return false, false
	}
	delete(q.inProgress, ref)

	q.retries[ref]++
	if q.retries[ref] <= maxRetries {
		q.pending = append(q.pending, ref)
		return true, false
	}

	q.failed[ref] = q.retries[ref]
	delete(q.retries, ref)
	return true, true
}

// Stuck returns every in-progress reference whose lease is older than
// threshold.
func (q *TaskQueue) Stuck(threshold time.Duration) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-threshold)
	var stuck []string
	for ref, lease := range q.inProgress {
		if lease.StartedAt.Before(cutoff) {
			stuck = append(stuck, ref)
		}
	}
	return stuck
}

// Recover releases the lease on a stuck reference and re-appends it to
// pending, making it available to any worker. Returns the worker that held
// the lease and whether anything was recovered.
func (q *TaskQueue) Recover(ref string) (workerID int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	lease, exists := q.inProgress[ref]
	if !exists {
		return 0, false
	}
	delete(q.inProgress, ref)
	q.pending = append(q.pending, ref)
	return lease.WorkerID, true
}

// Lease returns the current lease for ref, if any.
func (q *TaskQueue) Lease(ref string) (Lease, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	lease, ok := q.inProgress[ref]
	return lease, ok
}

// Attempts returns the total attempts recorded for a terminally-failed
// reference, or zero.
func (q *TaskQueue) Attempts(ref string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.failed[ref]
}

// TerminalFailures returns the terminally-failed references.
func (q *TaskQueue) TerminalFailures() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	refs := make([]string, 0, len(q.failed))
	for ref := range q.failed {
		refs = append(refs, ref)
	}
	return refs
}

// Stats reports the queue's current cardinalities.
type Stats struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// Drained reports whether no work is pending or in flight.
func (s Stats) Drained() bool {
	return s.Pending == 0 && s.InProgress == 0
}

// Stats returns a snapshot of the queue's cardinalities.
func (q *TaskQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Stats{
		Pending:    len(q.pending),
		InProgress: len(q.inProgress),
		Completed:  len(q.completed),
		Failed:     len(q.failed),
		Total:      q.initial,
	}
}

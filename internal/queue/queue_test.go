package queue

import (
	"testing"
	"time"
)

// checkConservation verifies every seeded reference is accounted for in
// exactly one of the four sets.
func checkConservation(t *testing.T, q *TaskQueue) {
	t.Helper()
	s := q.Stats()
	if got := s.Pending + s.InProgress + s.Completed + s.Failed; got != s.Total {
		t.Errorf("conservation violated: pending=%d in_progress=%d completed=%d failed=%d total=%d",
			s.Pending, s.InProgress, s.Completed, s.Failed, s.Total)
	}
}

func TestTaskQueue_FIFOOrder(t *testing.T) {
	q := New([]string{"a", "b", "c"})

	for _, want := range []string{"a", "b", "c"} {
		ref, _, ok := q.Get(1)
		if !ok {
			t.Fatalf("expected reference %q, queue empty", want)
		}
		if ref != want {
			t.Errorf("expected %q, got %q", want, ref)
		}
		if !q.Complete(1, ref) {
			t.Errorf("Complete(%q) rejected", ref)
		}
		checkConservation(t, q)
	}

	if _, _, ok := q.Get(1); ok {
		t.Error("expected empty queue after draining")
	}
	if !q.Stats().Drained() {
		t.Error("expected drained queue")
	}
}

func TestTaskQueue_RetryThenTerminalFailure(t *testing.T) {
	const maxRetries = 2
	q := New([]string{"a"})

	// Attempts 1..maxRetries requeue, the next one is terminal.
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		ref, lease, ok := q.Get(1)
		if !ok {
			t.Fatalf("attempt %d: queue empty", attempt)
		}
		if lease.Attempt != attempt {
			t.Errorf("attempt %d: lease.Attempt = %d", attempt, lease.Attempt)
		}

		handled, terminal := q.Fail(1, ref, maxRetries)
		if !handled {
			t.Fatalf("attempt %d: Fail rejected", attempt)
		}
		wantTerminal := attempt == maxRetries+1
		if terminal != wantTerminal {
			t.Errorf("attempt %d: terminal = %v, want %v", attempt, terminal, wantTerminal)
		}
		checkConservation(t, q)
	}

	if got := q.Attempts("a"); got != maxRetries+1 {
		t.Errorf("expected %d total attempts, got %d", maxRetries+1, got)
	}
	if failed := q.TerminalFailures(); len(failed) != 1 || failed[0] != "a" {
		t.Errorf("expected terminal failure for 'a', got %v", failed)
	}
	if !q.Stats().Drained() {
		t.Error("expected drained queue after terminal failure")
	}
}

func TestTaskQueue_StaleWorkerCannotComplete(t *testing.T) {
	q := New([]string{"a"})

	ref, _, _ := q.Get(1)

	// Watchdog recovers the reference; worker 1's lease is gone.
	if workerID, ok := q.Recover(ref); !ok || workerID != 1 {
		t.Fatalf("Recover = (%d, %v), want (1, true)", workerID, ok)
	}

	// Worker 1 reports late: both outcomes must be discarded.
	if q.Complete(1, ref) {
		t.Error("stale Complete accepted")
	}
	if handled, _ := q.Fail(1, ref, 2); handled {
		t.Error("stale Fail accepted")
	}
	checkConservation(t, q)

	// Worker 2 picks the recovered reference up and completes it once.
	ref2, _, ok := q.Get(2)
	if !ok || ref2 != ref {
		t.Fatalf("expected recovered reference %q, got %q (ok=%v)", ref, ref2, ok)
	}
	if !q.Complete(2, ref2) {
		t.Error("legitimate Complete rejected")
	}

	s := q.Stats()
	if s.Completed != 1 {
		t.Errorf("expected exactly one completion, got %d", s.Completed)
	}
	checkConservation(t, q)
}

func TestTaskQueue_GetReturnsLeaseTaken(t *testing.T) {
	q := New([]string{"a"})

	ref, lease, ok := q.Get(7)
	if !ok {
		t.Fatal("queue empty")
	}
	if lease.WorkerID != 7 || lease.Attempt != 1 {
		t.Errorf("lease = %+v, want worker 7 attempt 1", lease)
	}

	// The watchdog may recover the reference right after Get; the worker must
	// still know its own attempt number without a post-hoc lookup.
	q.Recover(ref)
	if _, held := q.Lease(ref); held {
		t.Fatal("lease still present after recovery")
	}
	if _, retry, ok := q.Get(8); !ok || retry.Attempt != 1 {
		t.Errorf("recovered reference re-leased with attempt %d, want 1", retry.Attempt)
	}
}

func TestTaskQueue_StuckDetection(t *testing.T) {
	q := New([]string{"a", "b"})

	q.Get(1)
	q.Get(2)

	// Nothing is stuck against a generous threshold.
	if stuck := q.Stuck(time.Hour); len(stuck) != 0 {
		t.Errorf("expected no stuck references, got %v", stuck)
	}

	// Everything in-progress is stuck against a zero threshold.
	time.Sleep(5 * time.Millisecond)
	stuck := q.Stuck(time.Millisecond)
	if len(stuck) != 2 {
		t.Fatalf("expected 2 stuck references, got %v", stuck)
	}

	for _, ref := range stuck {
		if _, ok := q.Recover(ref); !ok {
			t.Errorf("Recover(%q) found no lease", ref)
		}
	}
	checkConservation(t, q)

	s := q.Stats()
	if s.Pending != 2 || s.InProgress != 0 {
		t.Errorf("expected recovered references pending, got %+v", s)
	}
}

func TestTaskQueue_RecoveredReferenceGoesToTail(t *testing.T) {
	q := New([]string{"a", "b"})

	refA, _, _ := q.Get(1)
	if refA != "a" {
		t.Fatalf("expected 'a' first, got %q", refA)
	}
	q.Recover(refA)

	// "b" was already pending; the recovered "a" must queue behind it.
	if ref, _, _ := q.Get(2); ref != "b" {
		t.Errorf("expected 'b' before recovered reference, got %q", ref)
	}
	if ref, _, _ := q.Get(3); ref != "a" {
		t.Errorf("expected recovered 'a' at tail, got %q", ref)
	}
}

func TestTaskQueue_GetOnEmptyNotDrained(t *testing.T) {
	q := New([]string{"a"})

	q.Get(1)

	// Pending is empty but a lease is outstanding: not drained.
	if _, _, ok := q.Get(2); ok {
		t.Error("expected no reference while 'a' is leased")
	}
	if q.Stats().Drained() {
		t.Error("queue must not report drained with an outstanding lease")
	}
}

func TestTaskQueue_CompletedReferenceNotRequeued(t *testing.T) {
	q := New([]string{"a"})

	ref, _, _ := q.Get(1)
	q.Complete(1, ref)

	// Recover on a completed reference is a no-op.
	if _, ok := q.Recover(ref); ok {
		t.Error("Recover resurrected a completed reference")
	}
	if _, _, ok := q.Get(2); ok {
		t.Error("completed reference reappeared in pending")
	}
	checkConservation(t, q)
}

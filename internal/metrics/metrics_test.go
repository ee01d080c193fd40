package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecorder_ReferenceLifecycle(t *testing.T) {
	r := NewRecorder("run-1")

	r.StartReference("a")
	time.Sleep(2 * time.Millisecond)
	r.EndReference("a", 1, 1, StatusSuccess, "")

	r.StartReference("b")
	r.EndReference("b", 2, 3, StatusFailed, "timeout")

	avg, ok := r.AverageSuccessSeconds()
	if !ok {
		t.Fatal("expected an average after one success")
	}
	if avg <= 0 {
		t.Errorf("expected positive average, got %f", avg)
	}
}

func TestRecorder_AverageIgnoresFailures(t *testing.T) {
	r := NewRecorder("run-1")

	r.StartReference("a")
	r.EndReference("a", 1, 1, StatusFailed, "popup")
	r.StartReference("b")
	r.EndReference("b", 1, 2, StatusRetried, "timeout")

	if _, ok := r.AverageSuccessSeconds(); ok {
		t.Error("expected no average with zero successes")
	}
}

func TestRecorder_EstimateScalesWithWorkers(t *testing.T) {
	r := NewRecorder("run-1")

	r.StartReference("a")
	time.Sleep(2 * time.Millisecond)
	r.EndReference("a", 1, 1, StatusSuccess, "")

	one, ok := r.EstimateSeconds(100, 1)
	if !ok {
		t.Fatal("expected an estimate")
	}
	five, _ := r.EstimateSeconds(100, 5)
	if five >= one {
		t.Errorf("expected 5 workers faster than 1: %f vs %f", five, one)
	}

	if _, ok := r.EstimateSeconds(0, 5); ok {
		t.Error("expected no estimate for zero target")
	}
}

func TestRecorder_SaveWritesDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	r := NewRecorder("run-1")

	r.AddMetadata("workers", "5")
	stop := r.TrackStep("login")
	stop()
	r.StartReference("a")
	r.EndReference("a", 1, 1, StatusSuccess, "")
	r.Finalize(10, 1, 1, 0)

	if err := r.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read metrics file: %v", err)
	}
	var doc struct {
		RunID    string            `json:"run_id"`
		Metadata map[string]string `json:"metadata"`
		Steps    []StepMetric      `json:"steps"`
		Refs     []ReferenceMetric `json:"references"`
		Summary  *Summary          `json:"summary"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("metrics file is not valid JSON: %v", err)
	}

	if doc.RunID != "run-1" {
		t.Errorf("run_id = %q", doc.RunID)
	}
	if doc.Metadata["workers"] != "5" {
		t.Errorf("metadata missing: %v", doc.Metadata)
	}
	if len(doc.Steps) != 1 || doc.Steps[0].Name != "login" {
		t.Errorf("unexpected steps: %v", doc.Steps)
	}
	if len(doc.Refs) != 1 || doc.Refs[0].Reference != "a" {
		t.Errorf("unexpected references: %v", doc.Refs)
	}
	if doc.Summary == nil {
		t.Fatal("summary missing")
	}
	if doc.Summary.Remaining != 9 {
		t.Errorf("expected 9 remaining, got %d", doc.Summary.Remaining)
	}
}

func TestRecorder_ConcurrentUse(t *testing.T) {
	r := NewRecorder("run-1")

	done := make(chan struct{})
	for w := 1; w <= 5; w++ {
		go func(id int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 50; i++ {
				ref := "ref"
				r.StartReference(ref)
				r.EndReference(ref, id, 1, StatusSuccess, "")
			}
		}(w)
	}
	for i := 0; i < 5; i++ {
		<-done
	}

	if _, ok := r.AverageSuccessSeconds(); !ok {
		t.Error("expected an average after concurrent successes")
	}
}

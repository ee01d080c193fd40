package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func loadTracking(t *testing.T, path string) *Tracking {
	t.Helper()
	tr, err := LoadTracking(path)
	if err != nil {
		t.Fatalf("LoadTracking failed: %v", err)
	}
	return tr
}

func TestTracking_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracking.json")

	tr := loadTracking(t, path)
	if err := tr.Reconcile([]string{"a", "b", "c"}, nil); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if err := tr.MarkDownloaded("a"); err != nil {
		t.Fatalf("MarkDownloaded failed: %v", err)
	}
	if err := tr.MarkFailed("b"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	// A fresh load must see the same state.
	tr2 := loadTracking(t, path)
	if status, _ := tr2.StatusOf("a"); status != StatusDownloaded {
		t.Errorf("expected 'a' downloaded, got %q", status)
	}
	if status, _ := tr2.StatusOf("b"); status != StatusFailed {
		t.Errorf("expected 'b' failed, got %q", status)
	}
	if status, known := tr2.StatusOf("c"); !known || status != "" {
		t.Errorf("expected 'c' pending, got (%q, %v)", status, known)
	}
}

func TestTracking_DownloadedNeverDemoted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracking.json")

	tr := loadTracking(t, path)
	tr.MarkDownloaded("a")
	tr.MarkFailed("a")

	if status, _ := tr.StatusOf("a"); status != StatusDownloaded {
		t.Errorf("MarkFailed demoted a downloaded reference to %q", status)
	}
}

func TestTracking_ReconcileRetriesFailedWithoutPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracking.json")

	tr := loadTracking(t, path)
	tr.Reconcile([]string{"a", "b"}, nil)
	tr.MarkFailed("a")
	tr.MarkFailed("b")

	// "a" has an artifact on disk, "b" does not.
	hasPDF := func(ref string) bool { return ref == "a" }
	if err := tr.Reconcile([]string{"a", "b"}, hasPDF); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if status, _ := tr.StatusOf("a"); status != StatusFailed {
		t.Errorf("expected 'a' to stay failed (artifact exists), got %q", status)
	}
	if status, _ := tr.StatusOf("b"); status != "" {
		t.Errorf("expected 'b' reverted to pending, got %q", status)
	}
}

func TestTracking_ReconcileAdoptsExistingPDFs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracking.json")

	tr := loadTracking(t, path)
	hasPDF := func(ref string) bool { return ref == "a" }
	if err := tr.Reconcile([]string{"a", "b"}, hasPDF); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if status, _ := tr.StatusOf("a"); status != StatusDownloaded {
		t.Errorf("expected 'a' adopted as downloaded, got %q", status)
	}
	if pending := tr.Pending([]string{"a", "b"}); len(pending) != 1 || pending[0] != "b" {
		t.Errorf("expected only 'b' pending, got %v", pending)
	}
}

func TestTracking_PendingPreservesInventoryOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracking.json")

	tr := loadTracking(t, path)
	refs := []string{"c", "a", "b"}
	tr.Reconcile(refs, nil)
	tr.MarkDownloaded("a")

	pending := tr.Pending(refs)
	if len(pending) != 2 || pending[0] != "c" || pending[1] != "b" {
		t.Errorf("expected [c b], got %v", pending)
	}
}

func TestTracking_MarkPendingForRepair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracking.json")

	tr := loadTracking(t, path)
	tr.MarkDownloaded("a")
	if err := tr.MarkPending("a"); err != nil {
		t.Fatalf("MarkPending failed: %v", err)
	}
	if status, known := tr.StatusOf("a"); !known || status != "" {
		t.Errorf("expected 'a' pending after repair, got (%q, %v)", status, known)
	}

	// Unknown references are ignored.
	if err := tr.MarkPending("zzz"); err != nil {
		t.Fatalf("MarkPending on unknown reference failed: %v", err)
	}
}

func TestTracking_FileIsValidJSONAfterEveryWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracking.json")

	tr := loadTracking(t, path)
	tr.Reconcile([]string{"a", "b"}, nil)
	tr.MarkDownloaded("a")
	tr.MarkFailed("b")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read tracking file: %v", err)
	}
	var doc map[string]*Status
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("tracking file is not valid JSON: %v", err)
	}
	if len(doc) != 2 {
		t.Errorf("expected 2 entries on disk, got %d", len(doc))
	}
}

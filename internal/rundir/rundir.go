// Package rundir manages the on-disk layout of a single run: a date-named
// directory under the download root holding a pdfs/ subfolder for artifacts
// and a run_data/ subfolder for the tracking, checkpoint, metrics, and
// exported inventory documents.
package rundir

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// PDFDirName is the subdirectory for downloaded PDF artifacts.
	PDFDirName = "pdfs"

	// DataDirName is the subdirectory for run documents (tracking,
	// checkpoint, metrics, exported inventory CSV).
	DataDirName = "run_data"

	// TrackingFileName is the reference → status document.
	TrackingFileName = "tracking.json"

	// CheckpointFileName is the run counters document.
	CheckpointFileName = "checkpoint.json"

	// MetricsFileName is the run metrics document.
	MetricsFileName = "metrics.json"

	// InventoryFileName is where the exported inventory CSV is persisted.
	InventoryFileName = "inventory.csv"

	// dateLayout matches the MM-DD-YYYY folder naming convention.
	dateLayout = "01-02-2006"

	// maxRunsPerDay bounds the numeric-suffix search.
	maxRunsPerDay = 100
)

// Dir is a resolved run directory.
type Dir struct {
	path string
}

// Resolve selects the run directory for now under root.
//
// With resume set, the most recent existing run directory for the date is
// reused so that tracking and checkpoint documents carry forward; if none
// exists, the base dated directory is used. Without resume, the first dated
// directory that does not exist or holds no run content is used, appending a
// numeric suffix (" (2)", " (3)", …) past directories from earlier runs.
func Resolve(root string, now time.Time, resume bool) (*Dir, error) {
	base := filepath.Join(root, now.Format(dateLayout))

	if resume {
		path := base
		for n := 2; n <= maxRunsPerDay; n++ {
			candidate := numbered(base, n)
			if _, err := os.Stat(candidate); err != nil {
				break
			}
			path = candidate
		}
		return &Dir{path: path}, nil
	}

	for n := 1; n <= maxRunsPerDay; n++ {
		candidate := base
		if n > 1 {
			candidate = numbered(base, n)
		}
		if _, err := os.Stat(candidate); err != nil || !hasRunContent(candidate) {
			return &Dir{path: candidate}, nil
		}
	}
	return nil, fmt.Errorf("too many runs for %s under %s (>%d)", now.Format(dateLayout), root, maxRunsPerDay)
}

func numbered(base string, n int) string {
	return fmt.Sprintf("%s (%d)", base, n)
}

// hasRunContent reports whether path holds signs of a previous run: any PDF
// artifact or a tracking document.
func hasRunContent(path string) bool {
	if _, err := os.Stat(filepath.Join(path, DataDirName, TrackingFileName)); err == nil {
		return true
	}
	entries, err := os.ReadDir(filepath.Join(path, PDFDirName))
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".pdf" {
			return true
		}
	}
	return false
}

// Path returns the run directory root.
func (d *Dir) Path() string {
	return d.path
}

// PDFDir returns the directory for downloaded PDFs.
func (d *Dir) PDFDir() string {
	return filepath.Join(d.path, PDFDirName)
}

// DataDir returns the directory for run documents.
func (d *Dir) DataDir() string {
	return filepath.Join(d.path, DataDirName)
}

// PDFPath returns the artifact path for a reference: pdfs/<reference>.pdf.
func (d *Dir) PDFPath(ref string) string {
	return filepath.Join(d.PDFDir(), ref+".pdf")
}

// HasPDF reports whether a non-empty artifact exists for ref.
func (d *Dir) HasPDF(ref string) bool {
	info, err := os.Stat(d.PDFPath(ref))
	return err == nil && info.Size() > 0
}

// TrackingPath returns the tracking document path.
func (d *Dir) TrackingPath() string {
	return filepath.Join(d.DataDir(), TrackingFileName)
}

// CheckpointPath returns the checkpoint document path.
func (d *Dir) CheckpointPath() string {
	return filepath.Join(d.DataDir(), CheckpointFileName)
}

// MetricsPath returns the metrics document path.
func (d *Dir) MetricsPath() string {
	return filepath.Join(d.DataDir(), MetricsFileName)
}

// InventoryCSVPath returns where the exported inventory CSV is persisted.
func (d *Dir) InventoryCSVPath() string {
	return filepath.Join(d.DataDir(), InventoryFileName)
}

// EnsureExists creates the run directory tree.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.PDFDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create pdf directory: %w", err)
	}
	if err := os.MkdirAll(d.DataDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create run data directory: %w", err)
	}
	return nil
}

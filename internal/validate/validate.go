// Package validate checks downloaded bookout PDFs after a run: each file
// must be a structurally valid PDF and must actually contain the reference
// number its filename claims. The portal occasionally serves the previous
// report when popups race, so the content check matters more than it looks.
package validate

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/dealerops/bookout/internal/rundir"
	"github.com/dealerops/bookout/internal/state"
)

// Result is the validation outcome for one PDF.
type Result struct {
	Reference string
	Path      string
	Pages     int
	OK        bool
	Problem   string
}

// Summary aggregates a validation pass.
type Summary struct {
	Checked  int
	Valid    int
	Invalid  int
	Results  []Result
	Problems []Result
}

// Dir validates every PDF in the run's pdfs directory.
func Dir(dir *rundir.Dir, logger *slog.Logger) (*Summary, error) {
	entries, err := os.ReadDir(dir.PDFDir())
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf directory: %w", err)
	}

	var refs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
			continue
		}
		refs = append(refs, strings.TrimSuffix(name, filepath.Ext(name)))
	}
	sort.Strings(refs)

	summary := &Summary{}
	for _, ref := range refs {
		res := Check(dir.PDFPath(ref), ref)
		summary.Checked++
		if res.OK {
			summary.Valid++
		} else {
			summary.Invalid++
			summary.Problems = append(summary.Problems, res)
			logger.Warn("invalid pdf",
				"reference", ref, "problem", res.Problem)
		}
		summary.Results = append(summary.Results, res)
	}
	return summary, nil
}

// Check validates a single PDF against its expected reference.
func Check(path, reference string) Result {
	res := Result{Reference: reference, Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Problem = fmt.Sprintf("unreadable: %v", err)
		return res
	}
	if len(data) == 0 {
		res.Problem = "empty file"
		return res
	}

	conf := model.NewDefaultConfiguration()
	conf.Cmd = model.EXTRACTCONTENT
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		res.Problem = fmt.Sprintf("structurally invalid: %v", err)
		return res
	}
	res.Pages = pdfCtx.PageCount
	if res.Pages == 0 {
		res.Problem = "no pages"
		return res
	}

	// The reference lives in the page text, which generated PDFs carry inside
	// Flate-compressed content streams: the decoded streams are what must be
	// searched. The raw scan is only a shortcut for uncompressed documents.
	if !containsReference(data, reference) && !pageContentContains(pdfCtx, res.Pages, reference) {
		res.Problem = "reference not found in document"
		return res
	}

	res.OK = true
	return res
}

// pageContentContains scans the decoded content stream of every page for the
// reference.
func pageContentContains(pdfCtx *model.Context, pages int, reference string) bool {
	for p := 1; p <= pages; p++ {
		r, err := pdfcpu.ExtractPageContent(pdfCtx, p)
		if err != nil || r == nil {
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil {
			continue
		}
		if containsReference(content, reference) {
			return true
		}
	}
	return false
}

// Repair reverts every invalid PDF's tracking entry to pending and deletes
// the file, so the next run re-downloads it.
func Repair(dir *rundir.Dir, tracking *state.Tracking, problems []Result, logger *slog.Logger) error {
	for _, res := range problems {
		if err := os.Remove(res.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", res.Path, err)
		}
		if err := tracking.MarkPending(res.Reference); err != nil {
			return fmt.Errorf("failed to reset tracking for %s: %w", res.Reference, err)
		}
		logger.Info("queued for re-download", "reference", res.Reference)
	}
	return nil
}

// containsReference scans data for the reference number in both plain and
// hex string forms. Callers feed it either the raw file or a decoded page
// content stream.
func containsReference(data []byte, reference string) bool {
	if reference == "" {
		return false
	}
	if bytes.Contains(data, []byte(reference)) {
		return true
	}
	// Hex string form: each byte spelled as two hex digits inside <...>.
	var hex bytes.Buffer
	for i := 0; i < len(reference); i++ {
		fmt.Fprintf(&hex, "%02X", reference[i])
	}
	return bytes.Contains(bytes.ToUpper(data), hex.Bytes())
}

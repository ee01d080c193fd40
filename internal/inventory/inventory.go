// Package inventory reads the exported inventory CSV and yields the ordered
// set of reference numbers. Only the reference column is semantically used by
// the engine; the column name is a configuration value.
package inventory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrColumnMissing is returned when the configured reference column is not
// present in the CSV header.
var ErrColumnMissing = errors.New("reference column not found in inventory header")

// References reads the inventory CSV at path and returns the reference
// numbers in file order. Empty cells are skipped and duplicate references are
// dropped, keeping the first occurrence.
func References(path, column string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open inventory csv: %w", err)
	}
	defer f.Close()
	return Read(f, column)
}

// Read parses inventory CSV content from r. See References.
func Read(r io.Reader, column string) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory header: %w", err)
	}

	col := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), column) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%w: %q", ErrColumnMissing, column)
	}

	var refs []string
	seen := make(map[string]struct{})
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read inventory row: %w", err)
		}
		if col >= len(record) {
			continue
		}
		ref := strings.TrimSpace(record[col])
		if ref == "" {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	return refs, nil
}

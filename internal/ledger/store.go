package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"
	"github.com/insightdelivered/metals-cost-ledger/internal/writer"
)

// ErrMalformed is returned when an existing ledger cannot be parsed.
var ErrMalformed = errors.New("malformed ledger")

// Store loads and replaces a whole ledger.
type Store interface {
	Load() ([]models.CostRecord, error)
	Persist(rows []models.CostRecord) error
}

// MergeInto loads the store, merges rows into it and writes the result
// back. It returns the merged ledger.
func MergeInto(s Store, rows []models.CostRecord) ([]models.CostRecord, error) {
	existing, err := s.Load()
	if err != nil {
		return nil, err
	}
	merged := Merge(existing, rows)
	if err := s.Persist(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// CSVStore keeps the ledger in a CSV file with a header row.
type CSVStore struct {
	Path string
}

// Load reads the ledger. A missing file is an empty ledger.
func (s *CSVStore) Load() ([]models.CostRecord, error) {
	f, err := os.Open(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %q: %w", s.Path, err)
	}
	defer f.Close()

	rows, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path, err)
	}
	return rows, nil
}

// Persist rewrites the whole ledger file.
func (s *CSVStore) Persist(rows []models.CostRecord) error {
	w := &writer.CSVWriter{IncludeHeader: true}
	return w.WriteToFile(s.Path, rows)
}

var requiredColumns = []string{"vendor", "order_id", "metal"}

// ReadCSV decodes ledger rows. Columns are matched by header name, so
// files with reordered or extra columns still load.
func ReadCSV(r io.Reader) ([]models.CostRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformed, name)
		}
	}

	var rows []models.CostRecord
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		if len(rec) != len(header) {
			return nil, fmt.Errorf("%w: line %d: got %d fields, want %d", ErrMalformed, line, len(rec), len(header))
		}
		row, err := decodeRow(rec, col)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeRow(rec []string, col map[string]int) (models.CostRecord, error) {
	get := func(name string) string {
		if i, ok := col[name]; ok {
			return rec[i]
		}
		return ""
	}
	var firstErr error
	num := func(name string) float64 {
		s := strings.TrimSpace(get(name))
		if s == "" {
			return 0
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("column %s: %q is not a number", name, s)
		}
		return v
	}

	row := models.CostRecord{
		Vendor:         get("vendor"),
		Date:           get("date"),
		Metal:          models.Metal(get("metal")),
		Currency:       get("currency"),
		CostTotal:      num("cost_total"),
		CostPerOz:      num("cost_per_oz"),
		OrderID:        get("order_id"),
		Subject:        get("subject"),
		TotalOz:        num("total_oz"),
		UnitCount:      num("unit_count"),
		UnitsBreakdown: get("units_breakdown"),
		Alloc:          models.AllocStrategy(get("alloc")),
	}
	return row, firstErr
}

package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/metals-cost-ledger/internal/costs"
	"github.com/insightdelivered/metals-cost-ledger/internal/models"
)

// Header is the ledger column order.
var Header = []string{
	"vendor", "date", "metal", "currency", "cost_total", "cost_per_oz",
	"order_id", "subject", "total_oz", "unit_count", "units_breakdown", "alloc",
}

// CSVWriter writes cost records to CSV format.
type CSVWriter struct {
	IncludeHeader bool
}

// WriteToFile replaces the file at path with the given records. The rows
// are written to a temporary file in the same directory and renamed over
// the target, so readers never see a half-written ledger.
func (w *CSVWriter) WriteToFile(path string, rows []models.CostRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := w.Write(tmp, rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close output file %q: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %q: %w", path, err)
	}
	return nil
}

// Write writes records in CSV format to the given writer.
func (w *CSVWriter) Write(out io.Writer, rows []models.CostRecord) error {
	writer := csv.NewWriter(out)

	if w.IncludeHeader {
		if err := writer.Write(Header); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
	}

	for _, r := range rows {
		if err := writer.Write(Row(r)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// Row renders one record in ledger column order.
func Row(r models.CostRecord) []string {
	return []string{
		r.Vendor,
		r.Date,
		string(r.Metal),
		r.Currency,
		FormatAmount(r.CostTotal),
		FormatAmount(r.CostPerOz),
		r.OrderID,
		r.Subject,
		formatOunces(r.TotalOz),
		costs.FormatQty(r.UnitCount),
		r.UnitsBreakdown,
		string(r.Alloc),
	}
}

// FormatAmount renders currency with exactly two decimals.
func FormatAmount(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(2)
}

func formatOunces(oz float64) string {
	return decimal.NewFromFloat(oz).Round(3).String()
}

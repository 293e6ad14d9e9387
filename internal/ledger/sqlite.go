package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the ledger in a single cost_records table. Row order is
// preserved through the position column.
type SQLiteStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite ledger path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite ledger %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureLedgerSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func ensureLedgerSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cost_records (
			position INTEGER PRIMARY KEY,
			vendor TEXT NOT NULL,
			date TEXT NOT NULL,
			metal TEXT NOT NULL,
			currency TEXT NOT NULL,
			cost_total REAL NOT NULL,
			cost_per_oz REAL NOT NULL,
			order_id TEXT NOT NULL,
			subject TEXT NOT NULL,
			total_oz REAL NOT NULL,
			unit_count REAL NOT NULL,
			units_breakdown TEXT NOT NULL,
			alloc TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_cost_records_order ON cost_records(vendor, order_id, metal);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create ledger schema: %w", err)
		}
	}
	return nil
}

// ErrClosed is returned by Load and Persist after Close.
var ErrClosed = errors.New("ledger store is closed")

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Load returns every row in ledger order.
func (s *SQLiteStore) Load() ([]models.CostRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrClosed
	}

	rows, err := s.db.Query(`SELECT vendor, date, metal, currency, cost_total, cost_per_oz,
		order_id, subject, total_oz, unit_count, units_breakdown, alloc
		FROM cost_records ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var out []models.CostRecord
	for rows.Next() {
		var (
			r            models.CostRecord
			metal, alloc string
		)
		if err := rows.Scan(&r.Vendor, &r.Date, &metal, &r.Currency, &r.CostTotal, &r.CostPerOz,
			&r.OrderID, &r.Subject, &r.TotalOz, &r.UnitCount, &r.UnitsBreakdown, &alloc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		r.Metal = models.Metal(metal)
		r.Alloc = models.AllocStrategy(alloc)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return out, nil
}

// Persist replaces the table contents in one transaction.
func (s *SQLiteStore) Persist(records []models.CostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cost_records`); err != nil {
		return fmt.Errorf("failed to clear ledger: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO cost_records (position, vendor, date, metal, currency,
		cost_total, cost_per_oz, order_id, subject, total_oz, unit_count, units_breakdown, alloc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare ledger insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.Exec(i, r.Vendor, r.Date, string(r.Metal), r.Currency, r.CostTotal, r.CostPerOz,
			r.OrderID, r.Subject, r.TotalOz, r.UnitCount, r.UnitsBreakdown, string(r.Alloc)); err != nil {
			return fmt.Errorf("failed to insert ledger row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger: %w", err)
	}
	return nil
}

// Mirror persists every write to each store in order. Load reads from
// the first one.
type Mirror []Store

func (m Mirror) Load() ([]models.CostRecord, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return m[0].Load()
}

func (m Mirror) Persist(records []models.CostRecord) error {
	for _, s := range m {
		if err := s.Persist(records); err != nil {
			return err
		}
	}
	return nil
}

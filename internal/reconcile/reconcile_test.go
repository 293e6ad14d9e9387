package reconcile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/metals-cost-ledger/internal/ledger"
	"github.com/insightdelivered/metals-cost-ledger/internal/mailsource"
	"github.com/insightdelivered/metals-cost-ledger/internal/models"
)

const mintSender = "Royal Canadian Mint <orders@email.mint.ca>"

func po123Messages() []models.RawMessage {
	return []models.RawMessage{
		{
			ID:       "ship",
			Subject:  "Shipping Confirmation - PO123",
			Sender:   mintSender,
			Body:     "Your order PO123 has shipped.\n1/10 oz Gold Maple Leaf\nTotal $350.00 CAD",
			Received: time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC),
		},
		{
			ID:       "conf",
			Subject:  "Confirmation for order number PO123",
			Sender:   mintSender,
			Body:     "Thank you for your order.\n1/10 oz Gold Maple Leaf\nTotal $350.00 CAD",
			Received: time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC),
		},
	}
}

func TestReconcilePO123(t *testing.T) {
	rep := NewEngine(nil).Reconcile(po123Messages())

	_, err := uuid.Parse(rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Messages)
	assert.Equal(t, 1, rep.Orders)
	assert.Zero(t, rep.Skipped)
	assert.Zero(t, rep.Dropped)

	require.Len(t, rep.Rows, 1)
	row := rep.Rows[0]
	assert.Equal(t, "RCM", row.Vendor)
	assert.Equal(t, models.MetalGold, row.Metal)
	assert.Equal(t, "PO123", row.OrderID)
	assert.Equal(t, "C$", row.Currency)
	assert.Equal(t, "2024-03-05", row.Date)
	assert.Equal(t, "Confirmation for order number PO123", row.Subject)
	assert.InDelta(t, 350.0, row.CostTotal, 1e-9)
	assert.InDelta(t, 3500.0, row.CostPerOz, 1e-6)
	assert.InDelta(t, 0.1, row.TotalOz, 1e-9)
	assert.Equal(t, "0.1ozx1", row.UnitsBreakdown)
	assert.Equal(t, models.AllocConfirmationDerived, row.Alloc)
}

func TestReconcileSingleMetalOrderTotal(t *testing.T) {
	msgs := []models.RawMessage{{
		ID:       "td1",
		Subject:  "Order Confirmation",
		Sender:   "TD Precious Metals <noreply@td.com>",
		Body:     "Order number 1234567\n1 oz Gold Maple Leaf\nPrice $2,900.00\nTotal $2,900.00",
		Received: time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC),
	}}

	rep := NewEngine(nil).Reconcile(msgs)
	require.Len(t, rep.Rows, 1)
	row := rep.Rows[0]
	assert.Equal(t, "TD", row.Vendor)
	assert.Equal(t, "1234567", row.OrderID)
	assert.InDelta(t, 2900.0, row.CostTotal, 1e-9)
	assert.InDelta(t, row.CostTotal/row.TotalOz, row.CostPerOz, 1e-9)
	assert.Equal(t, models.AllocOrderSingleMetal, row.Alloc)
}

func TestReconcileSkipsCancelledAndUnidentified(t *testing.T) {
	msgs := []models.RawMessage{
		{
			ID:      "c1",
			Subject: "Your Costco.ca Order Number 123456789 has been cancelled",
			Sender:  "orderstatus@costco.ca",
			Body:    "1 oz Gold Bar\nTotal $2,950.00",
		},
		{
			ID:      "n1",
			Subject: "Weekly newsletter",
			Sender:  "news@example.com",
			Body:    "Nothing to see here",
		},
	}

	rep := NewEngine(nil).Reconcile(msgs)
	assert.Equal(t, 1, rep.Orders)
	assert.Equal(t, 1, rep.Cancelled)
	assert.Equal(t, 1, rep.Dropped)
	assert.Empty(t, rep.Rows)
}

func TestReconcileSkipsOrderWithoutItems(t *testing.T) {
	msgs := []models.RawMessage{{
		Subject: "Confirmation for order number PO999",
		Sender:  mintSender,
		Body:    "Thanks, we will be in touch.",
	}}

	rep := NewEngine(nil).Reconcile(msgs)
	assert.Equal(t, 1, rep.Orders)
	assert.Equal(t, 1, rep.Skipped)
	assert.Empty(t, rep.Rows)
}

func writeMessages(t *testing.T, dir string, msgs []models.RawMessage) {
	t.Helper()
	data, err := json.Marshal(msgs)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inbox.json"), data, 0o644))
}

func TestRunMergesAndSuppressesShippingRow(t *testing.T) {
	inbox := t.TempDir()
	writeMessages(t, inbox, po123Messages())

	path := filepath.Join(t.TempDir(), "metals.csv")
	store := &ledger.CSVStore{Path: path}
	require.NoError(t, store.Persist([]models.CostRecord{{
		Vendor: "RCM", Date: "2024-03-08", Metal: models.MetalGold, Currency: "C$",
		CostTotal: 360, CostPerOz: 3600, OrderID: "PO123", Subject: "Shipping Confirmation - PO123",
		TotalOz: 0.1, UnitCount: 1, UnitsBreakdown: "0.1ozx1", Alloc: models.AllocOrderSingleMetal,
	}}))

	opts := RunOptions{Queries: []string{"*.json"}, Ledger: store, LedgerName: path}
	out, err := NewEngine(nil).Run(context.Background(), mailsource.NewDirSource(inbox, nil), opts)
	require.NoError(t, err)
	assert.Equal(t, "merged 1 row(s) into "+path, out.Line)
	assert.Zero(t, out.ExitCode)
	assert.Equal(t, 2, out.Fetch.Fetched)

	rows, err := store.Load()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.AllocConfirmationDerived, rows[0].Alloc)
	assert.InDelta(t, 350.0, rows[0].CostTotal, 1e-9)

	// A second identical run leaves the ledger unchanged.
	_, err = NewEngine(nil).Run(context.Background(), mailsource.NewDirSource(inbox, nil), opts)
	require.NoError(t, err)
	again, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, rows, again)
}

func TestRunOutcomes(t *testing.T) {
	t.Run("no messages", func(t *testing.T) {
		out, err := NewEngine(nil).Run(context.Background(), mailsource.NewDirSource(t.TempDir(), nil), RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, LineNoMessages, out.Line)
		assert.Zero(t, out.ExitCode)
	})

	t.Run("no orders", func(t *testing.T) {
		dir := t.TempDir()
		writeMessages(t, dir, []models.RawMessage{{Subject: "hello", Sender: "a@example.com", Body: "hi"}})
		out, err := NewEngine(nil).Run(context.Background(), mailsource.NewDirSource(dir, nil), RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, LineNoOrders, out.Line)
		assert.Zero(t, out.ExitCode)
	})

	t.Run("no costs", func(t *testing.T) {
		dir := t.TempDir()
		writeMessages(t, dir, []models.RawMessage{{
			Subject: "Confirmation for order number PO999", Sender: mintSender, Body: "Thanks.",
		}})
		out, err := NewEngine(nil).Run(context.Background(), mailsource.NewDirSource(dir, nil), RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, LineNoCosts, out.Line)
		assert.Equal(t, 1, out.ExitCode)
	})

	t.Run("dry run", func(t *testing.T) {
		dir := t.TempDir()
		writeMessages(t, dir, po123Messages())
		path := filepath.Join(t.TempDir(), "metals.csv")
		opts := RunOptions{Ledger: &ledger.CSVStore{Path: path}, LedgerName: path, DryRun: true}
		out, err := NewEngine(nil).Run(context.Background(), mailsource.NewDirSource(dir, nil), opts)
		require.NoError(t, err)
		assert.Equal(t, "dry run: 1 row(s) not written", out.Line)
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})
}

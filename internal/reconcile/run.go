package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/insightdelivered/metals-cost-ledger/internal/ledger"
	"github.com/insightdelivered/metals-cost-ledger/internal/mailsource"
)

// Report lines.
const (
	LineNoMessages = "no messages found"
	LineNoOrders   = "no orders found"
	LineNoCosts    = "messages found but no costs extracted"
)

// RunOptions controls one fetch-and-merge pass.
type RunOptions struct {
	Queries  []string
	MaxPages int
	PageSize int

	// Ledger receives the rows unless DryRun is set. LedgerName is only
	// used in the report line.
	Ledger     ledger.Store
	LedgerName string
	DryRun     bool
}

// Outcome is what a pass did and what to print about it.
type Outcome struct {
	Report
	Fetch    mailsource.Stats `json:"fetch"`
	Merged   int              `json:"merged"`
	Line     string           `json:"line"`
	ExitCode int              `json:"exitCode"`
}

// Run collects messages from src, reconciles them and merges the rows
// into the ledger. The exit code is 1 when messages were found but no
// row came out of them. Ledger failures are returned as errors.
func (e *Engine) Run(ctx context.Context, src mailsource.Source, opts RunOptions) (Outcome, error) {
	msgs, stats := mailsource.Collect(ctx, src, opts.Queries, opts.MaxPages, opts.PageSize, e.log)
	out := Outcome{Fetch: stats}
	if len(msgs) == 0 {
		out.Line = LineNoMessages
		e.log.Info(out.Line, zap.Int("queries", stats.Queries))
		return out, ctx.Err()
	}

	out.Report = e.Reconcile(msgs)
	log := e.log.With(zap.String("run_id", out.RunID))
	switch {
	case out.Orders == 0:
		out.Line = LineNoOrders
	case len(out.Rows) == 0:
		out.Line = LineNoCosts
		out.ExitCode = 1
	case opts.DryRun || opts.Ledger == nil:
		out.Line = fmt.Sprintf("dry run: %d row(s) not written", len(out.Rows))
	default:
		if _, err := ledger.MergeInto(opts.Ledger, out.Rows); err != nil {
			return out, fmt.Errorf("failed to merge into %s: %w", opts.LedgerName, err)
		}
		out.Merged = len(out.Rows)
		out.Line = fmt.Sprintf("merged %d row(s) into %s", out.Merged, opts.LedgerName)
	}
	log.Info(out.Line,
		zap.Int("messages", out.Messages),
		zap.Int("orders", out.Orders),
		zap.Int("skipped", out.Skipped),
		zap.Int("cancelled", out.Cancelled))
	return out, nil
}

// Package reconcile runs the cost pipeline: grouping, extraction,
// allocation and row building.
package reconcile

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightdelivered/metals-cost-ledger/internal/costs"
	"github.com/insightdelivered/metals-cost-ledger/internal/models"
	"github.com/insightdelivered/metals-cost-ledger/internal/orders"
	"github.com/insightdelivered/metals-cost-ledger/internal/parser"
)

const defaultCurrency = "C$"

// Report summarizes one reconciliation pass.
type Report struct {
	RunID     string              `json:"runId"`
	Messages  int                 `json:"messages"`
	Orders    int                 `json:"orders"`
	Skipped   int                 `json:"skipped"`
	Cancelled int                 `json:"cancelled"`
	Dropped   int                 `json:"dropped"` // messages without an order id
	Rows      []models.CostRecord `json:"rows"`
}

// Engine turns raw messages into cost records.
type Engine struct {
	log     *zap.Logger
	grouper *orders.Grouper
}

// NewEngine returns an engine logging to log; nil silences it.
func NewEngine(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{log: log, grouper: orders.NewGrouper(log)}
}

// Reconcile groups msgs into orders and builds one record per order and
// metal. Cancelled orders and orders without a usable cost are counted,
// not reported as errors.
func (e *Engine) Reconcile(msgs []models.RawMessage) Report {
	rep := Report{RunID: uuid.NewString(), Messages: len(msgs)}
	log := e.log.With(zap.String("run_id", rep.RunID))

	grouped := e.grouper.Group(msgs)
	rep.Orders = len(grouped)
	kept := 0
	for _, o := range orders.Sorted(grouped) {
		kept += len(o.Messages)
		olog := log.With(zap.String("vendor", o.Vendor), zap.String("order_id", o.OrderID))
		if o.Cancelled {
			rep.Cancelled++
			olog.Info("skipping cancelled order")
			continue
		}
		rows := e.reconcileOrder(o, olog)
		if len(rows) == 0 {
			rep.Skipped++
			continue
		}
		for _, r := range rows {
			olog.Info("cost extracted",
				zap.String("metal", string(r.Metal)),
				zap.String("alloc", string(r.Alloc)),
				zap.Float64("cost_total", r.CostTotal),
				zap.Float64("total_oz", r.TotalOz))
		}
		rep.Rows = append(rep.Rows, rows...)
	}
	rep.Dropped = len(msgs) - kept
	return rep
}

func (e *Engine) reconcileOrder(o *models.Order, log *zap.Logger) []models.CostRecord {
	vendor, err := parser.New(o.Vendor)
	if err != nil {
		log.Warn("no parser for vendor", zap.Error(err))
		return nil
	}

	tally := costs.NewTally()
	orderTotal := 0.0
	var latest time.Time
	for _, msg := range o.Authoritative() {
		items, lines := vendor.LineItems(msg.Body)
		hits := make([]*models.PriceHit, len(items))
		for i, it := range items {
			if hit, ok := vendor.FindPrice(lines, it); ok {
				hits[i] = &hit
			}
		}
		tally.AddMessage(items, hits)
		if t, ok := parser.OrderTotal(msg.Body); ok && t > orderTotal {
			orderTotal = t
		}
		if msg.Received.After(latest) {
			latest = msg.Received
		}
	}
	if tally.Empty() {
		log.Debug("no line items found")
		return nil
	}

	quirks := vendor.Quirks()
	alloc, strategy := costs.Allocate(
		tally.OzByMetal(),
		tally.LineCosts(quirks.BulkSilverTotals),
		orderTotal,
		costs.Options{RemainderMetal: quirks.RemainderMetal},
	)

	canonical := o.CanonicalMessage()
	in := costs.RowInput{
		Vendor:   vendor.Name(),
		OrderID:  o.OrderID,
		Subject:  canonical.Subject,
		Currency: currencyFor(vendor, o.Authoritative()),
		Date:     latest,
		Units:    tally.Units(),
		Costs:    alloc,
		Strategy: strategy,
	}
	if o.CanonicalCategory == models.CategoryConfirmation {
		if seq := vendor.TotalSequence(canonical.Body); len(seq) > 0 {
			in.Items, _ = vendor.LineItems(canonical.Body)
			in.Sequence = seq
		}
	}

	rows := costs.BuildRows(in)
	if len(rows) == 0 {
		log.Debug("no positive cost resolved", zap.Float64("order_total", orderTotal))
	}
	return rows
}

func currencyFor(vendor parser.Vendor, msgs []models.RawMessage) string {
	if c := vendor.Currency(); c != "" {
		return c
	}
	for _, m := range msgs {
		if c, ok := parser.DetectCurrency(m.Body); ok {
			return c
		}
	}
	return defaultCurrency
}

// Package mailsource fetches vendor mail from a directory of fixtures or
// from the Gmail REST API.
package mailsource

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"
)

// ErrTransient marks a request that kept failing after its retries.
var ErrTransient = errors.New("transient source failure")

// Source lists and fetches messages.
type Source interface {
	ListMessageIDs(ctx context.Context, query string, maxPages, pageSize int) ([]string, error)
	GetMessage(ctx context.Context, id string) (models.RawMessage, error)
}

// DefaultGmailQueries cover the supported vendors, including cancellation
// notices.
var DefaultGmailQueries = []string{
	`from:noreply@td.com subject:"TD Precious Metals"`,
	`from:TDPreciousMetals@tdsecurities.com "Your order has arrived"`,
	`from:orderstatus@costco.ca subject:"Your Costco.ca Order Number"`,
	`(from:email.mint.ca OR from:mint.ca OR from:royalcanadianmint.ca) (order OR confirmation OR receipt OR shipped OR invoice)`,
	`cancel from:orderstatus@costco.ca`,
	`cancel from:order-cancel@costco.ca`,
}

// Stats counts what a Collect pass did.
type Stats struct {
	Queries     int
	QueryErrors int
	Listed      int
	Fetched     int
	FetchErrors int
	Duplicates  int
}

// Collect runs every query, dedupes the ids and fetches each message once.
// No queries means a single empty query, which sources treat as "all".
// Failed lists and fetches are logged and skipped; ids a failed list
// returned before its error are still fetched. A cancelled context stops
// the pass and returns what was fetched so far.
func Collect(ctx context.Context, src Source, queries []string, maxPages, pageSize int, log *zap.Logger) ([]models.RawMessage, Stats) {
	if log == nil {
		log = zap.NewNop()
	}
	var (
		stats Stats
		ids   []string
		seen  = make(map[string]bool)
	)
	if len(queries) == 0 {
		queries = []string{""}
	}
	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		stats.Queries++
		found, err := src.ListMessageIDs(ctx, q, maxPages, pageSize)
		if err != nil {
			stats.QueryErrors++
			log.Warn("list failed, keeping partial results",
				zap.String("query", q), zap.Int("ids", len(found)), zap.Error(err))
		}
		for _, id := range found {
			stats.Listed++
			if seen[id] {
				stats.Duplicates++
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}

	msgs := make([]models.RawMessage, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		msg, err := src.GetMessage(ctx, id)
		if err != nil {
			stats.FetchErrors++
			log.Warn("fetch failed, skipping message", zap.String("id", id), zap.Error(err))
			continue
		}
		stats.Fetched++
		msgs = append(msgs, msg)
	}
	log.Debug("collect finished",
		zap.Int("queries", stats.Queries),
		zap.Int("listed", stats.Listed),
		zap.Int("fetched", stats.Fetched),
		zap.Int("fetch_errors", stats.FetchErrors))
	return msgs, stats
}

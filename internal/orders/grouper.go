// Package orders groups vendor mail into purchase orders.
package orders

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"
	"github.com/insightdelivered/metals-cost-ledger/internal/parser"
)

// categoryRules are checked in priority order; the first phrase found wins.
var categoryRules = []struct {
	category models.Category
	phrases  []string
}{
	{models.CategoryConfirmation, []string{"confirmation for order", "order confirmation", "your costco.ca order"}},
	{models.CategoryShipping, []string{"shipping confirmation", "was shipped", "has shipped"}},
	{models.CategoryRequest, []string{"we received your request"}},
}

var cancelledPattern = regexp.MustCompile(`(?i)\bcancel(?:l)?ed\b`)

// Classify assigns a message category from its subject.
func Classify(subject string) models.Category {
	low := strings.ToLower(subject)
	for _, rule := range categoryRules {
		for _, phrase := range rule.phrases {
			if strings.Contains(low, phrase) {
				return rule.category
			}
		}
	}
	return models.CategoryOther
}

// IsCancelled reports whether a message announces a cancelled order,
// judged from the subject or the first few body lines.
func IsCancelled(msg models.RawMessage) bool {
	if cancelledPattern.MatchString(msg.Subject) {
		return true
	}
	lines := strings.SplitN(msg.Body, "\n", 6)
	if len(lines) > 5 {
		lines = lines[:5]
	}
	return cancelledPattern.MatchString(strings.Join(lines, "\n"))
}

// Grouper assigns messages to orders.
type Grouper struct {
	log *zap.Logger
}

// NewGrouper returns a grouper that logs dropped messages at debug level.
func NewGrouper(log *zap.Logger) *Grouper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Grouper{log: log}
}

// Group keys messages by vendor order id. Messages without an id are
// dropped. The canonical message of an order is the first one seen with
// the highest category priority.
func (g *Grouper) Group(messages []models.RawMessage) map[string]*models.Order {
	out := make(map[string]*models.Order)
	for _, msg := range messages {
		vendor := parser.Detect(msg.Sender)
		id, ok := vendor.OrderID(msg.Subject, msg.Body)
		if !ok {
			g.log.Debug("message has no order id", zap.String("message_id", msg.ID), zap.String("subject", msg.Subject))
			continue
		}
		cat := Classify(msg.Subject)

		order, exists := out[id]
		if !exists {
			order = &models.Order{
				OrderID:           id,
				Vendor:            vendor.Name(),
				Canonical:         0,
				CanonicalCategory: cat,
				Seq:               len(out),
			}
			out[id] = order
		}
		order.Messages = append(order.Messages, msg)
		order.Categories = append(order.Categories, cat)
		if exists && cat.Priority() > order.CanonicalCategory.Priority() {
			order.Canonical = len(order.Messages) - 1
			order.CanonicalCategory = cat
			order.Vendor = vendor.Name()
		}
		if IsCancelled(msg) {
			order.Cancelled = true
		}
	}
	return out
}

// Group is a convenience wrapper using a silent grouper.
func Group(messages []models.RawMessage) map[string]*models.Order {
	return NewGrouper(nil).Group(messages)
}

// Sorted returns the orders in first-seen order.
func Sorted(orders map[string]*models.Order) []*models.Order {
	out := make([]*models.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

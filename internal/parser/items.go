package parser

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"
)

// Unit-size notations recognised on a single line.
var (
	// 1/10 oz, 1 / 4-oz
	fracOzPattern = regexp.MustCompile(`(?i)\b(\d+)\s*/\s*(\d+)\s*[- ]?oz\b`)
	// 1 oz, 1.5oz, 10-oz
	decimalOzPattern = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*[- ]?oz\b`)
	// 31.1 g, 5 grams
	gramPattern = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:g|gram|grams)\b`)

	metalPattern    = regexp.MustCompile(`(?i)\b(gold|silver)\b`)
	trailingQtyExpr = regexp.MustCompile(`(?i)\bx\s*(\d+)\b`)
)

type sizeMatch struct {
	start, end int
	unitOz     float64
}

// ExtractLineItems scans text line by line for unit-size notations and
// returns the items found together with the normalized lines.
// Quantities default to 1 unless a trailing "x N" follows the metal.
func ExtractLineItems(text string) ([]models.LineItem, []string) {
	lines := splitLines(text)
	var items []models.LineItem
	for i, line := range lines {
		for _, m := range sizeMatches(line) {
			item := models.LineItem{
				Metal:  models.MetalUnknown,
				UnitOz: m.unitOz,
				Qty:    1,
				Line:   i,
				Offset: m.start,
			}
			tail := line[m.end:]
			qtyFrom := 0
			if loc := metalPattern.FindStringSubmatchIndex(tail); loc != nil {
				item.Metal = models.Metal(strings.ToLower(tail[loc[2]:loc[3]]))
				qtyFrom = loc[1]
			} else if metal, ok := lastMetal(line[:m.start]); ok {
				item.Metal = metal
			}
			if loc := trailingQtyExpr.FindStringSubmatchIndex(tail[qtyFrom:]); loc != nil {
				if n, err := strconv.Atoi(tail[qtyFrom+loc[2] : qtyFrom+loc[3]]); err == nil && n > 0 {
					item.Qty = float64(n)
					item.Explicit = true
				}
			}
			items = append(items, item)
		}
	}
	return items, lines
}

// sizeMatches returns the unit sizes in a line ordered by position.
// A decimal match inside or right after a fraction is part of that fraction.
func sizeMatches(line string) []sizeMatch {
	var out []sizeMatch
	var fracSpans [][2]int
	for _, loc := range fracOzPattern.FindAllStringSubmatchIndex(line, -1) {
		num, _ := strconv.ParseFloat(line[loc[2]:loc[3]], 64)
		den, _ := strconv.ParseFloat(line[loc[4]:loc[5]], 64)
		fracSpans = append(fracSpans, [2]int{loc[0], loc[1]})
		if num <= 0 || den <= 0 {
			continue
		}
		out = append(out, sizeMatch{start: loc[0], end: loc[1], unitOz: num / den})
	}
	for _, loc := range decimalOzPattern.FindAllStringSubmatchIndex(line, -1) {
		if loc[0] > 0 && line[loc[0]-1] == '/' {
			continue
		}
		if insideSpan(loc[0], fracSpans) {
			continue
		}
		v, err := strconv.ParseFloat(line[loc[2]:loc[3]], 64)
		if err != nil || v <= 0 {
			continue
		}
		out = append(out, sizeMatch{start: loc[0], end: loc[1], unitOz: v})
	}
	for _, loc := range gramPattern.FindAllStringSubmatchIndex(line, -1) {
		v, err := strconv.ParseFloat(line[loc[2]:loc[3]], 64)
		if err != nil || v <= 0 {
			continue
		}
		out = append(out, sizeMatch{start: loc[0], end: loc[1], unitOz: v / models.GramsPerTroyOunce})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

func insideSpan(pos int, spans [][2]int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}

func lastMetal(s string) (models.Metal, bool) {
	all := metalPattern.FindAllString(s, -1)
	if len(all) == 0 {
		return "", false
	}
	return models.Metal(strings.ToLower(all[len(all)-1])), true
}

// metalNear returns the first metal keyword on the line or its neighbours.
func metalNear(lines []string, idx, reach int) (models.Metal, bool) {
	for _, j := range neighbours(idx, len(lines), reach, reach) {
		if m := metalPattern.FindString(lines[j]); m != "" {
			return models.Metal(strings.ToLower(m)), true
		}
	}
	return "", false
}

// Package extractor turns message parts into plain text for the parsers.
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// ErrUnreadable is returned when a PDF yields no usable text.
var ErrUnreadable = errors.New("no readable text in PDF")

// PDFText returns the text of an in-memory PDF, one line per row, with
// pages separated by a blank line. Row reconstruction from GetTextByRow
// is tried first, then coordinate grouping of the raw content.
func PDFText(data []byte) (string, error) {
	pages, err := readPages(data)
	if err != nil {
		return "", err
	}
	if !isReadableText(pages) {
		return "", ErrUnreadable
	}
	return strings.Join(pages, "\n\n"), nil
}

func readPages(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PDF library crashed: %v", r)
		}
	}()

	r, openErr := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if openErr != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", openErr)
	}
	numPages := r.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	pages = extractByRow(r, numPages)
	if isReadableText(pages) {
		return pages, nil
	}
	return extractByContent(r, numPages), nil
}

func extractByRow(r *pdf.Reader, numPages int) []string {
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		var lines []string
		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

// extractByContent groups text pieces by rounded Y and orders them by X.
// PDF Y grows upwards, so rows are emitted top to bottom by descending Y.
func extractByContent(r *pdf.Reader, numPages int) []string {
	type piece struct {
		x float64
		s string
	}
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		rowMap := make(map[int][]piece)
		for _, t := range content.Text {
			if strings.TrimSpace(t.S) == "" {
				continue
			}
			y := int(math.Round(t.Y))
			rowMap[y] = append(rowMap[y], piece{x: t.X, s: t.S})
		}
		ys := make([]int, 0, len(rowMap))
		for y := range rowMap {
			ys = append(ys, y)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(ys)))

		var lines []string
		for _, y := range ys {
			row := rowMap[y]
			sort.Slice(row, func(a, b int) bool { return row[a].x < row[b].x })
			var sb strings.Builder
			for j, p := range row {
				// Wide gaps are column breaks.
				if j > 0 && p.x-row[j-1].x > 15 {
					sb.WriteString("  ")
				}
				sb.WriteString(p.s)
			}
			if line := strings.TrimSpace(sb.String()); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

// receiptWords appear in virtually every invoice or order receipt.
var receiptWords = []string{
	"order", "total", "subtotal", "qty", "quantity", "price", "invoice",
	"oz", "gold", "silver", "shipping", "tax", "amount",
}

// isReadableText requires more than 50 characters, mostly printable ASCII,
// and at least one receipt word.
func isReadableText(pages []string) bool {
	if totalTextLen(pages) <= 50 {
		return false
	}
	if textQuality(pages) <= 0.6 {
		return false
	}
	combined := strings.ToLower(strings.Join(pages, " "))
	for _, w := range receiptWords {
		if strings.Contains(combined, w) {
			return true
		}
	}
	return false
}

// textQuality is the ratio of basic readable characters to all characters.
// unicode.IsLetter is too broad here: identity-encoded fonts decode to
// accented garbage.
func textQuality(pages []string) float64 {
	total, readable := 0, 0
	for _, page := range pages {
		for _, r := range page {
			total++
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) ||
				unicode.IsSpace(r) || strings.ContainsRune(".,-/:;()'\"$%&@#!?+=*", r)) {
				readable++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}

func totalTextLen(pages []string) int {
	n := 0
	for _, p := range pages {
		n += len(strings.TrimSpace(p))
	}
	return n
}

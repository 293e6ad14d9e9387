package extractor

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// blockElements end the current line.
var blockElements = map[atom.Atom]bool{
	atom.Br: true, atom.P: true, atom.Div: true, atom.Tr: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.Table: true,
	atom.Ul: true, atom.Ol: true, atom.Hr: true,
}

// cellElements are separated by a space within a row.
var cellElements = map[atom.Atom]bool{atom.Td: true, atom.Th: true}

var spaceRun = regexp.MustCompile(`[ \t\f\v]+`)

// HTMLToText flattens an HTML body to text, keeping one line per block
// element so line-proximity heuristics still work. Script and style
// content is dropped. Tokenizer errors end the scan with what was read.
func HTMLToText(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))
	var sb strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return tidy(sb.String())
		case html.TextToken:
			// Source newlines are layout, not structure.
			if skip == 0 {
				sb.WriteString(strings.Map(func(r rune) rune {
					if r == '\n' || r == '\r' {
						return ' '
					}
					return r
				}, string(z.Text())))
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch {
			case a == atom.Script || a == atom.Style || a == atom.Head:
				if tt == html.StartTagToken {
					skip++
				}
			case blockElements[a]:
				sb.WriteByte('\n')
			case cellElements[a]:
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch {
			case a == atom.Script || a == atom.Style || a == atom.Head:
				if skip > 0 {
					skip--
				}
			case blockElements[a]:
				sb.WriteByte('\n')
			}
		}
	}
}

// tidy collapses whitespace within lines and drops empty lines.
func tidy(s string) string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(spaceRun.ReplaceAllString(strings.ReplaceAll(l, "\u00a0", " "), " "))
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

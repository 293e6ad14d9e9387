package mailsource

import (
	"strings"

	"go.uber.org/zap"

	"github.com/insightdelivered/metals-cost-ledger/internal/extractor"
)

// bodyParts collects the interesting MIME parts of one message.
type bodyParts struct {
	plain string
	html  string
	pdfs  [][]byte
}

func (b *bodyParts) add(mediaType string, data []byte) {
	switch strings.ToLower(mediaType) {
	case "text/plain":
		if b.plain == "" {
			b.plain = string(data)
		}
	case "text/html":
		if b.html == "" {
			b.html = string(data)
		}
	case "application/pdf":
		b.pdfs = append(b.pdfs, data)
	}
}

// text prefers the plain part, falls back to converted HTML and appends
// the text of readable PDF attachments.
func (b *bodyParts) text(log *zap.Logger) string {
	body := b.plain
	if strings.TrimSpace(body) == "" && b.html != "" {
		body = extractor.HTMLToText(b.html)
	}
	for i, data := range b.pdfs {
		txt, err := extractor.PDFText(data)
		if err != nil {
			log.Debug("skipping unreadable PDF attachment", zap.Int("attachment", i), zap.Error(err))
			continue
		}
		if body != "" {
			body += "\n\n"
		}
		body += txt
	}
	return body
}

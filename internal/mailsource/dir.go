package mailsource

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"
)

// DirSource serves messages from *.json and *.eml files in one directory.
// A JSON file holds one message object or an array of them. The query is
// a filename glob; "" matches everything.
type DirSource struct {
	Dir string
	log *zap.Logger
}

// NewDirSource returns a source rooted at dir.
func NewDirSource(dir string, log *zap.Logger) *DirSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &DirSource{Dir: dir, log: log}
}

// ListMessageIDs returns ids in filename order. Paging limits the number
// of files read to maxPages*pageSize when both are positive. Elements of
// a JSON array get ids of the form "name#index".
func (s *DirSource) ListMessageIDs(ctx context.Context, query string, maxPages, pageSize int) ([]string, error) {
	if query == "" {
		query = "*"
	}
	matches, err := filepath.Glob(filepath.Join(s.Dir, query))
	if err != nil {
		return nil, fmt.Errorf("bad query %q: %w", query, err)
	}
	var files []string
	for _, m := range matches {
		switch strings.ToLower(filepath.Ext(m)) {
		case ".json", ".eml":
			files = append(files, m)
		}
	}
	sort.Strings(files)
	if maxPages > 0 && pageSize > 0 && len(files) > maxPages*pageSize {
		files = files[:maxPages*pageSize]
	}

	var ids []string
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return ids, err
		}
		name := filepath.Base(f)
		if strings.ToLower(filepath.Ext(f)) != ".json" {
			ids = append(ids, name)
			continue
		}
		msgs, isArray, err := readJSON(f)
		if err != nil {
			s.log.Warn("skipping unreadable message file", zap.String("file", f), zap.Error(err))
			continue
		}
		if !isArray {
			ids = append(ids, name)
			continue
		}
		for i := range msgs {
			ids = append(ids, name+"#"+strconv.Itoa(i))
		}
	}
	return ids, nil
}

// GetMessage decodes the message behind id.
func (s *DirSource) GetMessage(ctx context.Context, id string) (models.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return models.RawMessage{}, err
	}
	name, index, hasIndex := strings.Cut(id, "#")
	if name != filepath.Base(name) {
		return models.RawMessage{}, fmt.Errorf("invalid message id %q", id)
	}
	path := filepath.Join(s.Dir, name)

	if strings.ToLower(filepath.Ext(name)) == ".eml" {
		f, err := os.Open(path)
		if err != nil {
			return models.RawMessage{}, fmt.Errorf("failed to open %q: %w", path, err)
		}
		defer f.Close()
		msg, err := ParseEML(f, s.log)
		if err != nil {
			return models.RawMessage{}, fmt.Errorf("%s: %w", path, err)
		}
		if msg.ID == "" {
			msg.ID = id
		}
		return msg, nil
	}

	msgs, _, err := readJSON(path)
	if err != nil {
		return models.RawMessage{}, err
	}
	i := 0
	if hasIndex {
		if i, err = strconv.Atoi(index); err != nil || i < 0 || i >= len(msgs) {
			return models.RawMessage{}, fmt.Errorf("invalid message id %q", id)
		}
	}
	if len(msgs) == 0 {
		return models.RawMessage{}, fmt.Errorf("%s: no message", path)
	}
	msg := msgs[i]
	if msg.ID == "" {
		msg.ID = id
	}
	return msg, nil
}

func readJSON(path string) ([]models.RawMessage, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %q: %w", path, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var msgs []models.RawMessage
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, true, fmt.Errorf("failed to decode %q: %w", path, err)
		}
		return msgs, true, nil
	}
	var msg models.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false, fmt.Errorf("failed to decode %q: %w", path, err)
	}
	return []models.RawMessage{msg}, false, nil
}

var wordDecoder = &mime.WordDecoder{}

// ParseEML decodes an RFC 5322 message with optional MIME parts.
func ParseEML(r io.Reader, log *zap.Logger) (models.RawMessage, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m, err := mail.ReadMessage(r)
	if err != nil {
		return models.RawMessage{}, fmt.Errorf("failed to parse message: %w", err)
	}

	msg := models.RawMessage{
		ID:      strings.Trim(m.Header.Get("Message-Id"), "<> "),
		Subject: decodeHeader(m.Header.Get("Subject")),
		Sender:  decodeHeader(m.Header.Get("From")),
	}
	if d, err := m.Header.Date(); err == nil {
		msg.Received = d.UTC()
	}

	var parts bodyParts
	if err := walkPart(&parts, m.Header.Get("Content-Type"), m.Header.Get("Content-Transfer-Encoding"), m.Body); err != nil {
		return models.RawMessage{}, err
	}
	msg.Body = parts.text(log)
	return msg, nil
}

func decodeHeader(v string) string {
	if out, err := wordDecoder.DecodeHeader(v); err == nil {
		return out
	}
	return v
}

func walkPart(parts *bodyParts, contentType, encoding string, body io.Reader) error {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}
	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read MIME part: %w", err)
			}
			if err := walkPart(parts, p.Header.Get("Content-Type"), p.Header.Get("Content-Transfer-Encoding"), p); err != nil {
				return err
			}
		}
	}
	data, err := io.ReadAll(decodeTransfer(encoding, body))
	if err != nil {
		return fmt.Errorf("failed to decode %s part: %w", mediaType, err)
	}
	parts.add(mediaType, data)
	return nil
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

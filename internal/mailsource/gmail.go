package mailsource

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/patrickmn/go-cache"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"
)

const (
	defaultGmailBaseURL = "https://gmail.googleapis.com/gmail/v1"
	defaultPageSize     = 100
)

// GmailOptions configures a GmailSource. Zero values fall back to the
// defaults noted on each field.
type GmailOptions struct {
	BaseURL           string        // gmail REST root
	User              string        // "me"
	AccessToken       string        // bearer token; empty sends no auth header
	Timeout           time.Duration // 30s
	MaxRetries        int           // 3
	RequestsPerSecond float64       // unlimited when <= 0
	CacheTTL          time.Duration // 30m
	MinBackoff        time.Duration // 2s
	MaxBackoff        time.Duration // 30s
	HTTPClient        *http.Client  // base client, wrapped with the token
}

// GmailSource reads messages through the Gmail REST v1 API.
type GmailSource struct {
	opts    GmailOptions
	client  *http.Client
	limiter *rate.Limiter
	cache   *cache.Cache
	log     *zap.Logger
}

// NewGmailSource builds a source from opts.
func NewGmailSource(opts GmailOptions, log *zap.Logger) *GmailSource {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultGmailBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.User == "" {
		opts.User = "me"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Minute
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 2 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	var client *http.Client
	if opts.AccessToken != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.AccessToken}))
	} else {
		c := *base
		client = &c
	}
	client.Timeout = opts.Timeout

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &GmailSource{
		opts:    opts,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		cache:   cache.New(opts.CacheTTL, 2*opts.CacheTTL),
		log:     log,
	}
}

// ListMessageIDs pages through messages.list for query.
func (g *GmailSource) ListMessageIDs(ctx context.Context, query string, maxPages, pageSize int) ([]string, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if maxPages <= 0 {
		maxPages = 1
	}
	var (
		ids   []string
		token string
	)
	for page := 0; page < maxPages; page++ {
		params := url.Values{}
		params.Set("q", query)
		params.Set("maxResults", strconv.Itoa(pageSize))
		if token != "" {
			params.Set("pageToken", token)
		}
		body, err := g.get(ctx, g.userURL("messages")+"?"+params.Encode())
		if err != nil {
			return ids, fmt.Errorf("list %q: %w", query, err)
		}
		for _, id := range gjson.GetBytes(body, "messages.#.id").Array() {
			ids = append(ids, id.String())
		}
		token = gjson.GetBytes(body, "nextPageToken").String()
		if token == "" {
			break
		}
	}
	return ids, nil
}

// GetMessage fetches one message with format=full. Results are cached
// by id for the configured TTL.
func (g *GmailSource) GetMessage(ctx context.Context, id string) (models.RawMessage, error) {
	if v, ok := g.cache.Get(id); ok {
		return v.(models.RawMessage), nil
	}
	body, err := g.get(ctx, g.userURL("messages", id)+"?format=full")
	if err != nil {
		return models.RawMessage{}, fmt.Errorf("get %s: %w", id, err)
	}
	msg, err := g.decodeMessage(ctx, id, gjson.ParseBytes(body))
	if err != nil {
		return models.RawMessage{}, err
	}
	g.cache.Set(id, msg, cache.DefaultExpiration)
	return msg, nil
}

func (g *GmailSource) decodeMessage(ctx context.Context, id string, m gjson.Result) (models.RawMessage, error) {
	msg := models.RawMessage{ID: m.Get("id").String()}
	if msg.ID == "" {
		msg.ID = id
	}
	m.Get("payload.headers").ForEach(func(_, h gjson.Result) bool {
		switch strings.ToLower(h.Get("name").String()) {
		case "subject":
			msg.Subject = h.Get("value").String()
		case "from":
			msg.Sender = h.Get("value").String()
		}
		return true
	})
	if ms := m.Get("internalDate").Int(); ms > 0 {
		msg.Received = time.UnixMilli(ms).UTC()
	}

	var parts bodyParts
	if err := g.walkPayload(ctx, msg.ID, m.Get("payload"), &parts); err != nil {
		return models.RawMessage{}, err
	}
	msg.Body = parts.text(g.log)
	if strings.TrimSpace(msg.Body) == "" {
		msg.Body = m.Get("snippet").String()
	}
	return msg, nil
}

func (g *GmailSource) walkPayload(ctx context.Context, msgID string, part gjson.Result, parts *bodyParts) error {
	mediaType := strings.ToLower(part.Get("mimeType").String())
	if data := part.Get("body.data").String(); data != "" {
		decoded, err := decodeBase64URL(data)
		if err != nil {
			return fmt.Errorf("decode %s body of %s: %w", mediaType, msgID, err)
		}
		parts.add(mediaType, decoded)
	} else if aid := part.Get("body.attachmentId").String(); aid != "" && mediaType == "application/pdf" {
		body, err := g.get(ctx, g.userURL("messages", msgID, "attachments", aid))
		if err != nil {
			g.log.Warn("skipping attachment", zap.String("id", msgID), zap.Error(err))
		} else if decoded, err := decodeBase64URL(gjson.GetBytes(body, "data").String()); err == nil {
			parts.add(mediaType, decoded)
		}
	}
	var walkErr error
	part.Get("parts").ForEach(func(_, child gjson.Result) bool {
		walkErr = g.walkPayload(ctx, msgID, child, parts)
		return walkErr == nil
	})
	return walkErr
}

// decodeBase64URL accepts padded and unpadded url-safe base64.
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

func (g *GmailSource) userURL(elems ...string) string {
	escaped := make([]string, 0, len(elems)+2)
	escaped = append(escaped, "users", url.PathEscape(g.opts.User))
	for _, e := range elems {
		escaped = append(escaped, url.PathEscape(e))
	}
	return g.opts.BaseURL + "/" + strings.Join(escaped, "/")
}

// get issues a paced GET. 429, 5xx and transport failures are retried
// with exponential backoff.
func (g *GmailSource) get(ctx context.Context, rawURL string) ([]byte, error) {
	b := &backoff.Backoff{Min: g.opts.MinBackoff, Max: g.opts.MaxBackoff, Factor: 2}
	var lastErr error
	for attempt := 0; attempt <= g.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := b.Duration()
			g.log.Debug("retrying gmail request", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		body, retry, err := g.do(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: giving up after %d attempts: %v", ErrTransient, g.opts.MaxRetries+1, lastErr)
}

func (g *GmailSource) do(ctx context.Context, rawURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return body, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("gmail API error: %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("gmail API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

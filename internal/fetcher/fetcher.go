// Package fetcher queries the upstream inventory API for one item at the
// configured store.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"stockwatch/internal/availability"
	"stockwatch/internal/model"
)

const (
	// DefaultBaseURL is the production inventory host.
	DefaultBaseURL = "https://redsky.target.com"

	fulfillmentPath = "/redsky_aggregations/v1/web/product_fulfillment_and_variation_hierarchy_v1"
	maxBodySize     = 5 * 1024 * 1024
	snippetSize     = 500

	defaultUserAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36"
	defaultAcceptLanguage = "en-US,en;q=0.9"
	scheduledDeliveryID   = "830"
)

// Upstream failure kinds. Check with errors.Is.
var (
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	ErrUpstreamRejected    = errors.New("upstream rejected request")
	ErrUpstreamMalformed   = errors.New("upstream response malformed")
)

// RejectedError carries the status of a non-200 upstream response.
type RejectedError struct {
	StatusCode int
	Snippet    string
}

func (e *RejectedError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("%s: status %d", ErrUpstreamRejected, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", ErrUpstreamRejected, e.StatusCode, e.Snippet)
}

func (e *RejectedError) Unwrap() error { return ErrUpstreamRejected }

// Kind returns a short label for err suitable for logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUpstreamRejected):
		return "rejected"
	case errors.Is(err, ErrUpstreamMalformed):
		return "malformed"
	case errors.Is(err, ErrUpstreamUnreachable):
		return "unreachable"
	default:
		return "other"
	}
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config describes how to reach the upstream for one store.
type Config struct {
	BaseURL        string
	APIKey         string
	UserAgent      string
	AcceptLanguage string
	Store          model.StoreContext
	Timeout        time.Duration
}

// Payload is an undecoded upstream response.
type Payload struct {
	ItemID    string
	Body      []byte
	FetchedAt time.Time
}

// Client fetches and normalizes availability for single items.
type Client struct {
	client     HTTPClient
	cfg        Config
	normalizer *availability.Normalizer
	log        *slog.Logger
	now        func() time.Time
}

// New creates a Client. A zero Timeout defaults to 15 seconds.
func New(client HTTPClient, cfg Config, normalizer *availability.Normalizer, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = defaultAcceptLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		client:     client,
		cfg:        cfg,
		normalizer: normalizer,
		log:        log,
		now:        time.Now,
	}
}

// Fetch retrieves one item and normalizes it. Payloads that parse but
// match no known field are logged and returned with default values.
func (c *Client) Fetch(ctx context.Context, itemID string) (model.AvailabilityRecord, error) {
	p, err := c.FetchRaw(ctx, itemID)
	if err != nil {
		return model.AvailabilityRecord{}, err
	}
	rec, trace := c.normalizer.Normalize(itemID, p.Body, p.FetchedAt)
	if !trace.Matched() {
		c.log.Warn("availability payload matched no known field",
			"item_id", itemID, "snippet", snippet(p.Body))
	} else {
		c.log.Debug("normalized availability",
			"item_id", itemID,
			"quantity_rule", trace.Quantity,
			"status_rule", trace.Status,
			"available", rec.Available)
	}
	return rec, nil
}

// FetchRaw performs one upstream request and validates that the body is
// JSON.
func (c *Client) FetchRaw(ctx context.Context, itemID string) (*Payload, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, errors.New("item id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(itemID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, itemID)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUpstreamUnreachable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &RejectedError{StatusCode: resp.StatusCode, Snippet: snippet(body)}
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrUpstreamMalformed)
	}

	return &Payload{ItemID: itemID, Body: body, FetchedAt: c.now().UTC()}, nil
}

func (c *Client) requestURL(itemID string) string {
	s := c.cfg.Store
	q := url.Values{}
	q.Set("key", c.cfg.APIKey)
	q.Set("required_store_id", s.StoreID)
	q.Set("latitude", s.Latitude)
	q.Set("longitude", s.Longitude)
	q.Set("scheduled_delivery_store_id", scheduledDeliveryID)
	q.Set("state", s.State)
	q.Set("zip", s.Zip)
	q.Set("store_id", s.StoreID)
	q.Set("paid_membership", "false")
	q.Set("base_membership", "true")
	q.Set("card_membership", "false")
	q.Set("is_bot", "false")
	q.Set("tcin", itemID)
	q.Set("visitor_id", s.VisitorID)
	q.Set("channel", "WEB")
	q.Set("page", "/p/A-"+itemID)
	return c.cfg.BaseURL + fulfillmentPath + "?" + q.Encode()
}

func (c *Client) setHeaders(req *http.Request, itemID string) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", c.cfg.AcceptLanguage)
	req.Header.Set("Origin", "https://www.target.com")
	req.Header.Set("Referer", "https://www.target.com/p/-/A-"+itemID)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.Store.Cookie != "" {
		req.Header.Set("Cookie", c.cfg.Store.Cookie)
	}
}

func snippet(body []byte) string {
	if len(body) > snippetSize {
		body = body[:snippetSize]
	}
	return strings.TrimSpace(string(body))
}

package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"stockwatch/internal/availability"
	"stockwatch/internal/model"
)

type mockTransport struct {
	mu         sync.Mutex
	body       string
	statusCode int
	err        error
	block      bool
	requests   []*http.Request
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.block {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func (m *mockTransport) lastRequest() *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

var testStore = model.StoreContext{
	StoreID:   "2314",
	Latitude:  "46.280",
	Longitude: "-119.280",
	Zip:       "99352",
	State:     "WA",
	VisitorID: "0199A1B2C3D4",
	Cookie:    "TealeafAkaSid=abc; visitorId=0199A1B2C3D4",
}

func newTestClient(transport HTTPClient) *Client {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(transport, Config{
		BaseURL: "https://redsky.example.com/",
		APIKey:  "test-key",
		Store:   testStore,
		Timeout: time.Second,
	}, availability.New(testStore.StoreID, availability.PolicyAvailable), log)
	c.now = func() time.Time { return time.Date(2025, 10, 26, 18, 0, 0, 0, time.UTC) }
	return c
}

const inStockBody = `{"data":{"product":{"store_options":[{"location_id":"2314","location_available_to_promise_quantity":3,"availability_status":"IN_STOCK","store":{"location_name":"Richland"}}]}}}`

func TestFetch(t *testing.T) {
	tests := []struct {
		name      string
		transport *mockTransport
		want      model.AvailabilityRecord
		wantErr   error
	}{
		{
			name:      "successful fetch",
			transport: &mockTransport{body: inStockBody, statusCode: 200},
			want: model.AvailabilityRecord{
				ItemID: "93954446", StoreID: "2314", StoreName: "Richland",
				Available: true, Quantity: func() *int { n := 3; return &n }(),
				StatusLabel: "IN_STOCK",
				ObservedAt:  time.Date(2025, 10, 26, 18, 0, 0, 0, time.UTC),
			},
		},
		{
			name:      "http error status",
			transport: &mockTransport{body: `{"errors":[{"message":"no"}]}`, statusCode: 403},
			wantErr:   ErrUpstreamRejected,
		},
		{
			name:      "network error",
			transport: &mockTransport{err: io.ErrUnexpectedEOF},
			wantErr:   ErrUpstreamUnreachable,
		},
		{
			name:      "invalid json",
			transport: &mockTransport{body: "<html>blocked</html>", statusCode: 200},
			wantErr:   ErrUpstreamMalformed,
		},
		{
			name:      "valid json without known fields",
			transport: &mockTransport{body: `{"data":{}}`, statusCode: 200},
			want: model.AvailabilityRecord{
				ItemID: "93954446", StoreID: "2314", StoreName: availability.DefaultStoreName,
				Available: true, StatusLabel: availability.DefaultStatus,
				ObservedAt: time.Date(2025, 10, 26, 18, 0, 0, 0, time.UTC),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(tt.transport)
			got, err := c.Fetch(context.Background(), "93954446")

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("record mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetchRejectedCarriesStatus(t *testing.T) {
	body := strings.Repeat("x", 2000)
	c := newTestClient(&mockTransport{body: body, statusCode: 429})

	_, err := c.FetchRaw(context.Background(), "93954446")

	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("error = %v, want *RejectedError", err)
	}
	if diff := cmp.Diff(429, rej.StatusCode); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
	if len(rej.Snippet) != snippetSize {
		t.Errorf("snippet length = %d, want %d", len(rej.Snippet), snippetSize)
	}
	if diff := cmp.Diff("rejected", Kind(err)); diff != "" {
		t.Errorf("kind mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchTimeout(t *testing.T) {
	transport := &mockTransport{block: true}
	c := newTestClient(transport)
	c.cfg.Timeout = 20 * time.Millisecond

	start := time.Now()
	_, err := c.Fetch(context.Background(), "93954446")
	if !errors.Is(err, ErrUpstreamUnreachable) {
		t.Fatalf("error = %v, want ErrUpstreamUnreachable", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want wrapped context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("fetch took %s, want bounded by timeout", elapsed)
	}
}

func TestFetchRequestShape(t *testing.T) {
	transport := &mockTransport{body: inStockBody, statusCode: 200}
	c := newTestClient(transport)

	if _, err := c.FetchRaw(context.Background(), " 93954446 "); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	req := transport.lastRequest()
	if req == nil {
		t.Fatal("no request recorded")
	}
	if diff := cmp.Diff("redsky.example.com", req.URL.Host); diff != "" {
		t.Errorf("host mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(fulfillmentPath, req.URL.Path); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}

	q := req.URL.Query()
	wantQuery := map[string]string{
		"key":                         "test-key",
		"tcin":                        "93954446",
		"store_id":                    "2314",
		"required_store_id":           "2314",
		"scheduled_delivery_store_id": "830",
		"latitude":                    "46.280",
		"longitude":                   "-119.280",
		"zip":                         "99352",
		"state":                       "WA",
		"visitor_id":                  "0199A1B2C3D4",
		"channel":                     "WEB",
		"page":                        "/p/A-93954446",
		"is_bot":                      "false",
	}
	gotQuery := make(map[string]string, len(wantQuery))
	for k := range wantQuery {
		gotQuery[k] = q.Get(k)
	}
	if diff := cmp.Diff(wantQuery, gotQuery); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}

	wantHeaders := map[string]string{
		"Accept":  "application/json",
		"Origin":  "https://www.target.com",
		"Referer": "https://www.target.com/p/-/A-93954446",
		"Cookie":  testStore.Cookie,
	}
	gotHeaders := make(map[string]string, len(wantHeaders))
	for k := range wantHeaders {
		gotHeaders[k] = req.Header.Get(k)
	}
	if diff := cmp.Diff(wantHeaders, gotHeaders); diff != "" {
		t.Errorf("headers mismatch (-want +got):\n%s", diff)
	}
	if req.Header.Get("User-Agent") == "" {
		t.Error("User-Agent header is empty")
	}
}

func TestFetchEmptyItem(t *testing.T) {
	transport := &mockTransport{body: inStockBody, statusCode: 200}
	c := newTestClient(transport)
	if _, err := c.FetchRaw(context.Background(), "  "); err == nil {
		t.Fatal("expected error, got nil")
	}
	if transport.lastRequest() != nil {
		t.Error("request sent for empty item id")
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: "ok"},
		{err: ErrUpstreamUnreachable, want: "unreachable"},
		{err: &RejectedError{StatusCode: 500}, want: "rejected"},
		{err: ErrUpstreamMalformed, want: "malformed"},
		{err: errors.New("boom"), want: "other"},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, Kind(tt.err)); diff != "" {
			t.Errorf("Kind(%v) mismatch (-want +got):\n%s", tt.err, diff)
		}
	}
}

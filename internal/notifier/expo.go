package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultExpoURL is the Expo push gateway.
const DefaultExpoURL = "https://exp.host/--/api/v2/push/send"

const deviceNotRegistered = "DeviceNotRegistered"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DeliveryError describes a push the gateway did not accept.
type DeliveryError struct {
	Destination string
	StatusCode  int
	Code        string
	Message     string
}

func (e *DeliveryError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "deliver to %s", e.Destination)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, ": %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// Unwrap exposes ErrDestinationGone for unregistered devices.
func (e *DeliveryError) Unwrap() error {
	if e.Code == deviceNotRegistered {
		return ErrDestinationGone
	}
	return nil
}

// Expo sends messages through the Expo push gateway.
type Expo struct {
	client      HTTPClient
	url         string
	accessToken string
}

// NewExpo creates an Expo dispatcher. An empty url selects DefaultExpoURL.
func NewExpo(client HTTPClient, url, accessToken string) *Expo {
	if url == "" {
		url = DefaultExpoURL
	}
	return &Expo{client: client, url: url, accessToken: accessToken}
}

type expoMessage struct {
	To    string         `json:"to"`
	Sound string         `json:"sound"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

// Dispatch posts one message and checks the returned push ticket.
func (e *Expo) Dispatch(ctx context.Context, destination string, msg Message) error {
	payload, err := json.Marshal([]expoMessage{{
		To:    destination,
		Sound: "default",
		Title: msg.Title,
		Body:  msg.Body,
		Data:  msg.Data,
	}})
	if err != nil {
		return fmt.Errorf("encode push: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if e.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.accessToken)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post push: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read push response: %w", err)
	}

	doc := gjson.ParseBytes(body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{
			Destination: destination,
			StatusCode:  resp.StatusCode,
			Code:        doc.Get("errors.0.code").String(),
			Message:     doc.Get("errors.0.message").String(),
		}
	}

	ticket := doc.Get("data")
	if ticket.IsArray() {
		ticket = ticket.Get("0")
	}
	if ticket.Get("status").String() == "error" {
		return &DeliveryError{
			Destination: destination,
			Code:        ticket.Get("details.error").String(),
			Message:     ticket.Get("message").String(),
		}
	}
	return nil
}

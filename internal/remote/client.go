// Package remote is the client of the association's REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"talahum/internal/core"
	"talahum/internal/ports"
)

// Ensure interface conformance
var (
	_ ports.SubscriberSource = (*Client)(nil)
	_ ports.ReceiptSequencer = (*Client)(nil)
	_ ports.PaymentWriter    = (*Client)(nil)
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 8 << 20

type Client struct {
	baseURL *url.URL
	http    *http.Client
	tokens  TokenSource
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the overall request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a client for the API rooted at baseURL (e.g. http://localhost:8000/api).
func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url scheme %q", u.Scheme)
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// ListSubscribers implements ports.SubscriberSource.
func (c *Client) ListSubscribers(ctx context.Context, p core.Period) ([]core.RawSubscriber, error) {
	q := url.Values{}
	q.Set("month", strconv.Itoa(p.Month))
	q.Set("year", strconv.Itoa(p.Year))

	body, err := c.do(ctx, http.MethodGet, "/subscription", q, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list subscribers %s: %w", p, err)
	}
	data, err := dataArray(body, "subscriber list")
	if err != nil {
		return nil, err
	}
	var items []core.RawSubscriber
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &core.DecodeError{What: "subscriber list", Err: err}
	}
	return items, nil
}

// MaxSubscriptionID returns the highest subscription id known to the API, 0 when there are none.
func (c *Client) MaxSubscriptionID(ctx context.Context) (int64, error) {
	body, err := c.do(ctx, http.MethodGet, "/subscriptions", nil, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}
	data, err := dataArray(body, "subscription list")
	if err != nil {
		return 0, err
	}
	var records []core.RawSubscription
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, &core.DecodeError{What: "subscription list", Err: err}
	}
	var maxID int64
	for _, r := range records {
		if r.ID > maxID {
			maxID = r.ID
		}
	}
	return maxID, nil
}

// NextReceiptNumber implements ports.ReceiptSequencer by scanning for the highest subscription id.
func (c *Client) NextReceiptNumber(ctx context.Context) (string, error) {
	maxID, err := c.MaxSubscriptionID(ctx)
	if err != nil {
		return "", err
	}
	return core.FormatReceiptNumber(maxID), nil
}

type createPaymentBody struct {
	SubscriberID  int64       `json:"subscriber_id"`
	Amount        json.Number `json:"amount"`
	Month         int         `json:"month"`
	PaymentMethod string      `json:"payment_method"`
	Status        string      `json:"status"`
	PaidAt        string      `json:"paid_at"`
}

// CreatePayment implements ports.PaymentWriter.
func (c *Client) CreatePayment(ctx context.Context, p core.Payment) error {
	payload, err := json.Marshal(createPaymentBody{
		SubscriberID:  p.SubscriberID,
		Amount:        json.Number(p.Amount.String()),
		Month:         p.Month,
		PaymentMethod: p.Method,
		Status:        string(p.Status),
		PaidAt:        p.PaidAt.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal payment: %w", err)
	}
	header := http.Header{}
	if p.FlowID != "" {
		header.Set("X-Idempotency-Key", p.FlowID)
	}
	if _, err := c.do(ctx, http.MethodPost, "/subscriptions", nil, header, payload); err != nil {
		return fmt.Errorf("create payment for subscriber %d: %w", p.SubscriberID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, header http.Header, payload []byte) ([]byte, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	slog.DebugContext(ctx, "API call completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// dataArray extracts the "data" array of a response envelope. A missing or
// null data field is an empty list.
func dataArray(body []byte, what string) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &core.DecodeError{What: what, Err: err}
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return json.RawMessage("[]"), nil
	}
	if data[0] != '[' {
		return nil, &core.DecodeError{What: what, Err: errors.New("data is not an array")}
	}
	return data, nil
}

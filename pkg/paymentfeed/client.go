package paymentfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
)

const (
	defaultLimit                = 100
	defaultTimeout              = 10 * time.Second
	responseBodyReadLimit int64 = 1024
)

var errBaseURLRequired = errors.New("payment feed base url is required")

// Transaction is one incoming bank transfer as reported by the feed or a webhook.
type Transaction struct {
	ID         string    `json:"id"`
	Amount     int64     `json:"amount"`
	Content    string    `json:"content"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Client reads recent incoming transactions from the bank feed API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limit      int
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured feed base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithLimit caps how many transactions a single fetch asks for.
func WithLimit(limit int) Option {
	return func(c *Client) {
		if limit > 0 {
			c.limit = limit
		}
	}
}

// WithTimeout sets the timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 && c.httpClient != nil {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a feed client. The token is sent as a bearer credential.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	client := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimSpace(baseURL),
		token:      strings.TrimSpace(token),
		limit:      defaultLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.baseURL == "" {
		return nil, errBaseURLRequired
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return client, nil
}

// Recent returns the latest transactions in feed order.
func (c *Client) Recent(ctx context.Context) ([]Transaction, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment feed client not configured")
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.limit))
	endpoint := fmt.Sprintf("%s/transactions?%s", strings.TrimRight(c.baseURL, "/"), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build payment feed request")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute payment feed request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "payment feed request failed")
	}

	var payload struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment feed response")
	}

	out := make([]Transaction, 0, len(payload.Transactions))
	for _, txn := range payload.Transactions {
		txn.ID = strings.TrimSpace(txn.ID)
		if txn.ID == "" {
			continue
		}
		txn.OccurredAt = txn.OccurredAt.UTC()
		out = append(out, txn)
	}
	return out, nil
}

package rephrase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 4 << 10

// StatusError is returned by [Client.Rephrase] for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rephrase: service returned status %d", e.Code)
	}
	return fmt.Sprintf("rephrase: service returned status %d: %s", e.Code, e.Message)
}

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// Client is a [Service] that calls a remote rephrase endpoint speaking the
// JSON contract served at POST /api/rephrase.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient returns a client for endpoint. An empty endpoint yields a client
// whose every call fails with [ErrNotConfigured].
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: strings.TrimSpace(endpoint),
		http:     http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Rephrase implements [Service].
func (c *Client) Rephrase(ctx context.Context, req Request) (*Response, error) {
	if c.endpoint == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("rephrase: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rephrase: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("rephrase: post: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		if json.Unmarshal(raw, &e) != nil {
			e.Error = strings.TrimSpace(string(raw))
		}
		serr := &StatusError{Code: httpResp.StatusCode, Message: e.Error}
		// A remote service without a model is a configuration problem on
		// its side; stop asking.
		if httpResp.StatusCode == http.StatusServiceUnavailable && strings.Contains(e.Error, "not configured") {
			return nil, errors.Join(ErrNotConfigured, serr)
		}
		return nil, serr
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("rephrase: decode response: %w", err)
	}
	return &resp, nil
}

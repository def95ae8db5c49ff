package backend

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
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"RhizaCore/internal/metrics"
)

// Error is a non-2xx response from the RPC endpoint.
type Error struct {
	Procedure string
	Status    int
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details"`
	Hint      string `json:"hint"`
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("rpc %s: status %d: %s", e.Procedure, e.Status, msg)
}

// Client calls named remote procedures over the PostgREST RPC endpoint.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	// MaxRetries bounds retries of transport errors and 5xx responses.
	MaxRetries uint64
	// InitialBackoff is the first retry delay; it doubles on every attempt.
	InitialBackoff time.Duration

	log *slog.Logger
}

// NewClient creates a client with optional proxy support.
func NewClient(baseURL, apiKey, proxyURL string, timeout time.Duration, log *slog.Logger) *Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &Client{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		APIKey:         apiKey,
		HTTPClient:     &http.Client{Timeout: timeout, Transport: transport},
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		log:            log,
	}
}

// Call invokes procedure with params and decodes the JSON response into out.
func (c *Client) Call(ctx context.Context, procedure string, params, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", procedure, err)
	}
	endpoint := fmt.Sprintf("%s/rest/v1/rpc/%s", c.BaseURL, procedure)
	return c.retry(ctx, procedure, func() error {
		return c.do(ctx, http.MethodPost, endpoint, procedure, body, out)
	})
}

// Select reads rows of table filtered by PostgREST query parameters.
func (c *Client) Select(ctx context.Context, table string, query url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/rest/v1/%s", c.BaseURL, table)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return c.retry(ctx, table, func() error {
		return c.do(ctx, http.MethodGet, endpoint, table, nil, out)
	})
}

func (c *Client) retry(ctx context.Context, name string, call func() error) error {
	start := time.Now()
	attempt := 0
	op := func() error {
		attempt++
		err := call()
		var rpcErr *Error
		if errors.As(err, &rpcErr) && rpcErr.Status < http.StatusInternalServerError {
			return backoff.Permanent(err)
		}
		if err != nil && ctx.Err() == nil {
			c.log.Warn("rpc attempt failed", "procedure", name, "attempt", attempt, "error", err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, c.MaxRetries), ctx))
	metrics.RecordRPC(name, time.Since(start), err)
	return err
}

func (c *Client) do(ctx context.Context, method, endpoint, procedure string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return backoff.Permanent(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("apikey", c.APIKey)
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", procedure, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("rpc %s: read body: %w", procedure, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rpcErr := &Error{Procedure: procedure, Status: resp.StatusCode}
		if json.Unmarshal(data, rpcErr) != nil {
			rpcErr.Message = strings.TrimSpace(string(data))
		}
		return rpcErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return backoff.Permanent(fmt.Errorf("rpc %s: decode response: %w", procedure, err))
	}
	return nil
}

package ton

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"RhizaCore/internal/metrics"
)

// Account is the balance of a TON address.
type Account struct {
	Address      string    `json:"address"`
	Balance      Nano      `json:"balance"`
	BalanceTON   string    `json:"balance_ton"`
	Status       string    `json:"status"`
	LastActivity int64     `json:"last_activity"`
	Cached       bool      `json:"cached"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// JettonBalance is an address's holding of one jetton.
type JettonBalance struct {
	Master    string `json:"jetton_address"`
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	Decimals  int    `json:"decimals"`
	Raw       string `json:"balance"`
	Formatted string `json:"balance_formatted"`
}

// Options configures a Client.
type Options struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	CacheTTL          time.Duration
	CacheSize         int
	Timeout           time.Duration
	Proxy             string
	Clock             clockwork.Clock
	Logger            *slog.Logger
}

type cacheEntry struct {
	account   Account
	expiresAt time.Time
}

// Client reads balances from a tonapi-compatible HTTP API.
// Requests are throttled, concurrent lookups of the same address share one request,
// and balances are cached for CacheTTL.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	group   singleflight.Group
	cache   *lru.Cache
	ttl     time.Duration
	clock   clockwork.Clock
	log     *slog.Logger

	maxRetries     uint64
	initialBackoff time.Duration
}

func NewClient(opts Options) (*Client, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = 1024
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	cache, err := lru.New(opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create balance cache: %w", err)
	}

	transport := &http.Transport{}
	if opts.Proxy != "" {
		if u, err := url.Parse(opts.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		apiKey:         opts.APIKey,
		http:           &http.Client{Timeout: opts.Timeout, Transport: transport},
		limiter:        rate.NewLimiter(limit, 1),
		cache:          cache,
		ttl:            opts.CacheTTL,
		clock:          opts.Clock,
		log:            opts.Logger,
		maxRetries:     2,
		initialBackoff: time.Second,
	}, nil
}

// Balance returns the TON balance of address.
func (c *Client) Balance(ctx context.Context, address string) (*Account, error) {
	address = strings.TrimSpace(address)
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	key := strings.ToLower(address)

	if acc, ok := c.cached(key); ok {
		metrics.TONRequestsTotal.WithLabelValues("hit").Inc()
		return acc, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		var resp struct {
			Balance      json.Number `json:"balance"`
			Status       string      `json:"status"`
			LastActivity int64       `json:"last_activity"`
		}
		if err := c.get(ctx, "/v2/accounts/"+url.PathEscape(address), &resp); err != nil {
			return nil, err
		}
		balance, err := ParseNano(resp.Balance.String())
		if err != nil {
			return nil, err
		}
		acc := Account{
			Address:      address,
			Balance:      balance,
			BalanceTON:   balance.TON(),
			Status:       resp.Status,
			LastActivity: resp.LastActivity,
			FetchedAt:    c.clock.Now(),
		}
		if c.ttl > 0 {
			c.cache.Add(key, cacheEntry{account: acc, expiresAt: acc.FetchedAt.Add(c.ttl)})
		}
		return &acc, nil
	})
	if err != nil {
		metrics.TONRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.TONRequestsTotal.WithLabelValues("miss").Inc()
	acc := *v.(*Account)
	return &acc, nil
}

func (c *Client) cached(key string) (*Account, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	entry := v.(cacheEntry)
	if c.clock.Now().After(entry.expiresAt) {
		c.cache.Remove(key)
		return nil, false
	}
	acc := entry.account
	acc.Cached = true
	return &acc, true
}

// ClearCache drops the cached balance of address, or every entry when address is empty.
func (c *Client) ClearCache(address string) {
	if address == "" {
		c.cache.Purge()
		return
	}
	c.cache.Remove(strings.ToLower(strings.TrimSpace(address)))
}

type jettonBalanceResponse struct {
	Balance string `json:"balance"`
	Jetton  struct {
		Address  string `json:"address"`
		Name     string `json:"name"`
		Symbol   string `json:"symbol"`
		Decimals int    `json:"decimals"`
	} `json:"jetton"`
}

func (r jettonBalanceResponse) toBalance() JettonBalance {
	jb := JettonBalance{
		Master:   r.Jetton.Address,
		Name:     r.Jetton.Name,
		Symbol:   r.Jetton.Symbol,
		Decimals: r.Jetton.Decimals,
		Raw:      r.Balance,
	}
	if f, err := FormatUnits(r.Balance, r.Jetton.Decimals); err == nil {
		jb.Formatted = f
	}
	return jb
}

// JettonBalance returns address's balance of the jetton minted by jettonMaster.
func (c *Client) JettonBalance(ctx context.Context, address, jettonMaster string) (*JettonBalance, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	if err := ValidateAddress(jettonMaster); err != nil {
		return nil, fmt.Errorf("jetton master: %w", err)
	}
	var resp jettonBalanceResponse
	path := fmt.Sprintf("/v2/accounts/%s/jettons/%s", url.PathEscape(address), url.PathEscape(jettonMaster))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	jb := resp.toBalance()
	return &jb, nil
}

// Jettons lists every jetton held by address.
func (c *Client) Jettons(ctx context.Context, address string) ([]JettonBalance, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	var resp struct {
		Balances []jettonBalanceResponse `json:"balances"`
	}
	if err := c.get(ctx, "/v2/accounts/"+url.PathEscape(address)+"/jettons", &resp); err != nil {
		return nil, err
	}
	out := make([]JettonBalance, 0, len(resp.Balances))
	for _, b := range resp.Balances {
		out = append(out, b.toBalance())
	}
	return out, nil
}

// APIError is a non-200 response from the TON API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ton api: status %d: %s", e.Status, e.Body)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("ton api request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			apiErr := &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
			if resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(apiErr)
			}
			return apiErr
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode ton api response: %w", err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.RandomizationFactor = 0
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx))
	if err != nil {
		c.log.Warn("ton api request failed", "path", path, "error", err)
	}
	return err
}

// Package geo resolves visitor IP addresses to a coarse location for
// the analytics log. Lookups go through an in-process cache so a chatty
// visitor costs one upstream call.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/dgraph-io/ristretto"
)

// DefaultBaseURL is the free ip-api.com JSON endpoint.
const DefaultBaseURL = "http://ip-api.com/json"

const (
	cacheTTL     = 24 * time.Hour
	requestLimit = 5 * time.Second
)

// Location is the subset of the upstream payload the log keeps.
type Location struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Country string `json:"country"`
	City    string `json:"city"`
}

// Client looks up locations with a read-through cache in front of the
// HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *ristretto.Cache
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different endpoint, mainly for
// tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHTTPClient swaps the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient builds a geo client with a warm cache.
func NewClient(logger *slog.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("geo: build cache: %w", err)
	}

	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: requestLimit},
		cache:   cache,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Lookup resolves ip to a location. Private and malformed addresses
// resolve to an empty location without touching the upstream.
func (c *Client) Lookup(ctx context.Context, ip string) (Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified() {
		return Location{}, nil
	}

	if cached, ok := c.cache.Get(ip); ok {
		if loc, ok := cached.(Location); ok {
			return loc, nil
		}
	}

	loc, err := c.fetch(ctx, ip)
	if err != nil {
		return Location{}, err
	}

	c.cache.SetWithTTL(ip, loc, 1, cacheTTL)
	return loc, nil
}

func (c *Client) fetch(ctx context.Context, ip string) (Location, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=status,message,country,city", c.baseURL, url.PathEscape(ip))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Location{}, fmt.Errorf("geo: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geo: lookup %s: %w", ip, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geo: lookup %s: unexpected status %d", ip, resp.StatusCode)
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Location{}, fmt.Errorf("geo: decode response: %w", err)
	}
	if payload.Status != "success" {
		return Location{}, fmt.Errorf("geo: lookup %s: %s", ip, payload.Message)
	}

	return Location{Country: payload.Country, City: payload.City}, nil
}

// Close releases the cache.
func (c *Client) Close() {
	c.cache.Close()
}

// Package client provides the KIS listing API client with quota tracking,
// caching, and error handling. Client implements feed.Source, so it plugs
// directly into the feed controller.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/brownsoo/kis-test/pkg/cache"
	"github.com/brownsoo/kis-test/pkg/feed"
	"github.com/brownsoo/kis-test/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for KIS client operations.
var (
	kisRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kis_requests_total",
		Help: "Total KIS requests by endpoint and status",
	}, []string{"endpoint", "status"})

	kisRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kis_request_duration_seconds",
		Help:    "KIS request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	kisErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kis_errors_total",
		Help: "Total KIS errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Gateway endpoints served by this client.
const (
	listingEndpoint   = "/v1/stocks"
	watchlistEndpoint = "/v1/watchlist"

	// totalPagesHeader carries the page count of the listing collection.
	totalPagesHeader = "X-Total-Pages"
)

// Client is the KIS listing API client.
type Client struct {
	httpClient  *http.Client
	redis       *redis.Client
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	config      Config
	logger      zerolog.Logger
	sem         chan struct{}
}

var _ feed.Source = (*Client)(nil)

// Config holds the client configuration.
type Config struct {
	// Redis client for caching and quota state
	Redis *redis.Client

	// BaseURL of the KIS gateway (REQUIRED)
	BaseURL string

	// User-Agent header (REQUIRED by the gateway)
	// Format: "AppName/Version (contact@example.com)"
	UserAgent string

	// App credentials issued by KIS (optional for public endpoints)
	AppKey    string
	AppSecret string

	// AccountID scopes cached pages to one account (optional)
	AccountID string

	// Concurrency
	MaxConcurrency int // Max parallel requests

	// Caching
	RespectExpires bool // Honor the gateway expires header (MUST be true)
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(redis *redis.Client, userAgent string) Config {
	return Config{
		Redis:          redis,
		BaseURL:        "https://openapi.koreainvestment.com:9443",
		UserAgent:      userAgent,
		MaxConcurrency: 5,
		RespectExpires: true, // MUST be true for gateway compliance
	}
}

// New creates a new KIS client.
func New(cfg Config) (*Client, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if !cfg.RespectExpires {
		return nil, fmt.Errorf("respect_expires must be true (gateway requirement)")
	}

	if cfg.MaxConcurrency < 1 {
		return nil, fmt.Errorf("max_concurrency must be >= 1 (got %d)", cfg.MaxConcurrency)
	}

	// Initialize logger
	logger := log.With().Str("component", "kis-client").Logger()

	// Create quota tracker
	rateLimiter := ratelimit.NewTracker(cfg.Redis, logger)

	// Create cache manager
	cacheManager := cache.NewManager(cfg.Redis)

	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		redis:       cfg.Redis,
		rateLimiter: rateLimiter,
		cache:       cacheManager,
		config:      cfg,
		logger:      logger,
		sem:         make(chan struct{}, cfg.MaxConcurrency),
	}, nil
}

// FetchList implements feed.Source. It retrieves one page of the stock
// listing, replaying a cached copy through onCached before going to the
// network. A 304 Not Modified from the gateway maps to
// feed.ErrContentUnchanged.
func (c *Client) FetchList(ctx context.Context, ordinal int, onCached func(feed.Page[feed.Stock])) (feed.Page[feed.Stock], error) {
	var zero feed.Page[feed.Stock]

	query := url.Values{}
	query.Set("page", strconv.Itoa(ordinal))

	key := cache.Key{
		Path:      listingEndpoint,
		Query:     query,
		AccountID: c.config.AccountID,
	}

	var cached *cache.Entry
	if entry, err := c.cache.Get(ctx, key); err == nil {
		cached = entry
		if page, decErr := c.decodePage(entry.Data, entry.Headers, ordinal); decErr != nil {
			c.logger.Warn().Err(decErr).Int("page", ordinal).Msg("Dropping undecodable cached page")
			cached = nil
		} else if onCached != nil {
			onCached(page)
		}
	} else if err != cache.ErrCacheMiss {
		c.logger.Warn().Err(err).Int("page", ordinal).Msg("Cache get error")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+listingEndpoint+"?"+query.Encode(), nil)
	if err != nil {
		return zero, fmt.Errorf("create listing request: %w", err)
	}

	resp, err := c.do(req, key, cached)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return zero, fmt.Errorf("listing page %d: %w", ordinal, feed.ErrContentUnchanged)
	case resp.StatusCode == http.StatusNotFound:
		return zero, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassClient,
			Message:    fmt.Sprintf("listing page %d", ordinal),
			Err:        feed.ErrNotFound,
		}
	case resp.StatusCode != http.StatusOK:
		return zero, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: c.classifyError(resp, nil),
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("read listing page %d: %w", ordinal, err)
	}

	return c.decodePage(body, resp.Header, ordinal)
}

// Favorite implements feed.Source. It adds the stock to the account watchlist.
func (c *Client) Favorite(ctx context.Context, stock feed.Stock) error {
	return c.writeWatchlist(ctx, http.MethodPut, stock)
}

// Unfavorite implements feed.Source. It removes the stock from the account watchlist.
func (c *Client) Unfavorite(ctx context.Context, stock feed.Stock) error {
	return c.writeWatchlist(ctx, http.MethodDelete, stock)
}

func (c *Client) writeWatchlist(ctx context.Context, method string, stock feed.Stock) error {
	endpoint := watchlistEndpoint + "/" + url.PathEscape(stock.Symbol)

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("create watchlist request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassClient,
			Message:    "watchlist " + stock.Symbol,
			Err:        feed.ErrNotFound,
		}
	case resp.StatusCode >= 400:
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: c.classifyError(resp, nil),
			Message:    resp.Status,
		}
	}

	return nil
}

// decodePage decodes a listing response body. The page count rides on the
// X-Total-Pages response header; a missing or malformed header means a
// single page collection.
func (c *Client) decodePage(data []byte, headers http.Header, ordinal int) (feed.Page[feed.Stock], error) {
	var stocks []feed.Stock
	if err := json.Unmarshal(data, &stocks); err != nil {
		return feed.Page[feed.Stock]{}, fmt.Errorf("decode listing page %d: %w", ordinal, err)
	}

	totalPages := 1
	if v := headers.Get(totalPagesHeader); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			totalPages = n
		} else {
			c.logger.Warn().Str("header", v).Msg("Ignoring malformed X-Total-Pages header")
		}
	}

	return feed.Page[feed.Stock]{
		Ordinal:    ordinal,
		TotalPages: totalPages,
		Items:      stocks,
	}, nil
}

// Do performs an HTTP request with quota gating, caching, and error handling.
// GET responses are cached; a 304 Not Modified response is returned as-is so
// callers holding a cached entry keep using it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	key := c.cacheKey(req.URL)

	var cached *cache.Entry
	if req.Method == http.MethodGet {
		if entry, err := c.cache.Get(req.Context(), key); err == nil {
			cached = entry
		} else if err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("endpoint", req.URL.Path).Msg("Cache get error")
		}
	}

	return c.do(req, key, cached)
}

// do is the core request method that orchestrates quota gating, conditional
// requests, retries, and cache writes.
func (c *Client) do(req *http.Request, key cache.Key, cached *cache.Entry) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	// Start request timing
	startTime := time.Now()
	defer func() {
		kisRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Bound parallel requests against the gateway
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire request slot: %w", ctx.Err())
	}

	// Step 1: Check quota
	allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Quota check failed")
		return nil, fmt.Errorf("quota check: %w", err)
	}
	if !allowed {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Msg("Request blocked by quota tracker")
		kisRequestsTotal.WithLabelValues(endpoint, "quota_blocked").Inc()
		return nil, ErrQuotaExceeded
	}

	// Step 2: Make a conditional request if the cached entry allows it
	if cached != nil && cache.ShouldMakeConditionalRequest(cached) {
		cache.AddConditionalHeaders(req, cached)
		c.logger.Debug().
			Str("endpoint", endpoint).
			Str("etag", cached.ETag).
			Msg("Making conditional request")
	}

	// Step 3: Set common headers
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.config.AppKey != "" {
		req.Header.Set("appkey", c.config.AppKey)
		req.Header.Set("appsecret", c.config.AppSecret)
	}

	// Step 4: Execute the HTTP request with retry logic
	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing KIS request")

	var resp *http.Response
	var errClass ErrorClass

	retryErr := retryWithBackoff(ctx, func() error {
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)

		// Handle network errors
		if reqErr != nil {
			c.logger.Error().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			errClass = c.classifyError(nil, reqErr)
			kisErrorsTotal.WithLabelValues(string(errClass)).Inc()
			kisRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return reqErr
		}

		// Update quota state from headers
		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update quota from headers")
		}

		// Handle 304 Not Modified (not an error, return success)
		if resp.StatusCode == http.StatusNotModified {
			return nil
		}

		// Handle HTTP errors
		if resp.StatusCode >= 400 {
			errClass = c.classifyError(resp, nil)
			kisErrorsTotal.WithLabelValues(string(errClass)).Inc()
			kisRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(errClass)).
				Msg("KIS request error")

			// Check if we should retry this error
			if shouldRetry(errClass) {
				// Build error for retriable errors (server, rate_limit, network)
				retriable := &APIError{
					StatusCode: resp.StatusCode,
					ErrorClass: errClass,
					Message:    resp.Status,
				}
				resp.Body.Close() // Close the body before retrying
				return retriable
			}

			// Don't retry client errors - return success (let caller handle status)
			return nil
		}

		// Success
		kisRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		return nil
	}, func(error) ErrorClass {
		return errClass
	})

	// Handle retry exhaustion
	if retryErr != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, retryErr
	}

	// Step 5: Refresh the cached entry TTL on 304
	if resp.StatusCode == http.StatusNotModified {
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - cached page still current")
		kisRequestsTotal.WithLabelValues(endpoint, "304").Inc()
		cache.NotModifiedResponses.Inc()

		// Update cache TTL from the new expires header
		if expiresStr := resp.Header.Get("Expires"); expiresStr != "" {
			if newExpires, err := http.ParseTime(expiresStr); err == nil {
				if err := c.cache.UpdateTTL(ctx, key, newExpires); err != nil {
					c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
				}
			}
		}

		return resp, nil
	}

	// Step 6: Update cache on success
	if req.Method == http.MethodGet && resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if entry.TTL() > 0 {
			if err := c.cache.Set(ctx, key, entry); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache response")
			} else {
				c.logger.Debug().
					Str("endpoint", endpoint).
					Dur("ttl", entry.TTL()).
					Msg("Cached response")
			}
		}
	}

	return resp, nil
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// cacheKey derives the cache key for a request URL.
func (c *Client) cacheKey(u *url.URL) cache.Key {
	return cache.Key{
		Path:      u.Path,
		Query:     u.Query(),
		AccountID: c.config.AccountID,
	}
}

// Get performs a GET request to a gateway endpoint path.
func (c *Client) Get(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager (for testing).
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}

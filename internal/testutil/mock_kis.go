// Package testutil provides testing utilities for the KIS feed client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brownsoo/kis-test/pkg/feed"
)

// MockResponse defines the behavior for a canned mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockGateway is a configurable mock KIS gateway for testing. It serves a
// paginated stock listing on /v1/stocks and a watchlist on
// /v1/watchlist/{symbol}, with ETag revalidation and quota headers.
type MockGateway struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	stocks    []feed.Stock
	pageSize  int
	version   int
	watchlist map[string]bool

	quotaRemaining string
	quotaReset     string

	// Tracking
	RequestCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
}

// NewMockGateway creates a mock gateway preloaded with the default listing.
func NewMockGateway() *MockGateway {
	mock := &MockGateway{
		handlers:       make(map[string]func(w http.ResponseWriter, r *http.Request)),
		stocks:         DefaultStocks(),
		pageSize:       5,
		version:        1,
		watchlist:      make(map[string]bool),
		quotaRemaining: "60",
		quotaReset:     "60",
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()

		// Track conditional requests
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		mock.mu.Unlock()

		// Check for custom handler
		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		switch {
		case r.URL.Path == "/v1/stocks":
			mock.serveListing(w, r)
		case strings.HasPrefix(r.URL.Path, "/v1/watchlist/"):
			mock.serveWatchlist(w, r)
		default:
			mock.writeQuotaHeaders(w)
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "unknown endpoint"}`))
		}
	}))

	return mock
}

// URL returns the mock gateway URL.
func (m *MockGateway) URL() string {
	return m.server.URL
}

// Close shuts down the mock gateway.
func (m *MockGateway) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockGateway) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
}

// SetStocks replaces the listing universe and bumps the listing version.
func (m *MockGateway) SetStocks(stocks []feed.Stock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stocks = stocks
	m.version++
}

// SetPageSize changes the page size of the listing.
func (m *MockGateway) SetPageSize(size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageSize = size
}

// Invalidate bumps the listing version so cached ETags stop matching.
func (m *MockGateway) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version++
}

// SetQuota overrides the quota headers returned with every response.
func (m *MockGateway) SetQuota(remaining, reset string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotaRemaining = remaining
	m.quotaReset = reset
}

// OnWatchlist reports whether the symbol is currently on the watchlist.
func (m *MockGateway) OnWatchlist(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.watchlist[symbol]
}

// SetHandler sets a custom handler for a specific path, overriding the
// built-in listing and watchlist behavior.
func (m *MockGateway) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// ClearHandler removes a custom handler, restoring built-in behavior.
func (m *MockGateway) ClearHandler(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, path)
}

// SetResponse configures a canned response for a path.
func (m *MockGateway) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the gateway.
func (m *MockGateway) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockGateway) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

func (m *MockGateway) writeQuotaHeaders(w http.ResponseWriter) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w.Header().Set("X-RateLimit-Remaining", m.quotaRemaining)
	w.Header().Set("X-RateLimit-Reset", m.quotaReset)
}

// serveListing serves one page of the stock listing.
func (m *MockGateway) serveListing(w http.ResponseWriter, r *http.Request) {
	m.writeQuotaHeaders(w)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": "invalid page"}`))
			return
		}
		page = n
	}

	m.mu.RLock()
	stocks := m.stocks
	pageSize := m.pageSize
	version := m.version
	m.mu.RUnlock()

	totalPages := (len(stocks) + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	if page > totalPages {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "page not found"}`))
		return
	}

	etag := fmt.Sprintf(`"listing-p%d-v%d"`, page, version)
	w.Header().Set("X-Total-Pages", strconv.Itoa(totalPages))
	w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(stocks) {
		start = len(stocks)
	}
	if end > len(stocks) {
		end = len(stocks)
	}

	body, _ := json.Marshal(stocks[start:end])
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// serveWatchlist handles PUT and DELETE on /v1/watchlist/{symbol}.
func (m *MockGateway) serveWatchlist(w http.ResponseWriter, r *http.Request) {
	m.writeQuotaHeaders(w)

	symbol := strings.TrimPrefix(r.URL.Path, "/v1/watchlist/")

	m.mu.Lock()
	defer m.mu.Unlock()

	known := false
	for _, s := range m.stocks {
		if s.Symbol == symbol {
			known = true
			break
		}
	}
	if !known {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "unknown symbol"}`))
		return
	}

	switch r.Method {
	case http.MethodPut:
		m.watchlist[symbol] = true
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		delete(m.watchlist, symbol)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// DefaultStocks returns the listing fixture: 12 stocks, which makes three
// pages at the default page size of 5 with a short final page.
func DefaultStocks() []feed.Stock {
	return []feed.Stock{
		{Symbol: "005930", Name: "Samsung Electronics", Market: "KOSPI", Price: 71200, ChangeRate: 0.42, Volume: 13250000},
		{Symbol: "000660", Name: "SK hynix", Market: "KOSPI", Price: 132500, ChangeRate: -1.12, Volume: 2380000},
		{Symbol: "373220", Name: "LG Energy Solution", Market: "KOSPI", Price: 412000, ChangeRate: 0.85, Volume: 310000},
		{Symbol: "207940", Name: "Samsung Biologics", Market: "KOSPI", Price: 789000, ChangeRate: -0.25, Volume: 52000},
		{Symbol: "005380", Name: "Hyundai Motor", Market: "KOSPI", Price: 241500, ChangeRate: 1.47, Volume: 890000},
		{Symbol: "035420", Name: "NAVER", Market: "KOSPI", Price: 184500, ChangeRate: 2.16, Volume: 1120000},
		{Symbol: "035720", Name: "Kakao", Market: "KOSPI", Price: 41350, ChangeRate: 0.12, Volume: 981000},
		{Symbol: "005490", Name: "POSCO Holdings", Market: "KOSPI", Price: 372500, ChangeRate: -0.93, Volume: 420000},
		{Symbol: "000270", Name: "Kia", Market: "KOSPI", Price: 112800, ChangeRate: 0.63, Volume: 1340000},
		{Symbol: "068270", Name: "Celltrion", Market: "KOSPI", Price: 178200, ChangeRate: -1.65, Volume: 610000},
		{Symbol: "247540", Name: "Ecopro BM", Market: "KOSDAQ", Price: 241000, ChangeRate: 3.21, Volume: 740000},
		{Symbol: "091990", Name: "Celltrion Healthcare", Market: "KOSDAQ", Price: 71900, ChangeRate: -0.41, Volume: 380000},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "internal server error"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "55",
			"X-RateLimit-Reset":     "60",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "rate limit exceeded"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "5",
			"X-RateLimit-Reset":     "30",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

//go:build integration

package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/brownsoo/kis-test/pkg/cache"
	"github.com/brownsoo/kis-test/pkg/feed"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestIntegration_ListingFlow(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	// Track request phases
	requestsMade := 0
	conditionalRequests := 0

	// Create mock KIS gateway
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestsMade++

		// Set quota headers
		w.Header().Set("X-RateLimit-Remaining", "60")
		w.Header().Set("X-RateLimit-Reset", "60")

		// Handle conditional requests
		if r.Header.Get("If-None-Match") != "" {
			conditionalRequests++
			w.Header().Set("Expires", time.Now().Add(10*time.Minute).Format(http.TimeFormat))
			w.WriteHeader(http.StatusNotModified)
			return
		}

		// First request - return the full page
		w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))
		w.Header().Set("ETag", `"listing-p1-v1"`)
		w.Header().Set("X-Total-Pages", "2")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[
			{"symbol": "005930", "name": "Samsung Electronics", "market": "KOSPI", "price": 71200, "change_rate": 0.42, "volume": 13250000},
			{"symbol": "000660", "name": "SK hynix", "market": "KOSPI", "price": 132500, "change_rate": -1.12, "volume": 2380000}
		]`))
	}))
	defer server.Close()

	client := newTestClient(t, redisClient, server.URL)
	ctx := context.Background()

	// Fetch 1: cold, hits the gateway, no cached replay
	t.Log("Fetch 1: cold listing fetch")
	replays := 0
	page, err := client.FetchList(ctx, 1, func(feed.Page[feed.Stock]) {
		replays++
	})
	if err != nil {
		t.Fatalf("Cold fetch failed: %v", err)
	}
	if replays != 0 {
		t.Errorf("Cold fetch replayed %d cached pages, want 0", replays)
	}
	if page.Ordinal != 1 || page.TotalPages != 2 || len(page.Items) != 2 {
		t.Errorf("Cold fetch page = {ordinal %d, total %d, items %d}, want {1, 2, 2}",
			page.Ordinal, page.TotalPages, len(page.Items))
	}
	if requestsMade != 1 {
		t.Errorf("After fetch 1: requestsMade = %d, want 1", requestsMade)
	}

	// Verify the page landed in the cache
	key := cache.Key{
		Path:  "/v1/stocks",
		Query: url.Values{"page": []string{"1"}},
	}
	entry, err := client.cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("Cache lookup failed: %v", err)
	}
	if entry.ETag != `"listing-p1-v1"` {
		t.Errorf("Cached ETag = %q, want %q", entry.ETag, `"listing-p1-v1"`)
	}

	// Fetch 2: warm, replays the cached page, then the conditional
	// request comes back 304
	t.Log("Fetch 2: warm fetch with conditional revalidation")
	var replayed feed.Page[feed.Stock]
	_, err = client.FetchList(ctx, 1, func(p feed.Page[feed.Stock]) {
		replays++
		replayed = p
	})
	if !errors.Is(err, feed.ErrContentUnchanged) {
		t.Fatalf("Warm fetch error = %v, want ErrContentUnchanged", err)
	}
	if replays != 1 {
		t.Errorf("Warm fetch replayed %d cached pages, want 1", replays)
	}
	if replayed.Ordinal != 1 || replayed.TotalPages != 2 || len(replayed.Items) != 2 {
		t.Errorf("Replayed page = {ordinal %d, total %d, items %d}, want {1, 2, 2}",
			replayed.Ordinal, replayed.TotalPages, len(replayed.Items))
	}
	if replayed.Items[0].Symbol != "005930" {
		t.Errorf("Replayed first symbol = %q, want %q", replayed.Items[0].Symbol, "005930")
	}

	if requestsMade != 2 {
		t.Errorf("After fetch 2: requestsMade = %d, want 2", requestsMade)
	}
	if conditionalRequests != 1 {
		t.Errorf("conditionalRequests = %d, want 1", conditionalRequests)
	}
}

func TestIntegration_QuotaBlock(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	ctx := context.Background()

	// Pre-seed Redis with a critical quota state
	now := time.Now()
	redisClient.Set(ctx, "kis:quota:remaining", 2, 0)
	redisClient.Set(ctx, "kis:quota:reset_timestamp", now.Add(60*time.Second).Unix(), 0)
	lastUpdateJSON, _ := json.Marshal(now)
	redisClient.Set(ctx, "kis:quota:last_update", lastUpdateJSON, 0)

	client := newTestClient(t, redisClient, "http://example.com")

	// This request should be blocked before reaching the network
	req, _ := http.NewRequest("GET", "http://example.com/v1/stocks?page=1", nil)
	_, err := client.Do(req)

	if !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("Expected ErrQuotaExceeded, got %v", err)
	}

	// Verify quota tracker state
	state, err := client.rateLimiter.GetState(ctx)
	if err != nil {
		t.Fatalf("Failed to get quota state: %v", err)
	}

	if state.Remaining != 2 {
		t.Errorf("Remaining = %d, want 2", state.Remaining)
	}

	if !state.NeedsCriticalBlock() {
		t.Error("Expected state to need critical block")
	}
}

func TestIntegration_WatchlistRoundTrip(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	type call struct {
		method string
		path   string
	}
	var calls []call

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{method: r.Method, path: r.URL.Path})

		w.Header().Set("X-RateLimit-Remaining", "58")
		w.Header().Set("X-RateLimit-Reset", "45")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(t, redisClient, server.URL)
	ctx := context.Background()

	stock := feed.Stock{Symbol: "005930", Name: "Samsung Electronics"}

	if err := client.Favorite(ctx, stock); err != nil {
		t.Fatalf("Favorite failed: %v", err)
	}
	if err := client.Unfavorite(ctx, stock); err != nil {
		t.Fatalf("Unfavorite failed: %v", err)
	}

	want := []call{
		{method: http.MethodPut, path: "/v1/watchlist/005930"},
		{method: http.MethodDelete, path: "/v1/watchlist/005930"},
	}
	if len(calls) != len(want) {
		t.Fatalf("Gateway saw %d calls, want %d", len(calls), len(want))
	}
	for i, c := range calls {
		if c != want[i] {
			t.Errorf("Call %d = %+v, want %+v", i, c, want[i])
		}
	}

	// Quota state follows the response headers
	state, err := client.rateLimiter.GetState(ctx)
	if err != nil {
		t.Fatalf("Failed to get quota state: %v", err)
	}
	if state.Remaining != 58 {
		t.Errorf("Remaining = %d, want 58", state.Remaining)
	}
}

func TestIntegration_CacheExpiration(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "60")
		w.Header().Set("X-RateLimit-Reset", "60")
		// Very short expiration
		w.Header().Set("Expires", time.Now().Add(1*time.Second).Format(http.TimeFormat))
		w.Header().Set("ETag", `"short-lived"`)
		w.Header().Set("X-Total-Pages", "1")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[{"symbol": "035720", "name": "Kakao", "market": "KOSPI", "price": 41350, "change_rate": 0.12, "volume": 981000}]`))
	}))
	defer server.Close()

	client := newTestClient(t, redisClient, server.URL)
	ctx := context.Background()

	if _, err := client.FetchList(ctx, 1, nil); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	key := cache.Key{
		Path:  "/v1/stocks",
		Query: url.Values{"page": []string{"1"}},
	}

	entry, err := client.cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("Cache lookup failed: %v", err)
	}
	if entry.IsExpired() {
		t.Error("Entry should not be expired yet")
	}

	// Wait for expiration
	time.Sleep(2 * time.Second)

	entry2, err := client.cache.Get(ctx, key)
	if err != cache.ErrCacheMiss {
		t.Errorf("Expected cache miss after expiration, got: %v (entry: %v)", err, entry2)
	}
}

// feedwatch is a terminal viewer for the KIS stock listing with a
// Redis-backed page cache, watchlist toggles, and optional Prometheus
// metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/brownsoo/kis-test/internal/config"
	"github.com/brownsoo/kis-test/internal/tui"
	"github.com/brownsoo/kis-test/pkg/client"
	"github.com/brownsoo/kis-test/pkg/feed"
	"github.com/brownsoo/kis-test/pkg/logging"
	"github.com/brownsoo/kis-test/pkg/prefetch"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "feedwatch:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the config file")
	warmOnly := flag.Bool("warm", false, "warm the page cache and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// The TUI owns the terminal, so logs go to a file
	logFile, err := openLogFile(cfg)
	if err != nil {
		return err
	}
	defer logFile.Close()

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: logFile,
	})
	logger := logging.NewLogger("feedwatch")

	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")

	kisClient, err := client.New(client.Config{
		Redis:          rdb,
		BaseURL:        cfg.Gateway.BaseURL,
		UserAgent:      cfg.Gateway.UserAgent,
		AppKey:         cfg.Gateway.AppKey,
		AppSecret:      cfg.Gateway.AppSecret,
		AccountID:      cfg.Gateway.AccountID,
		MaxConcurrency: cfg.Gateway.MaxConcurrency,
		RespectExpires: true,
	})
	if err != nil {
		return fmt.Errorf("create KIS client: %w", err)
	}
	defer kisClient.Close()

	if *warmOnly {
		return warmAndReport(ctx, kisClient, logger)
	}

	nav := tui.NewNavigator()

	controller, err := feed.New(feed.Config{
		Source:    kisClient,
		PageSize:  cfg.Feed.PageSize,
		Navigator: nav,
	})
	if err != nil {
		return fmt.Errorf("create feed controller: %w", err)
	}
	defer controller.Close()

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Listen, rdb, logger)
	}

	if cfg.Feed.Prefetch {
		go warmCache(ctx, kisClient, logger)
	}

	model := tui.New(tui.Options{Context: ctx, Controller: controller})
	program := tea.NewProgram(model, tea.WithAltScreen())
	nav.Attach(program)

	logger.Info().
		Str("gateway", cfg.Gateway.BaseURL).
		Int("page_size", cfg.Feed.PageSize).
		Msg("Starting feedwatch")

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run terminal UI: %w", err)
	}
	return nil
}

// openLogFile creates the log directory and opens the log file for
// appending.
func openLogFile(cfg config.Config) (*os.File, error) {
	if err := os.MkdirAll(cfg.Log.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", cfg.Log.Dir, err)
	}

	f, err := os.OpenFile(cfg.LogFilePath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// serveMetrics exposes Prometheus metrics plus health and readiness
// probes on a side port while the TUI runs.
func serveMetrics(addr string, rdb *redis.Client, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(rdb))

	logger.Info().Str("addr", addr).Msg("Starting metrics server")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("Metrics server stopped")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports ready only when Redis answers a ping, since the
// page cache and quota state both live there.
func readyHandler(rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := rdb.Ping(ctx).Err(); err != nil {
			http.Error(w, fmt.Sprintf("redis unavailable: %v", err), http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// warmCache fetches every listing page once so first navigation hits
// the cache.
func warmCache(ctx context.Context, kisClient *client.Client, logger zerolog.Logger) {
	warmer := prefetch.NewWarmer(kisClient, prefetch.DefaultConfig())

	pages, err := warmer.WarmAll(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Cache warm-up incomplete")
		return
	}
	logger.Info().Int("pages", len(pages)).Msg("Cache warm-up complete")
}

// warmAndReport runs the warmer in the foreground for the -warm flag.
func warmAndReport(ctx context.Context, kisClient *client.Client, logger zerolog.Logger) error {
	warmer := prefetch.NewWarmer(kisClient, prefetch.DefaultConfig())

	start := time.Now()
	pages, err := warmer.WarmAll(ctx)
	if err != nil {
		return fmt.Errorf("warm page cache: %w", err)
	}

	took := time.Since(start).Round(time.Millisecond)
	logger.Info().Int("pages", len(pages)).Dur("took", took).Msg("Cache warm-up complete")
	fmt.Printf("Warmed %d listing pages in %s\n", len(pages), took)
	return nil
}

package prefetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brownsoo/kis-test/pkg/feed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var kisPrefetchPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kis_prefetch_pages_total",
	Help: "Total listing pages touched by the prefetch warmer by outcome",
}, []string{"outcome"})

// Lister fetches single listing pages. *client.Client satisfies it.
type Lister interface {
	FetchList(ctx context.Context, ordinal int, onCached func(feed.Page[feed.Stock])) (feed.Page[feed.Stock], error)
}

// Config holds warmer configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel page fetches.
	// The gateway quota is shared with interactive loads, so keep this low.
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
	// Buffer size for the page queue (default: estimated total pages)
	BufferSize int
}

// DefaultConfig returns a safe default configuration for the KIS gateway.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        10 * time.Second,
		BufferSize:     64,
	}
}

type pageResult struct {
	Ordinal int
	Page    feed.Page[feed.Stock]
	Error   error
}

// Warmer fetches all listing pages in parallel to populate the cache.
type Warmer struct {
	lister Lister
	config Config
	logger zerolog.Logger
}

// NewWarmer creates a new listing warmer.
func NewWarmer(lister Lister, config Config) *Warmer {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 64
	}

	return &Warmer{
		lister: lister,
		config: config,
		logger: log.With().Str("component", "prefetch").Logger(),
	}
}

// WarmAll fetches every listing page using a worker pool and returns the
// pages keyed by ordinal. Pages that fail to fetch are skipped; partial
// results are returned together with the first worker error.
func (w *Warmer) WarmAll(ctx context.Context) (map[int]feed.Page[feed.Stock], error) {
	start := time.Now()

	// Fetch the first page to get the total page count
	firstPage, err := w.fetchPage(ctx, 1)
	if err != nil {
		kisPrefetchPagesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("fetch first page: %w", err)
	}

	totalPages := firstPage.TotalPages
	w.logger.Info().
		Int("total_pages", totalPages).
		Msg("Starting listing warm-up")

	// Single page optimization
	if totalPages <= 1 {
		w.logger.Info().
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Warm-up complete (single page)")
		return map[int]feed.Page[feed.Stock]{1: firstPage}, nil
	}

	results := map[int]feed.Page[feed.Stock]{1: firstPage}

	pageQueue := make(chan int, w.config.BufferSize)
	pageResults := make(chan pageResult, w.config.BufferSize)
	workerErrs := make(chan error, w.config.MaxConcurrency)

	// Fill the page queue (page 1 already fetched)
	go func() {
		for page := 2; page <= totalPages; page++ {
			pageQueue <- page
		}
		close(pageQueue)
	}()

	var wg sync.WaitGroup
	for i := 0; i < w.config.MaxConcurrency; i++ {
		wg.Add(1)
		go w.worker(ctx, pageQueue, pageResults, workerErrs, &wg, i)
	}

	go func() {
		wg.Wait()
		close(pageResults)
		close(workerErrs)
	}()

	warmed := 1
	for result := range pageResults {
		if result.Error != nil {
			continue
		}

		results[result.Ordinal] = result.Page
		warmed++

		if warmed%10 == 0 {
			w.logger.Info().
				Int("warmed", warmed).
				Int("total", totalPages).
				Msg("Warm-up progress")
		}
	}

	// Surface the first worker error alongside the partial results
	select {
	case err := <-workerErrs:
		if err != nil {
			w.logger.Warn().
				Err(err).
				Int("warmed", warmed).
				Int("total_pages", totalPages).
				Msg("Worker error - returning partial results")
			return results, fmt.Errorf("warm listing pages (partial data: %d/%d pages): %w", warmed, totalPages, err)
		}
	default:
	}

	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("warm listing pages (partial data: %d/%d pages): %w", warmed, totalPages, err)
	}

	w.logger.Info().
		Int("pages", warmed).
		Int("total", totalPages).
		Dur("duration", time.Since(start)).
		Msg("Warm-up complete")

	return results, nil
}

// worker processes page ordinals from the queue.
func (w *Warmer) worker(ctx context.Context, pageQueue <-chan int, results chan<- pageResult, errs chan<- error, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for ordinal := range pageQueue {
		select {
		case <-ctx.Done():
			w.logger.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		pageCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
		page, err := w.fetchPage(pageCtx, ordinal)
		cancel()

		if err != nil {
			kisPrefetchPagesTotal.WithLabelValues("failed").Inc()
			w.logger.Warn().
				Err(err).
				Int("worker_id", workerID).
				Int("page", ordinal).
				Msg("Page warm-up failed")

			// Non-blocking error send
			select {
			case errs <- err:
			default:
			}
			return
		}

		select {
		case results <- pageResult{Ordinal: ordinal, Page: page}:
		case <-ctx.Done():
			w.logger.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled after fetch)")
			return
		}

		pagesProcessed++
	}

	if pagesProcessed > 0 {
		w.logger.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}

// fetchPage fetches one page. A 304 revalidation of a cached page counts
// as warm and yields the replayed cached page.
func (w *Warmer) fetchPage(ctx context.Context, ordinal int) (feed.Page[feed.Stock], error) {
	var cached feed.Page[feed.Stock]
	haveCached := false

	page, err := w.lister.FetchList(ctx, ordinal, func(p feed.Page[feed.Stock]) {
		cached = p
		haveCached = true
	})
	if err != nil {
		if errors.Is(err, feed.ErrContentUnchanged) && haveCached {
			kisPrefetchPagesTotal.WithLabelValues("cached").Inc()
			return cached, nil
		}
		return feed.Page[feed.Stock]{}, err
	}

	kisPrefetchPagesTotal.WithLabelValues("fetched").Inc()
	return page, nil
}

package feed

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EmptyStateLabel is the fixed label presenters show when the feed has
// no items.
const EmptyStateLabel = "No stocks to display yet."

// DefaultPageSize matches the page size the KIS listing API serves by
// default.
const DefaultPageSize = 20

// Config holds the controller configuration.
type Config struct {
	// Source supplies stock pages and favorite writes (REQUIRED).
	Source Source

	// PageSize is the page size limit the source serves. A completed
	// page with fewer items marks the end of the listing (REQUIRED, >= 1).
	PageSize int

	// Navigator receives selection intents. Optional; selections are
	// dropped when nil.
	Navigator Navigator
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(source Source) Config {
	return Config{
		Source:   source,
		PageSize: DefaultPageSize,
	}
}

// Controller reconciles cached and fresh pages of the stock listing
// into one observable item sequence. Every state mutation runs under
// one mutex, so load callbacks and favorite completions are serialized
// exactly like the public operations.
type Controller struct {
	mu       sync.Mutex
	store    *PageStore[Stock]
	sup      *loadSupervisor
	fav      *favoriteCoordinator
	entities []Stock
	items    []Item
	state    LoadState
	epoch    uint64
	closed   bool

	source    Source
	navigator Navigator
	pageSize  int

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	logger zerolog.Logger

	itemsStream  *stream[[]Item]
	stateStream  *stream[LoadState]
	loadedStream *stream[bool]
	errStream    *stream[error]
}

// New creates a new feed controller.
func New(cfg Config) (*Controller, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("source is required")
	}

	if cfg.PageSize < 1 {
		return nil, fmt.Errorf("page_size must be >= 1 (got %d)", cfg.PageSize)
	}

	logger := log.With().Str("component", "feed").Logger()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		store:        NewPageStore[Stock](),
		state:        StateIdle,
		source:       cfg.Source,
		navigator:    cfg.Navigator,
		pageSize:     cfg.PageSize,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger,
		itemsStream:  newStream[[]Item](logger, true),
		stateStream:  newStream[LoadState](logger, true),
		loadedStream: newStream[bool](logger, true),
		errStream:    newStream[error](logger, false),
	}
	c.sup = &loadSupervisor{c: c}
	c.fav = newFavoriteCoordinator(c)

	c.itemsStream.publish([]Item{})
	c.stateStream.publish(StateIdle)
	c.loadedStream.publish(false)

	return c, nil
}

// Refresh wipes the pagination bookkeeping and starts a first-page
// load, superseding any in-flight load. The previously emitted items
// stay visible until the new first page arrives, so a refresh never
// flashes an empty view.
func (c *Controller) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.store.Reset()
	c.epoch++
	c.sup.start(c.store.NextOrdinal(), StateLoadingFirst)
}

// LoadNextPage starts a load for the page after the newest accepted
// one. It is a no-op while another load is running or when the listing
// is exhausted.
func (c *Controller) LoadNextPage() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	if c.state != StateIdle {
		c.logger.Debug().
			Str("state", string(c.state)).
			Msg("ignoring next page request while loading")
		return
	}

	if !c.store.HasMorePages() {
		c.logger.Debug().
			Int("ordinal", c.store.CurrentOrdinal()).
			Int("total_pages", c.store.TotalPages()).
			Msg("listing exhausted, ignoring next page request")
		return
	}

	c.sup.start(c.store.NextOrdinal(), StateLoadingNext)
}

// SelectItem reports a selection intent for the item at index in the
// currently emitted sequence. Indices from a stale render are dropped
// silently.
func (c *Controller) SelectItem(index int) {
	c.mu.Lock()
	if c.closed || index < 0 || index >= len(c.entities) {
		c.mu.Unlock()
		c.logger.Debug().
			Int("index", index).
			Msg("ignoring selection outside current view")
		return
	}
	entity := c.entities[index]
	nav := c.navigator
	c.mu.Unlock()

	if nav == nil {
		return
	}
	nav.ShowDetails(entity)
}

// OpenFavorites reports the intent to open the favorites screen.
func (c *Controller) OpenFavorites() {
	c.mu.Lock()
	closed := c.closed
	nav := c.navigator
	c.mu.Unlock()

	if closed || nav == nil {
		return
	}
	nav.ShowFavorites()
}

// ToggleFavorite flips the favorite flag of the item with the given
// symbol. The flag changes only after the remote watchlist write
// confirms; a failed write surfaces on Errors and leaves the item
// unchanged.
func (c *Controller) ToggleFavorite(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.fav.toggle(symbol)
}

// Items streams the flattened, favorite-patched item sequence. New
// subscribers immediately receive the current sequence.
func (c *Controller) Items(ctx context.Context) <-chan []Item {
	return c.itemsStream.subscribe(ctx)
}

// State streams load state transitions. New subscribers immediately
// receive the current state.
func (c *Controller) State(ctx context.Context) <-chan LoadState {
	return c.stateStream.subscribe(ctx)
}

// AllLoaded streams whether every page of the listing has been loaded.
// New subscribers immediately receive the current value.
func (c *Controller) AllLoaded(ctx context.Context) <-chan bool {
	return c.loadedStream.subscribe(ctx)
}

// Errors streams load and favorite failures for presentation. Benign
// conditions such as unchanged content or canceled loads never appear
// here.
func (c *Controller) Errors(ctx context.Context) <-chan error {
	return c.errStream.subscribe(ctx)
}

// Snapshot returns a copy of the currently emitted item sequence.
func (c *Controller) Snapshot() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.items)
}

// ItemsIsEmpty reports whether the currently emitted sequence has no
// items. Presenters pair it with EmptyStateLabel.
func (c *Controller) ItemsIsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items) == 0
}

// Close cancels any in-flight load, rejects future operations, and
// completes every stream. Close is idempotent.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		if cur := c.sup.current; cur != nil {
			cur.cancel()
			c.sup.current = nil
		}
		c.mu.Unlock()

		c.cancel()

		c.itemsStream.close()
		c.stateStream.close()
		c.loadedStream.close()
		c.errStream.close()

		c.logger.Debug().Msg("feed controller closed")
	})
}

// setStateLocked records a load state transition and emits it. The
// caller must hold c.mu.
func (c *Controller) setStateLocked(state LoadState) {
	c.state = state
	c.stateStream.publish(state)
}

// mergeAndEmitLocked folds a page into the store and re-emits the
// projected sequence. The caller must hold c.mu.
func (c *Controller) mergeAndEmitLocked(page Page[Stock], origin string) {
	c.entities = c.store.AppendPage(page)
	c.items = c.fav.project(c.entities)

	PagesMerged.WithLabelValues(origin).Inc()
	ItemsVisible.Set(float64(len(c.items)))

	c.logger.Debug().
		Int("ordinal", page.Ordinal).
		Int("total_pages", page.TotalPages).
		Int("page_items", len(page.Items)).
		Int("items", len(c.items)).
		Str("origin", origin).
		Msg("merged page")

	c.itemsStream.publish(c.items)
}

// allLoadedLocked reports whether the page at ordinal marked the end of
// the listing: it holds fewer items than the page size limit and the
// flattened view is non-empty. A missing page cannot confirm the end.
// The caller must hold c.mu.
func (c *Controller) allLoadedLocked(ordinal int) bool {
	page, ok := c.store.PageAt(ordinal)
	if !ok {
		return false
	}
	return len(page.Items) < c.pageSize && c.store.Len() > 0
}

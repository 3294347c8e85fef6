package feed

import (
	"errors"
	"slices"
	"time"
)

// favoriteMark is a confirmed favorite write. Marks overlay every
// projection of fetched pages, so a favorite confirmed between loads
// stays visible across refreshes until the source reflects it.
type favoriteMark struct {
	favorite bool
	at       time.Time
}

// favoriteCoordinator owns the favorite overlay and the confirmed-write
// toggle protocol: look up the entity in the current view, issue the
// remote mutation, and patch the emitted sequence only after the remote
// confirms. Nothing is patched optimistically.
type favoriteCoordinator struct {
	c     *Controller
	marks map[string]favoriteMark
}

func newFavoriteCoordinator(c *Controller) *favoriteCoordinator {
	return &favoriteCoordinator{
		c:     c,
		marks: make(map[string]favoriteMark),
	}
}

// project builds the item sequence for entities with the favorite
// overlay applied. The caller must hold c.mu.
func (f *favoriteCoordinator) project(entities []Stock) []Item {
	items := make([]Item, len(entities))
	for i, stock := range entities {
		item := newItem(stock)
		if mark, ok := f.marks[stock.Symbol]; ok {
			item = item.WithFavorite(mark.favorite, mark.at)
		}
		items[i] = item
	}
	return items
}

// toggle flips the favorite flag for symbol. The caller must hold c.mu.
// The remote mutation runs outside the lock and reconciles on
// completion; concurrent toggles on one symbol are not deduplicated,
// the last completion wins.
func (f *favoriteCoordinator) toggle(symbol string) {
	idx := slices.IndexFunc(f.c.items, func(it Item) bool { return it.Symbol == symbol })
	if idx < 0 {
		FavoriteToggles.WithLabelValues("unknown", "not_found").Inc()
		f.c.logger.Warn().
			Str("symbol", symbol).
			Msg("favorite toggle on unknown symbol")
		return
	}

	target := !f.c.items[idx].IsFavorite
	entity := f.c.entities[idx]

	action := "favorite"
	call := f.c.source.Favorite
	if !target {
		action = "unfavorite"
		call = f.c.source.Unfavorite
	}

	f.c.logger.Debug().
		Str("symbol", symbol).
		Str("action", action).
		Msg("issuing favorite mutation")

	go func() {
		err := call(f.c.ctx, entity)
		f.reconcile(symbol, action, target, err)
	}()
}

// reconcile applies the outcome of a favorite mutation. Success records
// the mark and patches the matching item in the currently emitted
// sequence; failure leaves the sequence untouched.
func (f *favoriteCoordinator) reconcile(symbol, action string, target bool, err error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	if f.c.closed {
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		FavoriteToggles.WithLabelValues(action, "not_found").Inc()
		f.c.logger.Warn().
			Err(err).
			Str("symbol", symbol).
			Str("action", action).
			Msg("favorite mutation target missing")
		return
	default:
		FavoriteToggles.WithLabelValues(action, "error").Inc()
		f.c.logger.Error().
			Err(err).
			Str("symbol", symbol).
			Str("action", action).
			Msg("favorite mutation failed")
		f.c.errStream.publish(err)
		return
	}

	var at time.Time
	if target {
		at = time.Now()
	}
	f.marks[symbol] = favoriteMark{favorite: target, at: at}
	FavoriteToggles.WithLabelValues(action, "success").Inc()

	f.c.logger.Info().
		Str("symbol", symbol).
		Str("action", action).
		Msg("favorite mutation confirmed")

	idx := slices.IndexFunc(f.c.items, func(it Item) bool { return it.Symbol == symbol })
	if idx < 0 {
		// Confirmed while the item is off-view. The mark applies on the
		// next projection.
		return
	}

	items := slices.Clone(f.c.items)
	items[idx] = items[idx].WithFavorite(target, at)
	f.c.items = items
	f.c.itemsStream.publish(items)
}

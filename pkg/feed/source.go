package feed

import "context"

// Source supplies stock pages and performs favorite writes. The client
// package provides the production implementation backed by the KIS
// listing API and the Redis page cache.
type Source interface {
	// FetchList retrieves one page of the listing. Implementations that
	// hold a cached copy of the page invoke onCached with it before
	// going to the network, so callers can render stale data while the
	// fresh page is in flight. onCached may be nil, is optional for
	// implementations without a cache, and must be called synchronously
	// before FetchList returns.
	//
	// A return of ErrContentUnchanged means the remote confirmed the
	// cached page is still current; no fresh page accompanies it.
	FetchList(ctx context.Context, ordinal int, onCached func(Page[Stock])) (Page[Stock], error)

	// Favorite marks the stock in the remote watchlist.
	Favorite(ctx context.Context, stock Stock) error

	// Unfavorite removes the stock from the remote watchlist.
	Unfavorite(ctx context.Context, stock Stock) error
}

// Navigator receives navigation intents from the controller. The
// controller owns no screens; it only reports that the user asked to
// see something.
type Navigator interface {
	ShowDetails(stock Stock)
	ShowFavorites()
}

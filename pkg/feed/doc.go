// Package feed implements the paginated watchlist feed controller.
//
// The controller reconciles a locally cached copy of a paged stock
// collection with freshly fetched pages and exposes one deduplicated,
// always-consistent item sequence to observers. It owns three pieces of
// state: a PageStore holding the fetched pages, a load state machine
// that permits at most one in-flight page load, and a favorites overlay
// applied on top of every emission.
//
// # Basic Usage
//
//	ctrl, err := feed.New(feed.Config{
//		Source:   apiClient, // implements feed.Source
//		PageSize: 20,
//	})
//	if err != nil {
//		return err
//	}
//	defer ctrl.Close()
//
//	items := ctrl.Items(ctx)
//	states := ctrl.LoadStates(ctx)
//
//	ctrl.Refresh()
//	for seq := range items {
//		render(seq)
//	}
//
// # Load Protocol
//
// Refresh wipes the store and fetches page 1; LoadNextPage fetches the
// next ordinal and is a no-op while a load is running or when every
// page has been seen. A source may deliver a possibly stale cached page
// before the network settles; the controller merges and re-emits it
// immediately so observers have something to show, then merges the
// authoritative result when it arrives. Starting a new load supersedes
// the previous one: its handle is canceled and any late callbacks can
// no longer touch the load state, though their page data still merges
// when the store has not been reset in between.
//
// # Favorites
//
// ToggleFavorite issues the remote watchlist mutation first and patches
// the emitted sequence only after the mutation is confirmed. A failed
// mutation surfaces on the error stream and leaves the item untouched.
// The overlay is local state: it survives Refresh.
//
// # Streams
//
// Items, LoadStates and AllLoaded are replay-latest broadcast streams:
// a new subscriber immediately receives the current value, then every
// subsequent one. Errors is a plain broadcast with no replay. All
// streams complete when the controller is closed.
//
// The controller is safe for concurrent use. Collaborator callbacks are
// serialized onto the controller's internal state lock, so observers
// always see a consistent sequence.
package feed

package feed

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"
)

// scriptedSource hands every FetchList call to the test through a
// channel and blocks until the test supplies the outcome.
type scriptedSource struct {
	calls         chan fetchCall
	favorites     chan favoriteCall
	respectCancel bool
}

type fetchCall struct {
	ordinal  int
	ctx      context.Context
	onCached func(Page[Stock])
	result   chan fetchResult
}

type fetchResult struct {
	page Page[Stock]
	err  error
}

type favoriteCall struct {
	stock    Stock
	favorite bool
	result   chan error
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{
		calls:     make(chan fetchCall, 8),
		favorites: make(chan favoriteCall, 8),
	}
}

func (s *scriptedSource) FetchList(ctx context.Context, ordinal int, onCached func(Page[Stock])) (Page[Stock], error) {
	call := fetchCall{
		ordinal:  ordinal,
		ctx:      ctx,
		onCached: onCached,
		result:   make(chan fetchResult, 1),
	}
	s.calls <- call

	if s.respectCancel {
		select {
		case res := <-call.result:
			return res.page, res.err
		case <-ctx.Done():
			return Page[Stock]{}, ctx.Err()
		}
	}

	res := <-call.result
	return res.page, res.err
}

func (s *scriptedSource) Favorite(ctx context.Context, stock Stock) error {
	call := favoriteCall{stock: stock, favorite: true, result: make(chan error, 1)}
	s.favorites <- call
	return <-call.result
}

func (s *scriptedSource) Unfavorite(ctx context.Context, stock Stock) error {
	call := favoriteCall{stock: stock, favorite: false, result: make(chan error, 1)}
	s.favorites <- call
	return <-call.result
}

// recordingNavigator records navigation intents.
type recordingNavigator struct {
	mu        sync.Mutex
	details   []Stock
	favorites int
}

func (n *recordingNavigator) ShowDetails(stock Stock) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.details = append(n.details, stock)
}

func (n *recordingNavigator) ShowFavorites() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.favorites++
}

func (n *recordingNavigator) shownDetails() []Stock {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.details)
}

func newTestController(t *testing.T, src *scriptedSource, pageSize int) *Controller {
	t.Helper()
	cfg := DefaultConfig(src)
	cfg.PageSize = pageSize
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func makeStocks(prefix string, n int) []Stock {
	stocks := make([]Stock, n)
	for i := range stocks {
		stocks[i] = Stock{
			Symbol: fmt.Sprintf("%s-%03d", prefix, i),
			Name:   fmt.Sprintf("%s Corp %d", prefix, i),
			Market: "KOSPI",
			Price:  10000 + float64(i)*100,
		}
	}
	return stocks
}

func symbols(items []Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Symbol
	}
	return out
}

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while waiting for %s", what)
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	panic("unreachable")
}

func waitState(t *testing.T, ch <-chan LoadState, want LoadState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				t.Fatalf("state stream closed while waiting for %q", want)
			}
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %q", want)
		}
	}
}

func waitClosed[T any](t *testing.T, ch <-chan T, what string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("%s was not completed", what)
		}
	}
}

func expectQuiet[T any](t *testing.T, ch <-chan T, what string) {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while expecting no %s", what)
		}
		t.Fatalf("unexpected %s: %v", what, v)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{PageSize: 10}); err == nil {
		t.Error("New() without a source succeeded, want error")
	}
	if _, err := New(Config{Source: newScriptedSource(), PageSize: 0}); err == nil {
		t.Error("New() with page_size 0 succeeded, want error")
	}
}

func TestNewSeedsStreams(t *testing.T) {
	c := newTestController(t, newScriptedSource(), 3)
	ctx := context.Background()

	items := recv(t, c.Items(ctx), "initial items")
	if len(items) != 0 {
		t.Errorf("initial items = %v, want empty", items)
	}
	if state := recv(t, c.State(ctx), "initial state"); state != StateIdle {
		t.Errorf("initial state = %q, want %q", state, StateIdle)
	}
	if loaded := recv(t, c.AllLoaded(ctx), "initial all-loaded"); loaded {
		t.Error("initial all-loaded = true, want false")
	}
	if !c.ItemsIsEmpty() {
		t.Error("ItemsIsEmpty() = false on a fresh controller, want true")
	}
}

func TestRefreshLoadsFirstPage(t *testing.T) {
	src := newScriptedSource()
	c := newTestController(t, src, 2)
	ctx := context.Background()

	itemsCh := c.Items(ctx)
	stateCh := c.State(ctx)
	loadedCh := c.AllLoaded(ctx)
	recv(t, itemsCh, "initial items")
	recv(t, loadedCh, "initial all-loaded")

	c.Refresh()
	waitState(t, stateCh, StateLoadingFirst)

	call := recv(t, src.calls, "first page fetch")
	if call.ordinal != 1 {
		t.Fatalf("fetched ordinal = %d, want 1", call.ordinal)
	}
	call.result <- fetchResult{page: Page[Stock]{Ordinal: 1, TotalPages: 3, Items: makeStocks("KS", 2)}}

	items := recv(t, itemsCh, "merged items")
	if want := []string{"KS-000", "KS-001"}; !slices.Equal(symbols(items), want) {
		t.Errorf("items = %v, want %v", symbols(items), want)
	}
	waitState(t, stateCh, StateIdle)
	if loaded := recv(t, loadedCh, "all-loaded after full page"); loaded {
		t.Error("all-loaded = true after a full page with pages remaining, want false")
	}
	if c.ItemsIsEmpty() {
		t.Error("ItemsIsEmpty() = true after merge, want false")
	}
}

func TestLoadNextPageAppendsInOrder(t *testing.T) {
	src := newScriptedSource()
	c := newTestController(t, src, 2)
	ctx := context.Background()

	itemsCh := c.Items(ctx)
	stateCh := c.State(ctx)
	loadedCh := c.AllLoaded(ctx)
	recv(t, itemsCh, "initial items")
	recv(t, loadedCh, "initial all-loaded")

	c.Refresh()
	call := recv(t, src.calls, "page 1 fetch")
	call.result <- fetchResult{page: Page[Stock]{Ordinal: 1, TotalPages: 2, Items: makeStocks("P1", 2)}}
	recv(t, itemsCh, "page 1 items")
	waitState(t, stateCh, StateIdle)
	recv(t, loadedCh, "all-loaded after page 1")

	c.LoadNextPage()
	waitState(t, stateCh, StateLoadingNext)
	call = recv(t, src.calls, "page 2 fetch")
	if call.ordinal != 2 {
		t.Fatalf("fetched ordinal = %d, want 2", call.ordinal)
	}
	call.result <- fetchResult{page: Page[Stock]{Ordinal: 2, TotalPages: 2, Items: makeStocks("P2", 1)}}

	items := recv(t, itemsCh, "page 2 items")
	if want := []string{"P1-000", "P1-001", "P2-000"}; !slices.Equal(symbols(items), want) {
		t.Errorf("items = %v, want %v", symbols(items), want)
	}
	if loaded := recv(t, loadedCh, "all-loaded after short page"); !loaded {
		t.Error("all-loaded = false after a short final page, want true")
	}

	// Listing exhausted, further next-page requests fetch nothing.
	c.LoadNextPage()
	expectQuiet(t, src.calls, "fetch call")
}

func TestLoadNextPageWhileLoadingIsNoOp(t *testing.T) {
	src := newScriptedSource()
	c := newTestController(t, src, 2)

	c.Refresh()
	call := recv(t, src.calls, "first page fetch")

	c.LoadNextPage()
	expectQuiet(t, src.calls, "overlapping fetch call")

	call.result <- fetchResult{page: Page[Stock]{Ordinal: 1, TotalPages: 1, Items: makeStocks("KS", 1)}}
}

func TestEmptyFirstPageDoesNotMarkAllLoaded(t *testing.T) {
	src := newScriptedSource()
	c := newTestController(t, src, 2)
	ctx := context.Background()

	itemsCh := c.Items(ctx)
	loadedCh := c.AllLoaded(ctx)
	recv(t, itemsCh, "initial items")
	recv(t, loadedCh, "initial all-loaded")

	c.Refresh()
	call := recv(t, src.calls, "first page fetch")
	call.result <- fetchResult{page: Page[Stock]{Ordinal: 1, TotalPages: 1, Items: nil}}

	items := recv(t, itemsCh, "empty items")
	if len(items) != 0 {
		t.Errorf("items = %v, want empty", items)
	}
	if loaded := recv(t, loadedCh, "all-loaded after empty page"); loaded {
		t.Error("all-loaded = true for an empty listing, want false")
	}
	if !c.ItemsIsEmpty() {
		t.Error("ItemsIsEmpty() = false for an empty listing, want true")
	}
}

func TestSelectItemDelegatesToNavigator(t *testing.T) {
	src := newScriptedSource()
	nav := &recordingNavigator{}
	cfg := DefaultConfig(src)
	cfg.PageSize = 2
	cfg.Navigator = nav
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(c.Close)

	ctx := context.Background()
	itemsCh := c.Items(ctx)
	recv(t, itemsCh, "initial items")

	c.Refresh()
	call := recv(t, src.calls, "first page fetch")
	call.result <- fetchResult{page: Page[Stock]{Ordinal: 1, TotalPages: 1, Items: makeStocks("KS", 2)}}
	recv(t, itemsCh, "merged items")

	c.SelectItem(1)
	// Indices from a stale render fail silently.
	c.SelectItem(-1)
	c.SelectItem(99)

	shown := nav.shownDetails()
	if len(shown) != 1 || shown[0].Symbol != "KS-001" {
		t.Errorf("ShowDetails calls = %v, want exactly one for KS-001", shown)
	}

	c.OpenFavorites()
	nav.mu.Lock()
	favs := nav.favorites
	nav.mu.Unlock()
	if favs != 1 {
		t.Errorf("ShowFavorites calls = %d, want 1", favs)
	}
}

func TestSelectItemWithoutNavigatorIsNoOp(t *testing.T) {
	src := newScriptedSource()
	c := newTestController(t, src, 2)
	ctx := context.Background()

	itemsCh := c.Items(ctx)
	recv(t, itemsCh, "initial items")

	c.Refresh()
	call := recv(t, src.calls, "first page fetch")
	call.result <- fetchResult{page: Page[Stock]{Ordinal: 1, TotalPages: 1, Items: makeStocks("KS", 1)}}
	recv(t, itemsCh, "merged items")

	c.SelectItem(0)
	c.OpenFavorites()
}

func TestCloseCompletesStreams(t *testing.T) {
	src := newScriptedSource()
	c := newTestController(t, src, 2)
	ctx := context.Background()

	itemsCh := c.Items(ctx)
	stateCh := c.State(ctx)
	loadedCh := c.AllLoaded(ctx)
	errCh := c.Errors(ctx)

	c.Close()
	c.Close() // idempotent

	waitClosed(t, itemsCh, "items stream")
	waitClosed(t, stateCh, "state stream")
	waitClosed(t, loadedCh, "all-loaded stream")
	waitClosed(t, errCh, "error stream")

	// Operations on a closed controller start nothing.
	c.Refresh()
	c.LoadNextPage()
	c.ToggleFavorite("KS-000")
	expectQuiet(t, src.calls, "fetch call after close")
	expectQuiet(t, src.favorites, "favorite call after close")
}

func TestCloseCancelsInFlightLoad(t *testing.T) {
	src := newScriptedSource()
	src.respectCancel = true
	c := newTestController(t, src, 2)

	c.Refresh()
	call := recv(t, src.calls, "first page fetch")

	c.Close()

	select {
	case <-call.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight load context not canceled by Close")
	}
}

package feed

import "slices"

// Page is one fetched slice of a paginated remote collection.
// It is immutable once constructed: a later page with the same ordinal
// replaces the earlier one wholesale, items are never merged item by
// item.
type Page[T any] struct {
	// Ordinal is the 1-based page number.
	Ordinal int

	// TotalPages is the total page count declared by the remote
	// collection at the time this page was fetched.
	TotalPages int

	// Items are the page's entries in remote order.
	Items []T
}

// PageStore collects fetched pages keyed by ordinal and produces the
// flattened view: all items concatenated in ascending ordinal order.
// Entities appearing in two different pages are intentionally not
// deduplicated; pagination windows are assumed disjoint and the store
// reproduces exactly what the remote returned.
//
// PageStore is not safe for concurrent use; the controller serializes
// access to it.
type PageStore[T any] struct {
	pages          map[int]Page[T]
	currentOrdinal int
	totalPages     int
}

// NewPageStore returns an empty store. HasMorePages is true on an
// empty store so the first page may be fetched.
func NewPageStore[T any]() *PageStore[T] {
	s := &PageStore[T]{}
	s.Reset()
	return s
}

// AppendPage accepts a page, replacing any page already held for the
// same ordinal, and returns the recomputed flattened view.
//
// The current ordinal only ever moves forward within a cycle: a stale
// re-merge of a lower ordinal must not shrink the pagination window.
// TotalPages always follows the most recently accepted page, since the
// remote collection may grow or shrink mid-session and the latest fetch
// is the best truth available.
func (s *PageStore[T]) AppendPage(p Page[T]) []T {
	s.pages[p.Ordinal] = p
	if p.Ordinal > s.currentOrdinal {
		s.currentOrdinal = p.Ordinal
	}
	s.totalPages = p.TotalPages
	return s.Flattened()
}

// Flattened returns the items of all held pages, ordinals ascending,
// items in page order.
func (s *PageStore[T]) Flattened() []T {
	ordinals := make([]int, 0, len(s.pages))
	for ordinal := range s.pages {
		ordinals = append(ordinals, ordinal)
	}
	slices.Sort(ordinals)

	flat := make([]T, 0, s.Len())
	for _, ordinal := range ordinals {
		flat = append(flat, s.pages[ordinal].Items...)
	}
	return flat
}

// PageAt returns the page currently occupying the given ordinal slot.
func (s *PageStore[T]) PageAt(ordinal int) (Page[T], bool) {
	p, ok := s.pages[ordinal]
	return p, ok
}

// Len is the total number of items across all held pages.
func (s *PageStore[T]) Len() int {
	n := 0
	for _, p := range s.pages {
		n += len(p.Items)
	}
	return n
}

// CurrentOrdinal is the highest ordinal accepted in this cycle, 0 when
// no page has been accepted since the last Reset.
func (s *PageStore[T]) CurrentOrdinal() int {
	return s.currentOrdinal
}

// TotalPages is the total page count declared by the most recently
// accepted page. 1 after Reset.
func (s *PageStore[T]) TotalPages() int {
	return s.totalPages
}

// HasMorePages reports whether ordinals beyond the current one remain.
func (s *PageStore[T]) HasMorePages() bool {
	return s.currentOrdinal < s.totalPages
}

// NextOrdinal is the ordinal the next load should request. It never
// exceeds TotalPages: once the last page is held it keeps returning the
// current ordinal.
func (s *PageStore[T]) NextOrdinal() int {
	if s.HasMorePages() {
		return s.currentOrdinal + 1
	}
	return s.currentOrdinal
}

// Reset wipes all pages and restores the initial bookkeeping so that
// HasMorePages is true and NextOrdinal is 1.
func (s *PageStore[T]) Reset() {
	s.pages = make(map[int]Page[T])
	s.currentOrdinal = 0
	s.totalPages = 1
}

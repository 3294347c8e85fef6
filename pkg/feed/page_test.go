package feed

import (
	"slices"
	"testing"
)

func TestPageStoreFlattenedOrder(t *testing.T) {
	tests := []struct {
		name     string
		pages    []Page[string]
		expected []string
	}{
		{
			name: "pages appended in order",
			pages: []Page[string]{
				{Ordinal: 1, TotalPages: 3, Items: []string{"a", "b"}},
				{Ordinal: 2, TotalPages: 3, Items: []string{"c", "d"}},
			},
			expected: []string{"a", "b", "c", "d"},
		},
		{
			name: "pages appended out of order flatten ascending",
			pages: []Page[string]{
				{Ordinal: 3, TotalPages: 3, Items: []string{"e"}},
				{Ordinal: 1, TotalPages: 3, Items: []string{"a"}},
				{Ordinal: 2, TotalPages: 3, Items: []string{"c"}},
			},
			expected: []string{"a", "c", "e"},
		},
		{
			name: "duplicate entities across pages are preserved",
			pages: []Page[string]{
				{Ordinal: 1, TotalPages: 2, Items: []string{"a", "b"}},
				{Ordinal: 2, TotalPages: 2, Items: []string{"b", "c"}},
			},
			expected: []string{"a", "b", "b", "c"},
		},
		{
			name:     "empty store flattens to nothing",
			pages:    nil,
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewPageStore[string]()
			var flattened []string
			for _, p := range tt.pages {
				flattened = store.AppendPage(p)
			}
			if len(tt.pages) == 0 {
				flattened = store.Flattened()
			}
			if !slices.Equal(flattened, tt.expected) {
				t.Errorf("Flattened() = %v, want %v", flattened, tt.expected)
			}
		})
	}
}

func TestPageStoreReplacesSameOrdinal(t *testing.T) {
	store := NewPageStore[string]()
	store.AppendPage(Page[string]{Ordinal: 1, TotalPages: 1, Items: []string{"old-a", "old-b"}})
	flattened := store.AppendPage(Page[string]{Ordinal: 1, TotalPages: 1, Items: []string{"new-a"}})

	expected := []string{"new-a"}
	if !slices.Equal(flattened, expected) {
		t.Errorf("Flattened() after replace = %v, want %v", flattened, expected)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestPageStoreCurrentOrdinalIsMonotonic(t *testing.T) {
	store := NewPageStore[string]()
	store.AppendPage(Page[string]{Ordinal: 2, TotalPages: 5, Items: []string{"c"}})
	if got := store.CurrentOrdinal(); got != 2 {
		t.Fatalf("CurrentOrdinal() = %d, want 2", got)
	}

	// A late-arriving lower page must not shrink the pagination window.
	store.AppendPage(Page[string]{Ordinal: 1, TotalPages: 5, Items: []string{"a"}})
	if got := store.CurrentOrdinal(); got != 2 {
		t.Errorf("CurrentOrdinal() after lower ordinal = %d, want 2", got)
	}
	if got := store.NextOrdinal(); got != 3 {
		t.Errorf("NextOrdinal() = %d, want 3", got)
	}
}

func TestPageStoreTotalPagesTrustsLatest(t *testing.T) {
	store := NewPageStore[string]()
	store.AppendPage(Page[string]{Ordinal: 1, TotalPages: 5, Items: []string{"a"}})
	store.AppendPage(Page[string]{Ordinal: 2, TotalPages: 3, Items: []string{"b"}})

	if got := store.TotalPages(); got != 3 {
		t.Errorf("TotalPages() = %d, want 3", got)
	}
}

func TestPageStoreHasMorePages(t *testing.T) {
	tests := []struct {
		name        string
		pages       []Page[string]
		hasMore     bool
		nextOrdinal int
	}{
		{
			name:        "fresh store permits the first fetch",
			pages:       nil,
			hasMore:     true,
			nextOrdinal: 1,
		},
		{
			name: "middle of listing",
			pages: []Page[string]{
				{Ordinal: 1, TotalPages: 3, Items: []string{"a"}},
			},
			hasMore:     true,
			nextOrdinal: 2,
		},
		{
			name: "last page reached clamps next ordinal",
			pages: []Page[string]{
				{Ordinal: 1, TotalPages: 2, Items: []string{"a"}},
				{Ordinal: 2, TotalPages: 2, Items: []string{"b"}},
			},
			hasMore:     false,
			nextOrdinal: 2,
		},
		{
			name: "single page listing",
			pages: []Page[string]{
				{Ordinal: 1, TotalPages: 1, Items: []string{"a"}},
			},
			hasMore:     false,
			nextOrdinal: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewPageStore[string]()
			for _, p := range tt.pages {
				store.AppendPage(p)
			}
			if got := store.HasMorePages(); got != tt.hasMore {
				t.Errorf("HasMorePages() = %v, want %v", got, tt.hasMore)
			}
			if got := store.NextOrdinal(); got != tt.nextOrdinal {
				t.Errorf("NextOrdinal() = %d, want %d", got, tt.nextOrdinal)
			}
		})
	}
}

func TestPageStoreReset(t *testing.T) {
	store := NewPageStore[string]()
	store.AppendPage(Page[string]{Ordinal: 1, TotalPages: 2, Items: []string{"a"}})
	store.AppendPage(Page[string]{Ordinal: 2, TotalPages: 2, Items: []string{"b"}})

	store.Reset()

	if got := store.Len(); got != 0 {
		t.Errorf("Len() after reset = %d, want 0", got)
	}
	if got := store.CurrentOrdinal(); got != 0 {
		t.Errorf("CurrentOrdinal() after reset = %d, want 0", got)
	}
	if got := store.TotalPages(); got != 1 {
		t.Errorf("TotalPages() after reset = %d, want 1", got)
	}
	if !store.HasMorePages() {
		t.Error("HasMorePages() after reset = false, want true")
	}
	if got := store.NextOrdinal(); got != 1 {
		t.Errorf("NextOrdinal() after reset = %d, want 1", got)
	}
}

func TestPageStorePageAt(t *testing.T) {
	store := NewPageStore[string]()
	store.AppendPage(Page[string]{Ordinal: 2, TotalPages: 2, Items: []string{"b"}})

	if _, ok := store.PageAt(1); ok {
		t.Error("PageAt(1) reported a page that was never appended")
	}
	page, ok := store.PageAt(2)
	if !ok {
		t.Fatal("PageAt(2) = missing, want present")
	}
	if !slices.Equal(page.Items, []string{"b"}) {
		t.Errorf("PageAt(2).Items = %v, want [b]", page.Items)
	}
}

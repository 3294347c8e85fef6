package feed

import "time"

// Item is the projection of a Stock that the controller emits to
// observers: the display fields of the instrument plus the two locally
// owned favorite fields. Items are plain comparable values; observers
// use == to decide whether a row needs re-rendering.
type Item struct {
	Symbol     string
	Name       string
	Market     string
	Price      float64
	ChangeRate float64
	Volume     int64

	// IsFavorite reports local watchlist membership.
	IsFavorite bool

	// FavoritedAt is when the instrument was favorited. The zero value
	// means never, or no longer, favorited.
	FavoritedAt time.Time
}

func newItem(s Stock) Item {
	return Item{
		Symbol:     s.Symbol,
		Name:       s.Name,
		Market:     s.Market,
		Price:      s.Price,
		ChangeRate: s.ChangeRate,
		Volume:     s.Volume,
	}
}

// WithFavorite returns a copy of the item with the favorite fields set.
// Items are never mutated in place; patched sequences replace the entry
// at its index with the value returned here.
func (i Item) WithFavorite(favorite bool, at time.Time) Item {
	i.IsFavorite = favorite
	if favorite {
		i.FavoritedAt = at
	} else {
		i.FavoritedAt = time.Time{}
	}
	return i
}

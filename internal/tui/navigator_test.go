package tui

import (
	"testing"

	"github.com/brownsoo/kis-test/pkg/feed"
)

func TestNavigator_SafeBeforeAttach(t *testing.T) {
	nav := NewNavigator()

	// Navigation requests arriving before the program is attached are
	// dropped, not panics.
	nav.ShowDetails(feed.Stock{Symbol: "005930", Name: "Samsung Electronics"})
	nav.ShowFavorites()
}

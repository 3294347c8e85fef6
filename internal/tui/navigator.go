package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brownsoo/kis-test/pkg/feed"
)

// Navigator forwards the controller's navigation intents into the running
// Bubble Tea program. Intents arriving before Attach are dropped.
type Navigator struct {
	mu sync.Mutex
	p  *tea.Program
}

// NewNavigator creates a detached navigator.
func NewNavigator() *Navigator {
	return &Navigator{}
}

// Attach binds the navigator to the running program.
func (n *Navigator) Attach(p *tea.Program) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.p = p
}

// ShowDetails implements feed.Navigator.
func (n *Navigator) ShowDetails(stock feed.Stock) {
	n.send(showDetailsMsg{stock: stock})
}

// ShowFavorites implements feed.Navigator.
func (n *Navigator) ShowFavorites() {
	n.send(showFavoritesMsg{})
}

func (n *Navigator) send(msg tea.Msg) {
	n.mu.Lock()
	p := n.p
	n.mu.Unlock()

	if p == nil {
		return
	}
	p.Send(msg)
}

var _ feed.Navigator = (*Navigator)(nil)

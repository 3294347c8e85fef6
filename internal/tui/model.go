// Package tui renders the stock feed as an interactive terminal UI.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brownsoo/kis-test/pkg/feed"
)

// Controller is the feed surface the TUI drives. *feed.Controller is the
// production implementation.
type Controller interface {
	Refresh()
	LoadNextPage()
	SelectItem(index int)
	OpenFavorites()
	ToggleFavorite(symbol string)
	Items(ctx context.Context) <-chan []feed.Item
	State(ctx context.Context) <-chan feed.LoadState
	AllLoaded(ctx context.Context) <-chan bool
	Errors(ctx context.Context) <-chan error
}

var _ Controller = (*feed.Controller)(nil)

type viewMode int

const (
	viewList viewMode = iota
	viewDetails
	viewFavorites
)

// Stream and navigation messages.
type (
	itemsMsg     []feed.Item
	stateMsg     feed.LoadState
	allLoadedMsg bool

	feedErrMsg struct{ err error }

	streamClosedMsg struct{}

	showDetailsMsg   struct{ stock feed.Stock }
	showFavoritesMsg struct{}
)

// Options configures the TUI.
type Options struct {
	Context    context.Context
	Controller Controller
}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx  context.Context
	ctrl Controller

	itemsCh  <-chan []feed.Item
	stateCh  <-chan feed.LoadState
	loadedCh <-chan bool
	errCh    <-chan error

	items     []feed.Item
	state     feed.LoadState
	allLoaded bool
	lastErr   error

	mode   viewMode
	detail feed.Stock
	cursor int

	width  int
	height int
	ready  bool

	spin spinner.Model
}

// visibleRow pairs an item with its index in the emitted sequence, so
// selections made in a filtered view still address the right item.
type visibleRow struct {
	item  feed.Item
	index int
}

// New creates a new Bubble Tea model subscribed to the controller streams.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))

	return Model{
		ctx:      ctx,
		ctrl:     opts.Controller,
		state:    feed.StateIdle,
		spin:     sp,
		itemsCh:  opts.Controller.Items(ctx),
		stateCh:  opts.Controller.State(ctx),
		loadedCh: opts.Controller.AllLoaded(ctx),
		errCh:    opts.Controller.Errors(ctx),
	}
}

// Init implements tea.Model. It starts the stream bridges and kicks off
// the first refresh.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spin.Tick,
		m.nextItems,
		m.nextState,
		m.nextLoaded,
		m.nextError,
		func() tea.Msg {
			m.ctrl.Refresh()
			return nil
		},
	)
}

// Stream bridges: each blocks on one channel receive and is re-armed by
// Update when its message lands.

func (m Model) nextItems() tea.Msg {
	items, ok := <-m.itemsCh
	if !ok {
		return streamClosedMsg{}
	}
	return itemsMsg(items)
}

func (m Model) nextState() tea.Msg {
	state, ok := <-m.stateCh
	if !ok {
		return streamClosedMsg{}
	}
	return stateMsg(state)
}

func (m Model) nextLoaded() tea.Msg {
	loaded, ok := <-m.loadedCh
	if !ok {
		return streamClosedMsg{}
	}
	return allLoadedMsg(loaded)
}

func (m Model) nextError() tea.Msg {
	err, ok := <-m.errCh
	if !ok {
		return streamClosedMsg{}
	}
	return feedErrMsg{err: err}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case itemsMsg:
		m.items = []feed.Item(msg)
		m.cursor = m.clampedCursor()
		return m, m.nextItems

	case stateMsg:
		m.state = feed.LoadState(msg)
		return m, m.nextState

	case allLoadedMsg:
		m.allLoaded = bool(msg)
		return m, m.nextLoaded

	case feedErrMsg:
		m.lastErr = msg.err
		return m, m.nextError

	case streamClosedMsg:
		return m, tea.Quit

	case showDetailsMsg:
		m.mode = viewDetails
		m.detail = msg.stock
		return m, nil

	case showFavoritesMsg:
		m.mode = viewFavorites
		m.cursor = 0
		return m, nil
	}

	return m, nil
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "esc":
		if m.mode != viewList {
			m.mode = viewList
			m.cursor = m.clampedCursor()
		}
		return m, nil
	}

	// The details view only reacts to esc and quit
	if m.mode == viewDetails {
		return m, nil
	}

	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		rows := m.visible()
		if m.cursor < len(rows)-1 {
			m.cursor++
		} else if m.mode == viewList && !m.allLoaded {
			// Scrolling past the last row asks for the next page
			m.ctrl.LoadNextPage()
		}

	case "g":
		m.cursor = 0

	case "G":
		m.cursor = max(0, len(m.visible())-1)

	case "r":
		m.lastErr = nil
		m.ctrl.Refresh()

	case "n":
		if m.mode == viewList {
			m.ctrl.LoadNextPage()
		}

	case "f":
		if row, ok := m.cursorRow(); ok {
			m.ctrl.ToggleFavorite(row.item.Symbol)
		}

	case "F":
		m.ctrl.OpenFavorites()

	case "enter":
		if row, ok := m.cursorRow(); ok {
			m.ctrl.SelectItem(row.index)
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	if m.mode == viewDetails {
		return m.renderDetails()
	}
	return m.renderList()
}

func (m Model) renderList() string {
	var b strings.Builder

	title := "feedwatch"
	if m.mode == viewFavorites {
		title = "feedwatch / favorites"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n\n")

	rows := m.visible()
	if len(rows) == 0 {
		label := feed.EmptyStateLabel
		if m.mode == viewFavorites {
			label = "No favorites yet."
		}
		b.WriteString(mutedStyle.Render(label))
		b.WriteString("\n")
	} else {
		b.WriteString(headerStyle.Render(fmt.Sprintf("  %-8s %-24s %-7s %12s %9s %14s",
			"SYMBOL", "NAME", "MARKET", "PRICE", "CHANGE", "VOLUME")))
		b.WriteString("\n")

		listHeight := m.listHeight()
		start := 0
		if m.cursor >= listHeight {
			start = m.cursor - listHeight + 1
		}
		end := min(len(rows), start+listHeight)

		for i := start; i < end; i++ {
			b.WriteString(m.renderRow(rows[i], i == m.cursor))
			b.WriteString("\n")
		}
	}

	if m.lastErr != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("error: " + m.lastErr.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ move • enter details • f favorite • F favorites • n next page • r refresh • q quit"))
	return b.String()
}

func (m Model) renderRow(row visibleRow, selected bool) string {
	star := " "
	if row.item.IsFavorite {
		star = "★"
	}

	change := fmt.Sprintf("%+.2f%%", row.item.ChangeRate)
	line := fmt.Sprintf("%s %-8s %-24s %-7s %12s %9s %14s",
		star,
		row.item.Symbol,
		truncate(row.item.Name, 24),
		row.item.Market,
		groupDigits(fmt.Sprintf("%.0f", row.item.Price)),
		change,
		groupDigits(strconv.FormatInt(row.item.Volume, 10)),
	)

	if selected {
		return selectedStyle.Render(line)
	}

	// Color the change column only on unselected rows so the selection
	// background stays intact
	styled := fmt.Sprintf("%s %-8s %-24s %-7s %12s %s %14s",
		starStyle.Render(star),
		row.item.Symbol,
		truncate(row.item.Name, 24),
		row.item.Market,
		groupDigits(fmt.Sprintf("%.0f", row.item.Price)),
		changeStyle(row.item.ChangeRate).Render(fmt.Sprintf("%9s", change)),
		groupDigits(strconv.FormatInt(row.item.Volume, 10)),
	)
	return styled
}

func (m Model) renderDetails() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("feedwatch / details"))
	b.WriteString("\n\n")

	body := fmt.Sprintf(
		"%s\n\nSymbol   %s\nMarket   %s\nPrice    %s\nChange   %s\nVolume   %s",
		lipgloss.NewStyle().Bold(true).Render(m.detail.Name),
		m.detail.Symbol,
		m.detail.Market,
		groupDigits(fmt.Sprintf("%.0f", m.detail.Price)),
		changeStyle(m.detail.ChangeRate).Render(fmt.Sprintf("%+.2f%%", m.detail.ChangeRate)),
		groupDigits(strconv.FormatInt(m.detail.Volume, 10)),
	)
	b.WriteString(detailBoxStyle.Render(body))
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("esc back • q quit"))
	return b.String()
}

func (m Model) statusLine() string {
	switch m.state {
	case feed.StateLoadingFirst:
		return m.spin.View() + mutedStyle.Render(" loading first page")
	case feed.StateLoadingNext:
		return m.spin.View() + mutedStyle.Render(" loading next page")
	}

	status := fmt.Sprintf("%d stocks", len(m.items))
	if m.mode == viewFavorites {
		status = fmt.Sprintf("%d favorites", len(m.visible()))
	}
	if m.allLoaded {
		status += " (end of listing)"
	}
	return mutedStyle.Render(status)
}

// visible projects the emitted sequence into the rows the current view
// shows, keeping each row's index in the full sequence.
func (m Model) visible() []visibleRow {
	rows := make([]visibleRow, 0, len(m.items))
	for i, it := range m.items {
		if m.mode == viewFavorites && !it.IsFavorite {
			continue
		}
		rows = append(rows, visibleRow{item: it, index: i})
	}
	return rows
}

func (m Model) cursorRow() (visibleRow, bool) {
	rows := m.visible()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return visibleRow{}, false
	}
	return rows[m.cursor], true
}

func (m Model) clampedCursor() int {
	rows := len(m.visible())
	if rows == 0 {
		return 0
	}
	if m.cursor >= rows {
		return rows - 1
	}
	if m.cursor < 0 {
		return 0
	}
	return m.cursor
}

// listHeight is the number of item rows that fit between the chrome.
func (m Model) listHeight() int {
	h := m.height - 8
	if h < 3 {
		h = 3
	}
	return h
}

func changeStyle(rate float64) lipgloss.Style {
	if rate < 0 {
		return downStyle
	}
	return upStyle
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// groupDigits inserts thousands separators into a decimal string.
func groupDigits(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	if neg {
		return "-" + b.String()
	}
	return b.String()
}

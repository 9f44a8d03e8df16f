package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/daviddao/storythreads/internal/datasource"
	"github.com/daviddao/storythreads/internal/render"
	"github.com/daviddao/storythreads/internal/snapshot"
	"github.com/daviddao/storythreads/internal/timeline"
)

func (a *app) runView(args []string) error {
	fs := a.subcommandFlags("view", "view [--view diagram|threads|entries] [--thread ID] [--refresh 2s]")
	refresh := fs.Duration("refresh", defaultRefresh, "reload the story at this interval as well as on file changes")
	viewFlag := fs.String("view", "", "start in a specific view (diagram|threads|entries)")
	threadFlag := fs.String("thread", "", "open a specific thread on startup")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *refresh <= 0 {
		return fmt.Errorf("view: --refresh must be positive, got %s", *refresh)
	}

	src, err := a.open()
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := datasource.NewWatcher(src.Path())
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()

	opts := a.renderOptions(src)
	snap, err := snapshot.Build(src.Store, src.Story, opts)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	m := newModel(src.Store, src.Story, snap, opts)
	m.refreshInterval = *refresh
	if *viewFlag != "" {
		v, err := parseViewFlag(*viewFlag)
		if err != nil {
			return err
		}
		m.activeView = v
	}
	if *threadFlag != "" {
		m = m.focusThread(*threadFlag)
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(a.ctx))

	go func() {
		for range w.Changes() {
			p.Send(storyChangedMsg{})
		}
	}()

	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && a.ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

func parseViewFlag(s string) (viewID, error) {
	switch strings.ToLower(s) {
	case "diagram", "d":
		return viewDiagram, nil
	case "threads", "t":
		return viewThreads, nil
	case "entries", "e":
		return viewEntries, nil
	default:
		return 0, fmt.Errorf("unknown view %q (valid: diagram, threads, entries)", s)
	}
}

// --- Messages ---

type storyChangedMsg struct{}

type snapshotReadyMsg struct {
	snap *snapshot.DataSnapshot
	err  error
}

type tickMsg struct{}

// --- Key bindings ---

type keyMap struct {
	Quit    key.Binding
	Tab     key.Binding
	Refresh key.Binding
	Up      key.Binding
	Down    key.Binding
	Left    key.Binding
	Right   key.Binding
	Help    key.Binding
	Enter   key.Binding
	Esc     key.Binding
	Filter  key.Binding
}

var keys = keyMap{
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Tab:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next view")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("k/up", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("j/down", "down")),
	Left:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("h/left", "scroll left")),
	Right:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("l/right", "scroll right")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open thread")),
	Esc:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Filter:  key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter thread")),
}

// viewKeys jump straight to a tab.
var viewKeys = map[string]viewID{
	"d": viewDiagram,
	"t": viewThreads,
	"e": viewEntries,
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Refresh, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.Refresh, k.Up, k.Down, k.Left, k.Right},
		{k.Enter, k.Esc, k.Filter, k.Help, k.Quit},
	}
}

func contextHelp(v viewID) string {
	switch v {
	case viewDiagram:
		return "j/k: scroll | h/l: pan | d/t/e: views | tab: next | ?: help | q: quit"
	case viewThreads:
		return "j/k: select thread | enter: open | d/t/e: views | tab: next | ?: help | q: quit"
	case viewThreadDetail:
		return "j/k: scroll | esc: back to threads | d/t/e: views | ?: help | q: quit"
	case viewEntries:
		return "j/k: scroll | /: filter thread | d/t/e: views | tab: next | ?: help | q: quit"
	}
	return "d/t/e: views | tab: next | ?: help | q: quit"
}

// --- Views ---

type viewID int

const (
	viewDiagram viewID = iota
	viewThreads
	viewEntries
	viewCount
	viewThreadDetail
)

func (v viewID) String() string {
	switch v {
	case viewDiagram:
		return "Diagram"
	case viewThreads:
		return "Threads"
	case viewEntries:
		return "Entries"
	case viewThreadDetail:
		return "Thread"
	}
	return "?"
}

// --- Model ---

type uiModel struct {
	loader snapshot.Loader
	story  string
	opts   render.Options
	snap   *snapshot.DataSnapshot

	activeView      viewID
	width           int
	height          int
	scrollPos       int
	panPos          int
	selectedThread  int
	detailThread    string // thread ID for the detail view
	filterThread    string // thread filter for Entries ("" = all)
	refreshInterval time.Duration

	help     help.Model
	showHelp bool

	lastRefresh time.Time
	lastErr     error
}

func newModel(l snapshot.Loader, story string, snap *snapshot.DataSnapshot, opts render.Options) uiModel {
	return uiModel{
		loader:      l,
		story:       story,
		opts:        opts,
		snap:        snap,
		help:        help.New(),
		lastRefresh: time.Now(),

		refreshInterval: defaultRefresh,
	}
}

// focusThread selects id and opens its detail view when it exists.
func (m uiModel) focusThread(id string) uiModel {
	for i, t := range m.snap.Threads {
		if t.ID == id {
			m.selectedThread = i
			m.detailThread = id
			m.activeView = viewThreadDetail
			break
		}
	}
	return m
}

const defaultRefresh = 2 * time.Second

func (m uiModel) Init() tea.Cmd {
	return m.tick()
}

func (m uiModel) tick() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if v, ok := viewKeys[msg.String()]; ok {
			m.activeView = v
			m.scrollPos = 0
			m.detailThread = ""
			if v != viewEntries {
				m.filterThread = ""
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, keys.Esc):
			if m.activeView == viewThreadDetail {
				m.activeView = viewThreads
				m.detailThread = ""
				m.scrollPos = 0
			}

		case key.Matches(msg, keys.Enter):
			if m.activeView == viewThreads && m.selectedThread < len(m.snap.Threads) {
				m.detailThread = m.snap.Threads[m.selectedThread].ID
				m.activeView = viewThreadDetail
				m.scrollPos = 0
			}

		case key.Matches(msg, keys.Tab):
			if m.activeView == viewThreadDetail {
				m.activeView = viewThreads
				m.detailThread = ""
			} else {
				m.activeView = (m.activeView + 1) % viewCount
			}
			if m.activeView != viewEntries {
				m.filterThread = ""
			}
			m.scrollPos = 0

		case key.Matches(msg, keys.Refresh):
			return m, m.refreshSnapshot()

		case key.Matches(msg, keys.Up):
			if m.activeView == viewThreads {
				if m.selectedThread > 0 {
					m.selectedThread--
				}
			} else if m.scrollPos > 0 {
				m.scrollPos--
			}

		case key.Matches(msg, keys.Down):
			if m.activeView == viewThreads {
				if m.selectedThread < len(m.snap.Threads)-1 {
					m.selectedThread++
				}
			} else if m.scrollPos < m.snap.TotalEntries+len(m.snap.Threads)+8 {
				m.scrollPos++
			}

		case key.Matches(msg, keys.Left):
			if m.activeView == viewDiagram && m.panPos > 0 {
				m.panPos -= 3
				m.panPos = max(0, m.panPos)
			}

		case key.Matches(msg, keys.Right):
			if m.activeView == viewDiagram {
				m.panPos += 3
			}

		case key.Matches(msg, keys.Filter):
			if m.activeView == viewEntries {
				m.filterThread = nextThread(m.snap.Threads, m.filterThread)
				m.scrollPos = 0
			}

		case key.Matches(msg, keys.Help):
			m.showHelp = !m.showHelp
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case storyChangedMsg:
		return m, m.refreshSnapshot()

	case snapshotReadyMsg:
		m.lastErr = msg.err
		if msg.err == nil && msg.snap != nil {
			m.snap = msg.snap
			m.lastRefresh = time.Now()
			// Threads can vanish between snapshots.
			if len(m.snap.Threads) == 0 {
				m.selectedThread = 0
			} else if m.selectedThread >= len(m.snap.Threads) {
				m.selectedThread = len(m.snap.Threads) - 1
			}
		}

	case tickMsg:
		return m, tea.Batch(m.refreshSnapshot(), m.tick())
	}

	return m, nil
}

func nextThread(threads []snapshot.ThreadSummary, current string) string {
	if current == "" {
		if len(threads) > 0 {
			return threads[0].ID
		}
		return ""
	}
	for i, t := range threads {
		if t.ID == current && i+1 < len(threads) {
			return threads[i+1].ID
		}
	}
	return ""
}

func (m uiModel) refreshSnapshot() tea.Cmd {
	l, story, opts := m.loader, m.story, m.opts
	return func() tea.Msg {
		snap, err := snapshot.Build(l, story, opts)
		return snapshotReadyMsg{snap: snap, err: err}
	}
}

// --- Styles ---

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Background(lipgloss.Color("#1E1E2E")).
			Padding(0, 1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#6C7086")).
				Background(lipgloss.Color("#313244")).
				Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#89B4FA"))

	openStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6E3A1"))

	closedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F38BA8"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C7086"))

	filterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#89B4FA")).
			Bold(true)

	detailHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#CBA6F7"))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#1E1E2E"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F38BA8")).
			Background(lipgloss.Color("#1E1E2E"))
)

// kindStyles colours event kinds in the entry lists.
var kindStyles = map[timeline.Kind]lipgloss.Style{
	timeline.Opening:     openStyle,
	timeline.Development: dimStyle,
	timeline.Closing:     closedStyle,
}

// --- View rendering ---

func (m uiModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	b.WriteString(m.renderTitleBar())
	b.WriteRune('\n')
	b.WriteString(m.renderTabBar())
	b.WriteRune('\n')
	b.WriteRune('\n')

	contentHeight := m.height - 5 // title + tabs + status + padding
	if m.showHelp {
		contentHeight -= 3
	}

	var content string
	switch m.activeView {
	case viewDiagram:
		content = m.renderDiagram()
	case viewThreads:
		content = m.renderThreads()
	case viewEntries:
		content = m.renderEntries()
	case viewThreadDetail:
		content = m.renderThreadDetail(m.detailThread)
	}

	lines := strings.Split(content, "\n")
	scrollPos := m.scrollPos
	if scrollPos >= len(lines) {
		scrollPos = max(0, len(lines)-1)
	}
	if scrollPos > 0 {
		lines = lines[scrollPos:]
	}
	if contentHeight > 0 && len(lines) > contentHeight {
		lines = lines[:contentHeight]
	}
	content = strings.Join(lines, "\n")

	content = truncateLines(content, m.width)
	b.WriteString(content)

	rendered := strings.Count(b.String(), "\n")
	for rendered < m.height-2 {
		b.WriteRune('\n')
		rendered++
	}

	if m.showHelp {
		b.WriteString(m.help.View(keys))
	} else {
		b.WriteString(m.renderStatusBar())
	}

	return b.String()
}

func (m uiModel) renderTitleBar() string {
	title := titleStyle.Render("story threads: " + m.story)
	stats := dimStyle.Render(fmt.Sprintf(
		"%d threads | %d open | %d events",
		m.snap.TotalThreads,
		m.snap.OpenThreads,
		m.snap.TotalEntries,
	))
	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(title)-lipgloss.Width(stats)-2))
	return title + gap + stats
}

func (m uiModel) renderTabBar() string {
	var tabs []string
	for i := viewID(0); i < viewCount; i++ {
		if i == m.activeView {
			tabs = append(tabs, tabActiveStyle.Render(i.String()))
		} else {
			tabs = append(tabs, tabInactiveStyle.Render(i.String()))
		}
	}
	if m.activeView == viewThreadDetail {
		tabs = append(tabs, tabActiveStyle.Render("Thread: "+m.detailThread))
	}
	return strings.Join(tabs, " ")
}

func (m uiModel) renderStatusBar() string {
	if m.lastErr != nil {
		msg := fmt.Sprintf(" refresh failed: %v ", m.lastErr)
		return errorStyle.Render(msg + strings.Repeat(" ", max(0, m.width-lipgloss.Width(msg))))
	}
	ago := time.Since(m.lastRefresh).Truncate(time.Second)
	left := fmt.Sprintf(" %s", contextHelp(m.activeView))
	right := fmt.Sprintf("refreshed %s ago ", ago)
	gap := strings.Repeat(" ", max(0, m.width-len(left)-len(right)))
	return statusBarStyle.Render(left + gap + right)
}

// --- Diagram view ---

func (m uiModel) renderDiagram() string {
	if m.snap.Empty {
		return dimStyle.Render("  " + render.EmptyMessage)
	}
	lines := make([]string, 0, len(m.snap.StyledDiagram)+3)
	for _, line := range m.snap.StyledDiagram {
		if m.panPos > 0 {
			line = ansi.TruncateLeft(line, m.panPos, "")
		}
		lines = append(lines, line)
	}
	lines = append(lines, "")
	for _, s := range m.snap.Summary {
		lines = append(lines, dimStyle.Render(s))
	}
	return strings.Join(lines, "\n")
}

// --- Threads view ---

func (m uiModel) renderThreads() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("Threads"))
	b.WriteRune('\n')
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %-20s %-8s %-8s %-8s %-6s %s",
		"ID", "Status", "Opened", "Closed", "Devs", "Opening")))
	b.WriteRune('\n')

	for i, t := range m.snap.Threads {
		style, status, closed := openStyle, "open", "-"
		if !t.Open() {
			style, status, closed = closedStyle, "closed", strconv.Itoa(t.Closed)
		}
		cursor := "  "
		if i == m.selectedThread {
			cursor = "> "
		}
		line := fmt.Sprintf("%s%-20s %-8s %-8d %-8s %-6d %s",
			cursor, truncate(t.ID, 20), status, t.Opened, closed, t.Developments, t.OpeningDescription)
		if i == m.selectedThread {
			b.WriteString(style.Bold(true).Render(line))
		} else {
			b.WriteString(style.Render(line))
		}
		b.WriteRune('\n')
	}

	if len(m.snap.Threads) == 0 {
		b.WriteString(dimStyle.Render("  (no threads yet)"))
		b.WriteRune('\n')
	}
	return b.String()
}

// --- Entries view ---

func (m uiModel) renderEntries() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Entries"))
	if m.filterThread != "" {
		b.WriteString(" ")
		b.WriteString(filterStyle.Render(fmt.Sprintf("[filter: %s]", m.filterThread)))
	}
	b.WriteRune('\n')

	width := len(strconv.Itoa(max(0, len(m.snap.Entries)-1)))
	var shown int
	for p, e := range m.snap.Entries {
		if m.filterThread != "" && e.Thread != m.filterThread {
			continue
		}
		b.WriteString(entryLine(p, width, e))
		b.WriteRune('\n')
		shown++
	}
	if shown == 0 {
		b.WriteString(dimStyle.Render("  (no entries)"))
		b.WriteRune('\n')
	}
	return b.String()
}

func entryLine(position, width int, e timeline.Entry) string {
	kind := kindStyles[e.Kind].Render(fmt.Sprintf("%-7s", e.Kind))
	return fmt.Sprintf("  %s %s %-20s %s",
		dimStyle.Render(fmt.Sprintf("%*d", width, position)), kind, truncate(e.Thread, 20), e.Description)
}

// --- Thread detail view ---

func (m uiModel) renderThreadDetail(id string) string {
	var b strings.Builder

	var thread *snapshot.ThreadSummary
	for i := range m.snap.Threads {
		if m.snap.Threads[i].ID == id {
			thread = &m.snap.Threads[i]
			break
		}
	}
	if thread == nil {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  Thread %q not found", id)))
		return b.String()
	}

	badge := openStyle.Bold(true).Render("OPEN")
	if !thread.Open() {
		badge = closedStyle.Bold(true).Render("CLOSED")
	}
	b.WriteString(detailHeaderStyle.Render("Thread: " + thread.ID))
	b.WriteString("  ")
	b.WriteString(badge)
	b.WriteRune('\n')
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %d events | %d developments | opened at %d",
		thread.Entries, thread.Developments, thread.Opened)))
	b.WriteRune('\n')
	b.WriteRune('\n')

	width := len(strconv.Itoa(max(0, len(m.snap.Entries)-1)))
	for _, p := range m.snap.Entries.Positions(id) {
		b.WriteString(entryLine(p, width, m.snap.Entries[p]))
		b.WriteRune('\n')
	}
	return b.String()
}

// --- Helpers ---

// truncateLines cuts every line of content to width cells. Zero width leaves
// content alone.
func truncateLines(content string, width int) string {
	if width <= 0 {
		return content
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if lipgloss.Width(line) > width {
			lines[i] = ansi.Truncate(line, width, "")
		}
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	if ansi.StringWidth(s) <= n {
		return s
	}
	return ansi.Truncate(s, n, "…")
}

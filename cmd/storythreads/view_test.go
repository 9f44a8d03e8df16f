package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/daviddao/storythreads/internal/render"
	"github.com/daviddao/storythreads/internal/snapshot"
	"github.com/daviddao/storythreads/internal/timeline"
)

func testSequence() timeline.Sequence {
	return timeline.Sequence{
		{Thread: "heist", Kind: timeline.Opening, Description: "the crew meets"},
		{Thread: "traitor", Kind: timeline.Opening, Description: "traitor"},
		{Thread: "heist", Kind: timeline.Development, Description: "the vault"},
		{Thread: "traitor", Kind: timeline.Closing, Description: "unmasked"},
	}
}

// staticLoader serves a fixed sequence.
type staticLoader struct {
	seq timeline.Sequence
	err error
}

func (l staticLoader) Load(string) (timeline.Sequence, error) { return l.seq, l.err }

// testModel creates a uiModel with test data (no store or watcher needed for render tests).
func testModel() uiModel {
	snap := snapshot.FromSequence("novel", testSequence(), render.Options{})
	m := newModel(staticLoader{seq: testSequence()}, "novel", snap, render.Options{})
	m.width = 100
	m.height = 30
	m.help.Width = 100
	return m
}

func update(t *testing.T, m uiModel, msg tea.Msg) uiModel {
	t.Helper()
	next, _ := m.Update(msg)
	um, ok := next.(uiModel)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return um
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestParseViewFlag(t *testing.T) {
	tests := []struct {
		input string
		want  viewID
		err   bool
	}{
		{"diagram", viewDiagram, false},
		{"Diagram", viewDiagram, false},
		{"d", viewDiagram, false},
		{"threads", viewThreads, false},
		{"t", viewThreads, false},
		{"entries", viewEntries, false},
		{"e", viewEntries, false},
		{"bogus", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseViewFlag(tt.input)
			if tt.err {
				if err == nil {
					t.Errorf("parseViewFlag(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("parseViewFlag(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("parseViewFlag(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestViewIDString(t *testing.T) {
	tests := []struct {
		v    viewID
		want string
	}{
		{viewDiagram, "Diagram"},
		{viewThreads, "Threads"},
		{viewEntries, "Entries"},
		{viewThreadDetail, "Thread"},
		{viewID(99), "?"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("viewID(%d).String() = %q, want %q", int(tt.v), got, tt.want)
		}
	}
}

func TestViewLoading(t *testing.T) {
	m := testModel()
	m.width = 0 // triggers "Loading..." state
	if got := m.View(); got != "Loading..." {
		t.Errorf("View() = %q, want Loading...", got)
	}
}

func TestViewDiagram(t *testing.T) {
	m := testModel()
	out := ansi.Strip(m.View())

	for _, want := range []string{
		"story threads: novel",
		"2 threads | 1 open | 4 events",
		"0 ├─ heist: the crew meets",
		"Number of threads: 2 + 1 (main thread)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("diagram view missing %q:\n%s", want, out)
		}
	}
}

func TestViewEmptyStory(t *testing.T) {
	m := testModel()
	m.snap = snapshot.FromSequence("novel", nil, render.Options{})
	if out := ansi.Strip(m.View()); !strings.Contains(out, render.EmptyMessage) {
		t.Errorf("empty story view missing %q:\n%s", render.EmptyMessage, out)
	}
}

func TestViewFitsWidth(t *testing.T) {
	m := testModel()
	m.width = 20
	for _, v := range []viewID{viewDiagram, viewThreads, viewEntries} {
		m.activeView = v
		lines := strings.Split(m.View(), "\n")
		// Content sits between the title, tab bar and blank line and the
		// status bar.
		for i, line := range lines[3 : len(lines)-1] {
			if w := ansi.StringWidth(line); w > 20 {
				t.Errorf("%s line %d is %d cells wide: %q", v, i, w, ansi.Strip(line))
			}
		}
	}
}

func TestViewKeysSwitchViews(t *testing.T) {
	m := testModel()

	m = update(t, m, keyMsg("t"))
	if m.activeView != viewThreads {
		t.Fatalf("after t: view = %v", m.activeView)
	}
	m = update(t, m, keyMsg("tab"))
	if m.activeView != viewEntries {
		t.Fatalf("after tab: view = %v", m.activeView)
	}
	m = update(t, m, keyMsg("tab"))
	if m.activeView != viewDiagram {
		t.Fatalf("tab should wrap to the diagram, got %v", m.activeView)
	}
}

func TestThreadsSelectAndOpen(t *testing.T) {
	m := testModel()
	m = update(t, m, keyMsg("t"))
	m = update(t, m, keyMsg("j"))
	m = update(t, m, keyMsg("j")) // clamps at the last thread
	if m.selectedThread != 1 {
		t.Fatalf("selectedThread = %d, want 1", m.selectedThread)
	}

	out := ansi.Strip(m.View())
	if !strings.Contains(out, "> traitor") || !strings.Contains(out, "closed") {
		t.Errorf("threads view does not mark the selection:\n%s", out)
	}

	m = update(t, m, keyMsg("enter"))
	if m.activeView != viewThreadDetail || m.detailThread != "traitor" {
		t.Fatalf("enter: view %v, thread %q", m.activeView, m.detailThread)
	}
	out = ansi.Strip(m.View())
	for _, want := range []string{"Thread: traitor", "CLOSED", "unmasked"} {
		if !strings.Contains(out, want) {
			t.Errorf("detail view missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "the vault") {
		t.Error("detail view shows another thread's entries")
	}

	m = update(t, m, keyMsg("esc"))
	if m.activeView != viewThreads || m.detailThread != "" {
		t.Errorf("esc: view %v, thread %q", m.activeView, m.detailThread)
	}
}

func TestEntriesFilterCycles(t *testing.T) {
	m := testModel()
	m = update(t, m, keyMsg("e"))

	var seen []string
	for i := 0; i < 3; i++ {
		m = update(t, m, keyMsg("/"))
		seen = append(seen, m.filterThread)
	}
	if strings.Join(seen, ",") != "heist,traitor," {
		t.Errorf("filter cycle = %q", seen)
	}

	m = update(t, m, keyMsg("/"))
	out := ansi.Strip(m.View())
	if !strings.Contains(out, "[filter: heist]") || strings.Contains(out, "unmasked") {
		t.Errorf("filtered entries view:\n%s", out)
	}

	// Leaving the entries view drops the filter.
	m = update(t, m, keyMsg("d"))
	if m.filterThread != "" {
		t.Errorf("filter = %q after leaving entries", m.filterThread)
	}
}

func TestFocusThread(t *testing.T) {
	m := testModel().focusThread("traitor")
	if m.activeView != viewThreadDetail || m.selectedThread != 1 {
		t.Errorf("focusThread: view %v, selected %d", m.activeView, m.selectedThread)
	}
	if m := testModel().focusThread("nobody"); m.activeView != viewDiagram {
		t.Errorf("unknown thread changed the view to %v", m.activeView)
	}
}

func TestSnapshotRefreshClampsSelection(t *testing.T) {
	m := testModel()
	m.selectedThread = 1

	smaller := snapshot.FromSequence("novel", testSequence()[:1], render.Options{})
	m = update(t, m, snapshotReadyMsg{snap: smaller})
	if m.selectedThread != 0 {
		t.Errorf("selectedThread = %d after threads shrank", m.selectedThread)
	}
	if m.snap.TotalEntries != 1 {
		t.Errorf("snapshot not swapped in")
	}
}

func TestSnapshotRefreshError(t *testing.T) {
	m := testModel()
	before := m.snap
	m = update(t, m, snapshotReadyMsg{err: errors.New("disk gone")})
	if m.snap != before {
		t.Error("failed refresh replaced the snapshot")
	}
	if out := ansi.Strip(m.View()); !strings.Contains(out, "refresh failed: disk gone") {
		t.Errorf("status bar does not report the failure:\n%s", out)
	}
}

func TestRefreshSnapshotLoads(t *testing.T) {
	m := testModel()
	msg := m.refreshSnapshot()()
	ready, ok := msg.(snapshotReadyMsg)
	if !ok {
		t.Fatalf("refreshSnapshot produced %T", msg)
	}
	if ready.err != nil || ready.snap.TotalEntries != 4 {
		t.Errorf("refresh = %+v", ready)
	}
	if time.Since(ready.snap.BuiltAt) > time.Minute {
		t.Error("BuiltAt is stale")
	}
}

func TestTickReloads(t *testing.T) {
	m := testModel()
	if _, cmd := m.Update(tickMsg{}); cmd == nil {
		t.Fatal("tick should schedule a reload and the next tick")
	}
}

func TestDiagramPan(t *testing.T) {
	m := testModel()
	m = update(t, m, keyMsg("l"))
	if m.panPos != 3 {
		t.Fatalf("panPos = %d, want 3", m.panPos)
	}
	out := ansi.Strip(m.renderDiagram())
	if strings.Contains(out, "0 ├─ heist") {
		t.Errorf("panned diagram still shows the position column:\n%s", out)
	}
	m = update(t, m, keyMsg("h"))
	m = update(t, m, keyMsg("h"))
	if m.panPos != 0 {
		t.Errorf("panPos = %d, want 0", m.panPos)
	}
}

func TestTruncateLines(t *testing.T) {
	got := truncateLines("short\n"+strings.Repeat("x", 30), 10)
	lines := strings.Split(got, "\n")
	if lines[0] != "short" || lines[1] != strings.Repeat("x", 10) {
		t.Errorf("truncateLines = %q", lines)
	}
	if truncateLines("abc", 0) != "abc" {
		t.Error("zero width should leave content alone")
	}
}

func TestHelpToggle(t *testing.T) {
	m := testModel()
	m = update(t, m, keyMsg("?"))
	if !m.showHelp {
		t.Fatal("? should show help")
	}
	if out := m.View(); !strings.Contains(out, "quit") {
		t.Errorf("help view missing bindings:\n%s", out)
	}
}

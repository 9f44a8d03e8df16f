// Package render draws a story's event sequence as a column diagram.
//
// Every thread gets a column the first time it appears; the story itself is an
// implicit main thread at the left edge. A closed thread keeps its column as a
// tombstone so later threads never take over its slot.
//
//	  novel
//	  │
//	0 ├─ heist
//	1 │  ├─ traitor
//	2 │  │x │
//	3 │  ├──┘
//	4 ├──┘caught
//	  ┊
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/daviddao/storythreads/internal/timeline"
)

// Glyphs are three cells wide.
const (
	GlyphOpen            = "│  "
	GlyphOpening         = "├─ "
	GlyphClosing         = "┘  "
	GlyphClosed          = "   "
	GlyphClosingNeighbor = "───"
	GlyphOpeningNeighbor = "── "
	GlyphMergeNeighbor   = "├──"
	GlyphNotClosed       = "┊  "
)

// EmptyMessage is the whole output for a story without entries.
const EmptyMessage = "There is no story thread to show yet."

// Options tune the diagram.
type Options struct {
	// ShowConnections draws every crossing connection back to the main
	// thread instead of only the one next to the event.
	ShowConnections bool
	// Styled adds ANSI styling.
	Styled bool
}

var (
	openNameStyle = lipgloss.NewStyle().Bold(true)
	storyStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89B4FA"))
)

// Summary holds the counts printed under the diagram. Both exclude the main
// thread.
type Summary struct {
	Threads int
	Open    int
}

// Diagram is a rendered story.
type Diagram struct {
	Lines   []string
	Summary Summary
	Empty   bool
}

// column is either Active(thread) or Tombstoned.
type column struct {
	thread     string
	tombstoned bool
}

func activeColumn(cols []column, thread string) int {
	for i, c := range cols {
		if !c.tombstoned && c.thread == thread {
			return i
		}
	}
	return -1
}

// Render lays out seq. The returned lines exclude the summary counts.
func Render(story string, seq timeline.Sequence, opts Options) Diagram {
	if len(seq) == 0 {
		return Diagram{Empty: true}
	}

	width := len(strconv.Itoa(len(seq) - 1))
	indent := strings.Repeat(" ", width) + " "

	title := story
	if opts.Styled {
		title = storyStyle.Render(story)
	}
	lines := []string{indent + title, indent + strings.TrimRight(GlyphOpen, " ")}

	var cols []column
	for t, e := range seq {
		if activeColumn(cols, e.Thread) < 0 {
			cols = append(cols, column{thread: e.Thread})
		}

		var line string
		opening, closing := false, false
		for i := len(cols) - 1; i >= 0; i-- {
			c := cols[i]
			switch {
			case !c.tombstoned && c.thread == e.Thread:
				switch e.Kind {
				case timeline.Opening:
					line = openingLabel(seq, e, opts) + line
					opening = true
				case timeline.Closing:
					line = overlay(GlyphClosing, e.Description, line)
					closing = true
				default:
					line = overlay(GlyphOpen, e.Description, line)
				}
			case c.tombstoned:
				switch {
				case opening && i+1 < len(cols) && !cols[i+1].tombstoned && cols[i+1].thread == e.Thread:
					line = GlyphOpeningNeighbor + line
				case opening || closing:
					line = GlyphClosingNeighbor + line
				default:
					line = GlyphClosed + line
				}
			default:
				line = branch(cols, i, &opening, &closing, opts.ShowConnections) + line
			}
		}
		// The main thread reuses the branch rule with the first column as
		// its right neighbour.
		line = branch(cols, -1, &opening, &closing, opts.ShowConnections) + line

		lines = append(lines, fmt.Sprintf("%*d ", width, t)+line)

		if e.Kind == timeline.Closing {
			if i := activeColumn(cols, e.Thread); i >= 0 {
				cols[i] = column{thread: e.Thread, tombstoned: true}
			}
		}
	}

	trailing := indent + GlyphNotClosed
	open := 0
	for _, c := range cols {
		if c.tombstoned {
			trailing += GlyphClosed
			continue
		}
		trailing += GlyphNotClosed
		open++
	}
	lines = append(lines, trailing)

	return Diagram{
		Lines:   lines,
		Summary: Summary{Threads: len(seq.Threads()), Open: open},
	}
}

// branch renders a still open column at index i (-1 for the main thread).
func branch(cols []column, i int, opening, closing *bool, showConnections bool) string {
	switch {
	case *opening:
		glyph := GlyphOpening
		if i+1 < len(cols) && cols[i+1].tombstoned {
			glyph = GlyphMergeNeighbor
		}
		if !showConnections {
			*opening = false
		}
		return glyph
	case *closing:
		if !showConnections {
			*closing = false
		}
		return GlyphMergeNeighbor
	}
	return GlyphOpen
}

// openingLabel is the description of an opening, prefixed with the thread id
// when the two differ. The id is bold while the thread is open.
func openingLabel(seq timeline.Sequence, e timeline.Entry, opts Options) string {
	if e.Description == e.Thread || e.Description == "" {
		return e.Thread
	}
	name := e.Thread
	if opts.Styled && !timeline.IsClosed(seq, e.Thread) {
		name = openNameStyle.Render(name)
	}
	return name + ": " + e.Description
}

// overlay writes desc over glyph. The first glyph cell stays; when desc runs
// past the glyph it covers the cells already rendered to its right.
func overlay(glyph, desc, rendered string) string {
	first := firstCell(glyph)
	cells := ansi.StringWidth(desc) + 1
	switch {
	case cells <= ansi.StringWidth(glyph):
		return first + desc + ansi.TruncateLeft(glyph, cells, "") + rendered
	case cells >= ansi.StringWidth(rendered):
		return first + desc
	}
	return first + desc + ansi.TruncateLeft(rendered, cells, "")
}

func firstCell(s string) string {
	_, size := utf8.DecodeRuneInString(s)
	return s[:size]
}

// Lines returns the counts as printed under the diagram.
func (s Summary) Lines() []string {
	return []string{
		fmt.Sprintf("Number of threads: %d + 1 (main thread)", s.Threads),
		fmt.Sprintf("Number of open threads: %d + 1 (main thread)", s.Open),
	}
}

// Write renders seq to w, followed by the summary counts. An empty sequence
// writes only EmptyMessage.
func Write(w io.Writer, story string, seq timeline.Sequence, opts Options) error {
	d := Render(story, seq, opts)
	if d.Empty {
		_, err := fmt.Fprintln(w, EmptyMessage)
		return err
	}
	for _, line := range append(d.Lines, d.Summary.Lines()...) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

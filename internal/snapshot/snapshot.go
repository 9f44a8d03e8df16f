// Package snapshot builds immutable views of a story for display.
//
// A DataSnapshot captures the sequence, per-thread summaries, and the
// rendered diagram at a point in time. Snapshots are rebuilt whenever the
// story file changes and swapped atomically into the viewer model.
package snapshot

import (
	"time"

	"github.com/daviddao/storythreads/internal/render"
	"github.com/daviddao/storythreads/internal/timeline"
)

// Loader reads a story's sequence.
type Loader interface {
	Load(story string) (timeline.Sequence, error)
}

// ThreadSummary describes one thread of the story.
type ThreadSummary struct {
	ID                 string
	OpeningDescription string
	Opened             int // position of the opening
	Closed             int // position of the closing, -1 while open
	Developments       int
	Entries            int
}

// Open reports whether the thread has no closing yet.
func (t ThreadSummary) Open() bool { return t.Closed < 0 }

// DataSnapshot is an immutable, self-contained view of one story.
type DataSnapshot struct {
	Story   string
	Entries timeline.Sequence
	Threads []ThreadSummary

	// Rendered diagram without and with styling, and the summary lines.
	Diagram       []string
	StyledDiagram []string
	Summary       []string
	Empty         bool

	// Counts, excluding the main thread.
	TotalThreads int
	OpenThreads  int
	TotalEntries int

	// Timestamp of snapshot creation.
	BuiltAt time.Time
}

// Build loads story and returns a complete snapshot.
func Build(l Loader, story string, opts render.Options) (*DataSnapshot, error) {
	seq, err := l.Load(story)
	if err != nil {
		return nil, err
	}
	return FromSequence(story, seq, opts), nil
}

// FromSequence builds a snapshot of seq without touching a store.
func FromSequence(story string, seq timeline.Sequence, opts render.Options) *DataSnapshot {
	seq = seq.Clone()

	plainOpts, styledOpts := opts, opts
	plainOpts.Styled = false
	styledOpts.Styled = true
	plain := render.Render(story, seq, plainOpts)
	styled := render.Render(story, seq, styledOpts)

	threads := summarize(seq)
	return &DataSnapshot{
		Story:         story,
		Entries:       seq,
		Threads:       threads,
		Diagram:       plain.Lines,
		StyledDiagram: styled.Lines,
		Summary:       plain.Summary.Lines(),
		Empty:         plain.Empty,
		TotalThreads:  plain.Summary.Threads,
		OpenThreads:   plain.Summary.Open,
		TotalEntries:  len(seq),
		BuiltAt:       time.Now(),
	}
}

// summarize returns one summary per thread in order of first appearance.
func summarize(seq timeline.Sequence) []ThreadSummary {
	ids := seq.Threads()
	out := make([]ThreadSummary, 0, len(ids))
	for _, id := range ids {
		ts := ThreadSummary{ID: id, Opened: -1, Closed: -1}
		for _, p := range seq.Positions(id) {
			e := seq[p]
			ts.Entries++
			switch e.Kind {
			case timeline.Opening:
				ts.Opened = p
				ts.OpeningDescription = e.Description
			case timeline.Development:
				ts.Developments++
			case timeline.Closing:
				ts.Closed = p
			}
		}
		out = append(out, ts)
	}
	return out
}

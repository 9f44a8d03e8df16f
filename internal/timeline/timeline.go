// Package timeline holds the ordered event sequence of a story.
//
// A Sequence is dense: the index of an entry is its position on the story's
// timeline. Inserting at a position shifts every later entry one slot back,
// removing shifts them one slot forward. A thread is never stored on its own;
// it is the subsequence of entries sharing a thread id.
package timeline

import "fmt"

// Kind is the event kind of an entry. The string values are the ones written
// to disk.
type Kind string

const (
	Opening     Kind = "open"
	Development Kind = "develop"
	Closing     Kind = "close"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case Opening, Development, Closing:
		return true
	}
	return false
}

// Entry is one event on the timeline.
type Entry struct {
	Thread      string
	Kind        Kind
	Description string
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %s %q", e.Thread, e.Kind, e.Description)
}

// Sequence is the ordered list of entries of one story.
type Sequence []Entry

// Clone returns an independent copy of s.
func (s Sequence) Clone() Sequence {
	if s == nil {
		return nil
	}
	out := make(Sequence, len(s))
	copy(out, s)
	return out
}

// Has reports whether any entry belongs to thread.
func (s Sequence) Has(thread string) bool {
	return s.FirstIndex(thread) >= 0
}

// FirstIndex returns the position of the first entry of thread, or -1.
func (s Sequence) FirstIndex(thread string) int {
	for i, e := range s {
		if e.Thread == thread {
			return i
		}
	}
	return -1
}

// LastIndex returns the position of the last entry of thread, or -1.
func (s Sequence) LastIndex(thread string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].Thread == thread {
			return i
		}
	}
	return -1
}

// Positions returns the positions of all entries of thread in ascending order.
func (s Sequence) Positions(thread string) []int {
	var out []int
	for i, e := range s {
		if e.Thread == thread {
			out = append(out, i)
		}
	}
	return out
}

// Threads returns the distinct thread ids in order of first appearance.
func (s Sequence) Threads() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range s {
		if !seen[e.Thread] {
			seen[e.Thread] = true
			out = append(out, e.Thread)
		}
	}
	return out
}

// IsClosed reports whether thread exists and its last entry is a Closing.
// A thread that does not exist is not closed.
func IsClosed(s Sequence, thread string) bool {
	i := s.LastIndex(thread)
	return i >= 0 && s[i].Kind == Closing
}

// DescriptionsAreNew reports whether none of candidates already appears as
// the description of an entry of thread.
func DescriptionsAreNew(s Sequence, thread string, candidates []string) bool {
	existing := make(map[string]bool)
	for _, e := range s {
		if e.Thread == thread {
			existing[e.Description] = true
		}
	}
	for _, c := range candidates {
		if existing[c] {
			return false
		}
	}
	return true
}

// InsertWithShift inserts e at position and returns the grown sequence.
// Entries previously at or after position move one slot later. A position
// past the end appends, so callers never reserve empty slots.
//
// To place a batch at positions relative to the unshifted sequence, insert in
// ascending order of those positions and add to each the number of entries
// already inserted by the batch.
func InsertWithShift(s Sequence, position int, e Entry) Sequence {
	if position < 0 {
		position = 0
	}
	if position >= len(s) {
		return append(s, e)
	}
	s = append(s, Entry{})
	copy(s[position+1:], s[position:])
	s[position] = e
	return s
}

// RemoveAt removes the entry at position; later entries move one slot earlier.
// Out of range positions leave s unchanged.
func RemoveAt(s Sequence, position int) Sequence {
	if position < 0 || position >= len(s) {
		return s
	}
	copy(s[position:], s[position+1:])
	s[len(s)-1] = Entry{}
	return s[:len(s)-1]
}

// RemoveThread removes every entry of thread and returns the positions they
// occupied before removal.
func RemoveThread(s Sequence, thread string) (Sequence, []int) {
	removed := s.Positions(thread)
	out := s[:0]
	for _, e := range s {
		if e.Thread != thread {
			out = append(out, e)
		}
	}
	for i := len(out); i < len(s); i++ {
		s[i] = Entry{}
	}
	return out, removed
}

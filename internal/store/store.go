// Package store persists story sequences and their one-step undo snapshot.
//
// Two backends share the same contract: a directory of JSON files, one per
// story, in the position-keyed format hand-edited stories use, and a single
// SQLite database holding every story in the directory.
package store

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/daviddao/storythreads/internal/timeline"
)

// Backend names a storage implementation.
type Backend string

const (
	JSON   Backend = "json"
	SQLite Backend = "sqlite"
)

// Valid reports whether b names a known backend.
func (b Backend) Valid() bool {
	return b == JSON || b == SQLite
}

// Store loads and saves story sequences. Load of an unknown story returns an
// empty sequence. The undo slot holds at most one sequence per story and
// TakeUndo clears it.
type Store interface {
	Load(story string) (timeline.Sequence, error)
	Save(story string, seq timeline.Sequence) error
	SaveUndo(story string, seq timeline.Sequence) error
	TakeUndo(story string) (timeline.Sequence, bool, error)

	// Stories lists the stories that have a saved sequence.
	Stories() ([]string, error)
	// Path returns the file whose changes signal a new sequence for story.
	Path(story string) string
	Close() error
}

// Open returns the backend b rooted at dir, creating dir if needed.
func Open(b Backend, dir string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	switch b {
	case JSON, "":
		return OpenJSON(dir, logger)
	case SQLite:
		return OpenSQLite(dir, logger)
	}
	return nil, fmt.Errorf("unknown backend %q (want %s or %s)", b, JSON, SQLite)
}

package store

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/daviddao/storythreads/internal/timeline"
)

// DBName is the database file the SQLite backend creates in its directory.
const DBName = "storythreads.db"

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	story       TEXT    NOT NULL,
	position    INTEGER NOT NULL,
	thread      TEXT    NOT NULL,
	kind        TEXT    NOT NULL,
	description TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (story, position)
);
CREATE TABLE IF NOT EXISTS undo_slots (
	story TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS undo_entries (
	story       TEXT    NOT NULL REFERENCES undo_slots(story) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	thread      TEXT    NOT NULL,
	kind        TEXT    NOT NULL,
	description TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (story, position)
);
`

// SQLiteStore keeps every story of a directory in one database. The undo
// slot is a row in undo_slots so an empty snapshot is distinguishable from no
// snapshot.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) <dir>/storythreads.db.
func OpenSQLite(dir string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, DBName)
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema %s: %w", path, err)
	}
	logger.Debug("sqlite store opened", "path", path)
	return &SQLiteStore{db: db, path: path, logger: logger}, nil
}

// Path returns the database file. Every story shares it.
func (s *SQLiteStore) Path(string) string { return s.path }

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Load returns the entries of story in position order.
func (s *SQLiteStore) Load(story string) (timeline.Sequence, error) {
	return s.query(s.db, `SELECT thread, kind, description FROM entries WHERE story = ? ORDER BY position`, story)
}

// Save replaces all entries of story in one transaction.
func (s *SQLiteStore) Save(story string, seq timeline.Sequence) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM entries WHERE story = ?`, story); err != nil {
		return fmt.Errorf("clear %s: %w", story, err)
	}
	if err := insertEntries(tx, "entries", story, seq); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveUndo overwrites the undo snapshot for story.
func (s *SQLiteStore) SaveUndo(story string, seq timeline.Sequence) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM undo_slots WHERE story = ?`, story); err != nil {
		return fmt.Errorf("clear undo for %s: %w", story, err)
	}
	if _, err := tx.Exec(`INSERT INTO undo_slots (story) VALUES (?)`, story); err != nil {
		return fmt.Errorf("reserve undo for %s: %w", story, err)
	}
	if err := insertEntries(tx, "undo_entries", story, seq); err != nil {
		return err
	}
	return tx.Commit()
}

// TakeUndo reads and clears the undo snapshot for story.
func (s *SQLiteStore) TakeUndo(story string) (timeline.Sequence, bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM undo_slots WHERE story = ?`, story).Scan(&n); err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	seq, err := s.query(tx, `SELECT thread, kind, description FROM undo_entries WHERE story = ? ORDER BY position`, story)
	if err != nil {
		return nil, false, err
	}
	if _, err := tx.Exec(`DELETE FROM undo_slots WHERE story = ?`, story); err != nil {
		return nil, false, fmt.Errorf("clear undo for %s: %w", story, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return seq, true, nil
}

// Stories lists the stories with at least one entry.
func (s *SQLiteStore) Stories() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT story FROM entries ORDER BY story`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stories []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		stories = append(stories, name)
	}
	return stories, rows.Err()
}

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) query(q queryer, query, story string) (timeline.Sequence, error) {
	rows, err := q.Query(query, story)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", story, err)
	}
	defer rows.Close()

	seq := timeline.Sequence{}
	for rows.Next() {
		var e timeline.Entry
		var kind string
		if err := rows.Scan(&e.Thread, &kind, &e.Description); err != nil {
			return nil, err
		}
		e.Kind = timeline.Kind(kind)
		if !e.Kind.Valid() {
			s.logger.Warn("skipping entry with unknown kind", "story", story, "kind", kind)
			continue
		}
		seq = append(seq, e)
	}
	return seq, rows.Err()
}

func insertEntries(tx *sql.Tx, table, story string, seq timeline.Sequence) error {
	stmt, err := tx.Prepare(`INSERT INTO ` + table + ` (story, position, thread, kind, description) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, e := range seq {
		if _, err := stmt.Exec(story, i, e.Thread, string(e.Kind), e.Description); err != nil {
			return fmt.Errorf("insert %s[%d]: %w", story, i, err)
		}
	}
	return nil
}

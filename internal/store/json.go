package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/daviddao/storythreads/internal/timeline"
)

const (
	jsonExt = ".json"
	undoDir = ".undo"
)

// JSONStore keeps each story in <dir>/<story>.json and its undo snapshot in
// <dir>/.undo/<story>.json.
type JSONStore struct {
	dir    string
	logger *slog.Logger
}

// record is the per-position payload of a story file:
//
//	{"0": {"heist": {"event": "open", "description": "the crew meets"}}}
type record struct {
	Event       string `json:"event"`
	Description string `json:"description"`
}

// OpenJSON returns a JSON store rooted at dir.
func OpenJSON(dir string, logger *slog.Logger) (*JSONStore, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	return &JSONStore{dir: dir, logger: logger}, nil
}

// Path returns the story file.
func (s *JSONStore) Path(story string) string {
	return filepath.Join(s.dir, story+jsonExt)
}

func (s *JSONStore) undoPath(story string) string {
	return filepath.Join(s.dir, undoDir, story+jsonExt)
}

// Load reads the story file. A missing file is an empty story; an unreadable
// one is logged and also treated as empty.
func (s *JSONStore) Load(story string) (timeline.Sequence, error) {
	if err := checkStoryName(story); err != nil {
		return nil, err
	}
	path := s.Path(story)
	seq, err := readSequence(path)
	if errors.Is(err, fs.ErrNotExist) {
		return timeline.Sequence{}, nil
	}
	if err != nil {
		s.logger.Warn("ignoring unreadable story file", "path", path, "err", err)
		return timeline.Sequence{}, nil
	}
	return seq, nil
}

// Save replaces the story file.
func (s *JSONStore) Save(story string, seq timeline.Sequence) error {
	if err := checkStoryName(story); err != nil {
		return err
	}
	return writeSequence(s.Path(story), seq)
}

// SaveUndo overwrites the undo snapshot for story.
func (s *JSONStore) SaveUndo(story string, seq timeline.Sequence) error {
	if err := checkStoryName(story); err != nil {
		return err
	}
	return writeSequence(s.undoPath(story), seq)
}

// TakeUndo returns the undo snapshot for story and deletes it.
func (s *JSONStore) TakeUndo(story string) (timeline.Sequence, bool, error) {
	if err := checkStoryName(story); err != nil {
		return nil, false, err
	}
	path := s.undoPath(story)
	seq, err := readSequence(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := os.Remove(path); err != nil {
		return nil, false, fmt.Errorf("clear undo for %s: %w", story, err)
	}
	return seq, true, nil
}

// Stories lists the story files in the store directory.
func (s *JSONStore) Stories() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var stories []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, jsonExt) || strings.HasPrefix(name, ".") {
			continue
		}
		stories = append(stories, strings.TrimSuffix(name, jsonExt))
	}
	sort.Strings(stories)
	return stories, nil
}

// Close is a no-op.
func (s *JSONStore) Close() error { return nil }

func readSequence(path string) (timeline.Sequence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	seq, err := decodeSequence(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return seq, nil
}

// writeSequence writes through a temp file in the same directory so readers
// never see a partial file.
func writeSequence(path string, seq timeline.Sequence) error {
	data, err := encodeSequence(seq)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// decodeSequence parses a position-keyed story file. Comments and trailing
// commas are accepted.
func decodeSequence(data []byte) (timeline.Sequence, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return timeline.Sequence{}, nil
	}
	var raw map[string]map[string]record
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, fmt.Errorf("parse story: %w", err)
	}

	byPosition := make(map[int]timeline.Entry, len(raw))
	positions := make([]int, 0, len(raw))
	for key, events := range raw {
		p, err := strconv.Atoi(key)
		if err != nil || p < 0 {
			return nil, fmt.Errorf("key %q is not a position", key)
		}
		if len(events) != 1 {
			return nil, fmt.Errorf("position %d holds %d threads, want 1", p, len(events))
		}
		for thread, r := range events {
			kind := timeline.Kind(r.Event)
			if !kind.Valid() {
				return nil, fmt.Errorf("position %d: unknown event %q", p, r.Event)
			}
			byPosition[p] = timeline.Entry{Thread: thread, Kind: kind, Description: r.Description}
		}
		positions = append(positions, p)
	}
	sort.Ints(positions)

	seq := make(timeline.Sequence, 0, len(positions))
	for _, p := range positions {
		seq = append(seq, byPosition[p])
	}
	return seq, nil
}

// encodeSequence writes keys in position order, one entry per line.
func encodeSequence(seq timeline.Sequence) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range seq {
		if i > 0 {
			buf.WriteByte(',')
		}
		value, err := json.Marshal(map[string]record{
			e.Thread: {Event: string(e.Kind), Description: e.Description},
		})
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "\n  \"%d\": %s", i, value)
	}
	if len(seq) > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func checkStoryName(story string) error {
	if story == "" || strings.HasPrefix(story, ".") || strings.ContainsAny(story, `/\`) {
		return fmt.Errorf("invalid story name %q", story)
	}
	return nil
}

package engine

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/daviddao/storythreads/internal/timeline"
)

// Store is what the engine needs from persistence. The undo slot holds at most
// one snapshot per story.
type Store interface {
	Load(story string) (timeline.Sequence, error)
	Save(story string, seq timeline.Sequence) error
	SaveUndo(story string, seq timeline.Sequence) error
	TakeUndo(story string) (timeline.Sequence, bool, error)
}

// Engine runs mutations of one story against a Store. It assumes a single
// writer per story.
type Engine struct {
	store  Store
	story  string
	logger *slog.Logger
}

// New returns an engine for story. A nil logger discards log output.
func New(s Store, story string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{store: s, story: story, logger: logger.With("story", story)}
}

// Story returns the story name the engine operates on.
func (e *Engine) Story() string { return e.story }

// Sequence loads the current sequence.
func (e *Engine) Sequence() (timeline.Sequence, error) {
	return e.store.Load(e.story)
}

// Add applies req and persists the result.
func (e *Engine) Add(req AddRequest) (timeline.Sequence, error) {
	before, err := e.store.Load(e.story)
	if err != nil {
		return nil, err
	}
	after, err := ApplyAdd(before, req)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("add", "thread", req.Thread, "positions", req.Positions, "close", req.Close)
	return after, e.commit(before, after)
}

// Remove applies req and persists the result. Skipped development selectors
// come back as warnings.
func (e *Engine) Remove(req RemoveRequest) (timeline.Sequence, []string, error) {
	before, err := e.store.Load(e.story)
	if err != nil {
		return nil, nil, err
	}
	after, warnings, err := ApplyRemove(before, req)
	if err != nil {
		return nil, nil, err
	}
	e.logger.Debug("remove", "thread", req.Thread, "ending", req.Ending, "removed", len(before)-len(after))
	return after, warnings, e.commit(before, after)
}

// Change applies req and persists the result.
func (e *Engine) Change(req ChangeRequest) (timeline.Sequence, error) {
	before, err := e.store.Load(e.story)
	if err != nil {
		return nil, err
	}
	after, err := ApplyChange(before, req)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("change", "thread", req.Thread)
	return after, e.commit(before, after)
}

// Undo restores the snapshot taken before the last mutation and clears it.
func (e *Engine) Undo() (timeline.Sequence, error) {
	seq, ok, err := e.store.TakeUndo(e.story)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errorf(InvalidState, "there is nothing to undo for %q", e.story)
	}
	if err := e.store.Save(e.story, seq); err != nil {
		return nil, err
	}
	e.logger.Debug("undo", "entries", len(seq))
	return seq, nil
}

func (e *Engine) commit(before, after timeline.Sequence) error {
	if err := e.store.SaveUndo(e.story, before); err != nil {
		return fmt.Errorf("cache %s for undo: %w", e.story, err)
	}
	if err := e.store.Save(e.story, after); err != nil {
		return fmt.Errorf("save %s: %w", e.story, err)
	}
	return nil
}

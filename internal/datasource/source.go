// Package datasource connects a command to the story it works on.
package datasource

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/daviddao/storythreads/internal/config"
	"github.com/daviddao/storythreads/internal/engine"
	"github.com/daviddao/storythreads/internal/store"
)

// Source is an opened store bound to one story.
type Source struct {
	Store  store.Store
	Story  string
	Config *config.Config
}

// Discover loads the settings, taking the story from the config file or the
// environment when story is empty.
func Discover(story string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if story != "" {
		cfg.Story = story
	}
	return cfg, nil
}

// Open opens the store cfg describes for cfg.Story.
func Open(cfg *config.Config, logger *slog.Logger) (*Source, error) {
	if cfg.Story == "" {
		return nil, errors.New("no story given (name one, or set story in " + config.DirName + "/" + config.FileName + ")")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s, err := store.Open(cfg.Backend, cfg.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}
	return &Source{Store: s, Story: cfg.Story, Config: cfg}, nil
}

// Path is the file that changes whenever the story is saved.
func (s *Source) Path() string {
	return s.Store.Path(s.Story)
}

// Engine returns a mutation engine for the story.
func (s *Source) Engine(logger *slog.Logger) *engine.Engine {
	return engine.New(s.Store, s.Story, logger)
}

// Close closes the store.
func (s *Source) Close() error {
	return s.Store.Close()
}

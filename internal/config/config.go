// Package config loads the storythreads settings file.
//
// Settings come from, in increasing priority: built-in defaults, the YAML file
// found by Discover, STORYTHREADS_* environment variables, and whatever the
// command line sets afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/daviddao/storythreads/internal/store"
)

const (
	// DirName is the per-project directory holding the config file and,
	// by default, the stories.
	DirName  = ".storythreads"
	FileName = "config.yaml"

	EnvConfig  = "STORYTHREADS_CONFIG"
	EnvStory   = "STORYTHREADS_STORY"
	EnvPath    = "STORYTHREADS_PATH"
	EnvBackend = "STORYTHREADS_BACKEND"
)

// ErrNoConfig is returned by Discover when no config file exists.
var ErrNoConfig = errors.New("no storythreads config found")

// Config holds the settings a command runs with.
type Config struct {
	// Story is used when the command line names none.
	Story string `yaml:"story"`
	// Path is the storage directory. A relative path in a file is resolved
	// against the file's directory.
	Path            string        `yaml:"path"`
	Backend         store.Backend `yaml:"backend"`
	ShowConnections bool          `yaml:"show_connections"`

	// File is the config file the settings were read from, empty for
	// defaults.
	File string `yaml:"-"`
}

// Default returns the settings used without a config file.
func Default() *Config {
	return &Config{
		Path:    DirName,
		Backend: store.JSON,
	}
}

// Discover finds the config file.
// Priority: STORYTHREADS_CONFIG env var > .storythreads/config.yaml in CWD > walk up parents.
func Discover() (string, error) {
	if env := os.Getenv(EnvConfig); env != "" {
		if _, err := os.Stat(env); err == nil {
			return env, nil
		}
		return "", fmt.Errorf("%s=%q: %w", EnvConfig, env, os.ErrNotExist)
	}

	rel := filepath.Join(DirName, FileName)
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, rel)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("%w (looked for %s)", ErrNoConfig, rel)
}

// Load discovers and reads the config file, then applies environment
// overrides. Without a config file the defaults are used.
func Load() (*Config, error) {
	path, err := Discover()
	switch {
	case errors.Is(err, ErrNoConfig):
		cfg := Default()
		cfg.applyEnv()
		return cfg, cfg.Validate()
	case err != nil:
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads the config at path and applies environment overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path for %s: %w", path, err)
	}

	cfg := &Config{Backend: store.JSON}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.File = abs

	base := filepath.Dir(abs)
	switch {
	case cfg.Path == "":
		cfg.Path = base
	case !filepath.IsAbs(cfg.Path):
		cfg.Path = filepath.Join(base, cfg.Path)
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvStory); v != "" {
		c.Story = v
	}
	if v := os.Getenv(EnvPath); v != "" {
		c.Path = v
	}
	if v := os.Getenv(EnvBackend); v != "" {
		c.Backend = store.Backend(v)
	}
}

// Validate checks the settings that do not depend on the command.
func (c *Config) Validate() error {
	if !c.Backend.Valid() {
		return fmt.Errorf("backend %q: want %s or %s", c.Backend, store.JSON, store.SQLite)
	}
	if c.Path == "" {
		return errors.New("storage path is empty")
	}
	return nil
}

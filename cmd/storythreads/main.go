// storythreads keeps track of the threads of a story and draws them as columns.
//
// A story is an ordered list of events. Each event opens, develops or closes
// a thread; the diagram shows every thread as a column next to the main
// story line.
//
// Usage:
//
//	storythreads novel add heist "the crew meets" "the vault" -i 0,4
//	storythreads novel add heist caught -i 9 -c
//	storythreads novel rm heist -d "the vault"
//	storythreads novel change heist -e 7
//	storythreads novel undo
//	storythreads novel show --watch
//	storythreads novel view           # interactive viewer
//	storythreads stories              # list stories in the storage directory
//	storythreads --version
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/daviddao/storythreads/internal/config"
	"github.com/daviddao/storythreads/internal/datasource"
	"github.com/daviddao/storythreads/internal/render"
	"github.com/daviddao/storythreads/internal/store"
)

// Version is set via ldflags at build time (e.g. -X main.Version=v0.1.0).
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "storythreads: %v\n", err)
		os.Exit(1)
	}
}

// command runs one subcommand with the arguments after its name.
type command func(a *app, args []string) error

var commands = map[string]command{
	"add":     (*app).runAdd,
	"remove":  (*app).runRemove,
	"rm":      (*app).runRemove,
	"change":  (*app).runChange,
	"show":    (*app).runShow,
	"undo":    (*app).runUndo,
	"view":    (*app).runView,
	"stories": (*app).runStories,
}

// globalFlags are accepted before the story name.
type globalFlags struct {
	path            string
	backend         string
	showConnections bool
	verbose         bool
	version         bool
	help            bool
}

// app carries what every subcommand needs.
type app struct {
	ctx    context.Context
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
	flags  globalFlags
	story  string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var g globalFlags
	flagSet := pflag.NewFlagSet("storythreads", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVarP(&g.path, "path", "p", "", "storage directory (default: from config, else .storythreads)")
	flagSet.StringVar(&g.backend, "backend", "", "storage backend: json or sqlite")
	flagSet.BoolVarP(&g.showConnections, "show-connections", "c", false, "show all connections to the main story thread")
	flagSet.BoolVarP(&g.verbose, "verbose", "v", false, "log debug output to stderr")
	flagSet.BoolVar(&g.version, "version", false, "print version and exit")
	flagSet.BoolVarP(&g.help, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stderr, flagSet)
			return nil
		}
		return err
	}
	if g.version {
		fmt.Fprintf(stdout, "storythreads %s\n", Version)
		return nil
	}
	if g.help {
		printHelp(stderr, flagSet)
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(stderr, flagSet)
		return errors.New("missing story or command")
	}

	a := &app{
		ctx:    ctx,
		stdout: stdout,
		stderr: stderr,
		logger: newLogger(stderr, g.verbose),
		flags:  g,
	}

	// The first word is the story unless it names a command; a story
	// without a command is shown.
	if _, ok := commands[rest[0]]; !ok {
		a.story = rest[0]
		rest = rest[1:]
	}
	name := "show"
	if len(rest) > 0 {
		name, rest = rest[0], rest[1:]
	}
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}

	err := cmd(a, rest)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	return err
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// settings resolves the config and applies the global flags on top.
func (a *app) settings() (*config.Config, error) {
	cfg, err := datasource.Discover(a.story)
	if err != nil {
		return nil, err
	}
	if a.flags.path != "" {
		cfg.Path = a.flags.path
	}
	if a.flags.backend != "" {
		cfg.Backend = store.Backend(a.flags.backend)
	}
	if a.flags.showConnections {
		cfg.ShowConnections = true
	}
	a.logger.Debug("settings", "config", cfg.File, "story", cfg.Story, "path", cfg.Path, "backend", cfg.Backend)
	return cfg, cfg.Validate()
}

// open resolves the settings and opens the story's store.
func (a *app) open() (*datasource.Source, error) {
	cfg, err := a.settings()
	if err != nil {
		return nil, err
	}
	return datasource.Open(cfg, a.logger)
}

func (a *app) renderOptions(src *datasource.Source) render.Options {
	return render.Options{ShowConnections: src.Config.ShowConnections, Styled: true}
}

// subcommandFlags returns a flag set whose usage goes to stderr on --help.
func (a *app) subcommandFlags(name, usage string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "Usage:\n  storythreads [STORY] %s\n\nFlags:\n", usage)
		fs.SetOutput(a.stderr)
		fs.PrintDefaults()
		fs.SetOutput(io.Discard)
	}
	return fs
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `storythreads keeps track of the threads of a story.

Usage:
  storythreads [flags] [STORY] COMMAND [command flags]

Commands:
  add NAME [DESCRIPTION...] -i POS[,POS...] [-c]
                        open a thread or add developments and a closing
  remove|rm NAME [-d DEV]... [-e]
                        remove a thread, some developments, or its ending
  change NAME [-o TOKEN]... [-d DEV -d TOKEN...] [-e TOKEN]...
                        move or rewrite the opening, a development, the ending
  show [--watch]        print the diagram (default command)
  undo                  restore the story as it was before the last change
  view                  interactive viewer
  stories               list stories in the storage directory

STORY defaults to the story set in .storythreads/config.yaml or
STORYTHREADS_STORY.

Flags:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
	flagSet.SetOutput(io.Discard)
}

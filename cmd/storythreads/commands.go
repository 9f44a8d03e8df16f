package main

import (
	"errors"
	"fmt"

	"github.com/daviddao/storythreads/internal/datasource"
	"github.com/daviddao/storythreads/internal/engine"
	"github.com/daviddao/storythreads/internal/render"
	"github.com/daviddao/storythreads/internal/store"
	"github.com/daviddao/storythreads/internal/timeline"
)

func (a *app) runAdd(args []string) error {
	fs := a.subcommandFlags("add", "add NAME [DESCRIPTION...] -i POS[,POS...] [-c]")
	indices := fs.IntSliceP("indices", "i", nil, "positions of the opening, developments and closing, in order")
	closeThread := fs.BoolP("close", "c", false, "close the thread at the last position")
	if err := fs.Parse(args); err != nil {
		return err
	}
	names := fs.Args()
	if len(names) == 0 {
		return errors.New("add: missing thread name")
	}

	return a.mutate(func(e *engine.Engine) (timeline.Sequence, []string, error) {
		seq, err := e.Add(engine.AddRequest{
			Thread:       names[0],
			Descriptions: names,
			Positions:    *indices,
			Close:        *closeThread,
		})
		return seq, nil, err
	})
}

func (a *app) runRemove(args []string) error {
	fs := a.subcommandFlags("remove", "remove NAME [-d DEV]... [-e]")
	developments := fs.StringArrayP("development", "d", nil, "remove only this development, by position or description (repeatable)")
	ending := fs.BoolP("ending", "e", false, "remove only the closing of the thread")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("remove: want exactly one thread name")
	}

	req := engine.RemoveRequest{Thread: fs.Arg(0), Ending: *ending}
	for _, d := range *developments {
		req.Developments = append(req.Developments, engine.ParseSelector(d))
	}
	return a.mutate(func(e *engine.Engine) (timeline.Sequence, []string, error) {
		return e.Remove(req)
	})
}

func (a *app) runChange(args []string) error {
	fs := a.subcommandFlags("change", "change NAME [-o TOKEN]... [-d DEV -d TOKEN...] [-e TOKEN]...")
	opening := fs.StringArrayP("opening", "o", nil, "new position and/or description of the opening")
	development := fs.StringArrayP("development", "d", nil, "development to change (by position or description), then its new position and/or description")
	ending := fs.StringArrayP("ending", "e", nil, "new position and/or description of the closing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("change: want exactly one thread name")
	}

	req := engine.ChangeRequest{Thread: fs.Arg(0)}
	if fs.Changed("opening") {
		req.Opening = &engine.Edit{Tokens: *opening}
	}
	if fs.Changed("development") {
		d := *development
		req.Development = &engine.DevelopmentEdit{Selector: d[0], Tokens: d[1:]}
	}
	if fs.Changed("ending") {
		req.Ending = &engine.Edit{Tokens: *ending}
	}
	return a.mutate(func(e *engine.Engine) (timeline.Sequence, []string, error) {
		seq, err := e.Change(req)
		return seq, nil, err
	})
}

func (a *app) runUndo(args []string) error {
	fs := a.subcommandFlags("undo", "undo")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.mutate(func(e *engine.Engine) (timeline.Sequence, []string, error) {
		seq, err := e.Undo()
		return seq, nil, err
	})
}

// mutate opens the story, applies fn, prints any warnings and then the new
// diagram.
func (a *app) mutate(fn func(*engine.Engine) (timeline.Sequence, []string, error)) error {
	src, err := a.open()
	if err != nil {
		return err
	}
	defer src.Close()

	seq, warnings, err := fn(src.Engine(a.logger))
	for _, w := range warnings {
		fmt.Fprintln(a.stderr, w)
	}
	if err != nil {
		return err
	}
	return render.Write(a.stdout, src.Story, seq, a.renderOptions(src))
}

func (a *app) runShow(args []string) error {
	fs := a.subcommandFlags("show", "show [--watch]")
	watch := fs.BoolP("watch", "w", false, "print the diagram again whenever the story changes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	src, err := a.open()
	if err != nil {
		return err
	}
	defer src.Close()

	if err := a.show(src); err != nil {
		return err
	}
	if !*watch {
		return nil
	}

	w, err := datasource.NewWatcher(src.Path())
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()
	for {
		select {
		case <-a.ctx.Done():
			return nil
		case _, ok := <-w.Changes():
			if !ok {
				return nil
			}
			fmt.Fprintln(a.stdout)
			if err := a.show(src); err != nil {
				return err
			}
		}
	}
}

func (a *app) show(src *datasource.Source) error {
	seq, err := src.Store.Load(src.Story)
	if err != nil {
		return err
	}
	return render.Write(a.stdout, src.Story, seq, a.renderOptions(src))
}

func (a *app) runStories(args []string) error {
	fs := a.subcommandFlags("stories", "stories")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := a.settings()
	if err != nil {
		return err
	}
	s, err := store.Open(cfg.Backend, cfg.Path, a.logger)
	if err != nil {
		return err
	}
	defer s.Close()

	stories, err := s.Stories()
	if err != nil {
		return err
	}
	for _, name := range stories {
		fmt.Fprintln(a.stdout, name)
	}
	return nil
}

package datasource

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher signals when a story file changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	onChange chan struct{}
	done     chan struct{}
}

// NewWatcher creates a watcher for the given story file. It watches the
// parent directory so that atomic renames and SQLite WAL writes are seen.
func NewWatcher(path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}

	watcher := &Watcher{
		watcher:  w,
		path:     path,
		debounce: 100 * time.Millisecond,
		onChange: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	go watcher.loop()
	return watcher, nil
}

// Changes returns a channel that receives a signal when the story changes.
// It is closed once the watcher stops.
func (w *Watcher) Changes() <-chan struct{} {
	return w.onChange
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

// relevant reports whether name is the story file or one of its SQLite
// companions.
func (w *Watcher) relevant(name string) bool {
	base := filepath.Base(name)
	target := filepath.Base(w.path)
	return base == target || base == target+"-wal" || base == target+"-shm"
}

// loop coalesces bursts of events into one signal per quiet period. The JSON
// store replaces files by renaming a temp file over them, so a Rename onto
// the story file counts as a change.
func (w *Watcher) loop() {
	defer close(w.onChange)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-timer.C:
			select {
			case w.onChange <- struct{}{}:
			default:
			}
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event.Name) || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

package lookup

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nemf/photo-review/internal/logger"
)

// debounceWindow coalesces the burst of events an editor or exporter
// produces while rewriting a table file.
const debounceWindow = 500 * time.Millisecond

// Watcher hot-reloads the lookup tables when their files change on disk,
// so re-exporting the tables does not require a service restart.
type Watcher struct {
	tables *Tables
	fs     *fsnotify.Watcher
	log    logger.Logger
}

// NewWatcher starts watching the tables' directory. Call Run to process
// events and Close to stop.
func NewWatcher(tables *Tables, log logger.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(tables.dir); err != nil {
		fs.Close()
		return nil, err
	}
	return &Watcher{tables: tables, fs: fs, log: log}, nil
}

// Run processes filesystem events until ctx is canceled. Reloads are
// debounced and failures keep the previous tables in place.
func (w *Watcher) Run(ctx context.Context) {
	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if !isTableFile(event.Name) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			if err := w.tables.Reload(); err != nil {
				w.log.Error("Lookup table reload failed", logger.Error(err))
				continue
			}
			w.log.Info("Lookup tables reloaded")

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("Lookup watcher error", logger.Error(err))
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func isTableFile(path string) bool {
	switch filepath.Base(path) {
	case LocationsFile, NamesFile, ForayDatesFile:
		return true
	}
	return false
}

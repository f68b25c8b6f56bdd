// Package watch hosts the long-running companions of the engine: a store
// file watcher that reconciles on edits, a clock jump detector for
// RTC-less boards, and the radio wifi sync loop.
package watch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce coalesces editor write bursts into one callback.
const DefaultDebounce = 500 * time.Millisecond

// Watcher invokes a callback after the store file changes. Events are
// debounced so a save that touches the file several times (or an atomic
// rename) triggers a single reconciliation.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   zerolog.Logger
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the event debounce window.
func WithDebounce(d time.Duration) WatcherOption { return func(w *Watcher) { w.debounce = d } }

// WithWatcherLogger sets the watcher logger.
func WithWatcherLogger(l zerolog.Logger) WatcherOption { return func(w *Watcher) { w.logger = l } }

// NewWatcher creates a watcher for one store file.
func NewWatcher(path string, opts ...WatcherOption) *Watcher {
	w := &Watcher{path: path, debounce: DefaultDebounce, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is done, calling onChange after each debounced
// edit. The parent directory is watched, not the file itself, so atomic
// rename-over writes keep working.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	base := filepath.Base(w.path)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug().Str("event", ev.Op.String()).Msg("store file changed")
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watch error")

		case <-timer.C:
			pending = false
			onChange(ctx)
		}
	}
}

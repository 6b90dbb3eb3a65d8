// Package watch re-runs a reconciliation pass whenever the archive tree
// changes.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 2 * time.Second

// settle is how long the event stream must stay quiet before the events
// raised by a pass count as drained.
const settle = 50 * time.Millisecond

// Pass is one reconciliation run.
type Pass func(ctx context.Context) error

// Watcher watches the root and its immediate subdirectories. Passes never
// overlap. Events raised while a pass runs are mostly the pass's own
// deletions and relocations, so they are discarded once it returns; an
// outside change made during a pass is picked up with the next change.
type Watcher struct {
	Root     string
	Debounce time.Duration
	Logger   *slog.Logger
}

// Run performs an initial pass, then one more pass after each burst of
// changes, until ctx is cancelled. A failing pass is logged and watching
// continues.
func (w *Watcher) Run(ctx context.Context, pass Pass) error {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.Root); err != nil {
		return fmt.Errorf("watch %s: %w", w.Root, err)
	}
	entries, err := os.ReadDir(w.Root)
	if err != nil {
		return fmt.Errorf("read %s: %w", w.Root, err)
	}
	for _, ent := range entries {
		if ent.IsDir() {
			w.add(fw, filepath.Join(w.Root, ent.Name()), logger)
		}
	}

	run := func() {
		if err := pass(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Pass failed", "error", err)
		}
		if n := w.drain(ctx, fw, logger); n > 0 {
			logger.Debug("Discarded events raised during pass", "events", n)
		}
	}

	run()
	logger.Info("Watching for changes", "root", w.Root, "debounce", debounce)

	timer := time.NewTimer(debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(fw, ev, logger) {
				continue
			}
			logger.Debug("Change detected", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error", "error", err)
		case <-timer.C:
			logger.Info("Tree changed, running pass")
			run()
		}
	}
}

// relevant reports whether ev should trigger a pass, and starts watching
// new top-level directories.
func (w *Watcher) relevant(fw *fsnotify.Watcher, ev fsnotify.Event, logger *slog.Logger) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}
	if ev.Has(fsnotify.Create) && filepath.Dir(ev.Name) == filepath.Clean(w.Root) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.add(fw, ev.Name, logger)
		}
	}
	return true
}

// drain consumes pending events until the stream has been quiet for settle.
func (w *Watcher) drain(ctx context.Context, fw *fsnotify.Watcher, logger *slog.Logger) int {
	n := 0
	quiet := time.NewTimer(settle)
	defer quiet.Stop()
	for {
		select {
		case <-ctx.Done():
			return n
		case <-quiet.C:
			return n
		case ev, ok := <-fw.Events:
			if !ok {
				return n
			}
			if w.relevant(fw, ev, logger) {
				n++
			}
			quiet.Reset(settle)
		}
	}
}

func (w *Watcher) add(fw *fsnotify.Watcher, dir string, logger *slog.Logger) {
	if err := fw.Add(dir); err != nil {
		logger.Warn("Cannot watch directory", "path", dir, "error", err)
	}
}

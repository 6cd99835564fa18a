// Package watch re-runs the build phase whenever the services tree changes.
// Bursts of file events are debounced trailing-edge, and rebuilds run one at
// a time: a new burst during a rebuild queues exactly one follow-up.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/shipwright/internal/config"
	"git.home.luguber.info/inful/shipwright/internal/logfields"
)

// RebuildFunc runs one build pass. The watcher never invokes it
// concurrently with itself.
type RebuildFunc func(ctx context.Context) error

// Watcher monitors the services tree and triggers debounced rebuilds.
type Watcher struct {
	cfg      *config.Config
	watcher  *fsnotify.Watcher
	rebuild  RebuildFunc
	debounce time.Duration
	trigger  chan struct{}
	stopChan chan struct{}
}

// New creates a watcher over the configured services tree.
func New(cfg *config.Config, rebuild RebuildFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &Watcher{
		cfg:      cfg,
		watcher:  fsw,
		rebuild:  rebuild,
		debounce: 500 * time.Millisecond,
		trigger:  make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}, nil
}

// WithDebounce overrides the quiet period between the last file event and
// the rebuild it triggers.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	if d > 0 {
		w.debounce = d
	}
	return w
}

// Start registers the services tree recursively and begins watching. It
// blocks until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	root := w.cfg.ServicesPath()
	if err := w.addTree(root); err != nil {
		return err
	}
	slog.Info("Watching for changes", logfields.Path(root))

	go w.watchLoop(ctx)
	w.runLoop(ctx)
	return nil
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	close(w.stopChan)
	if err := w.watcher.Close(); err != nil {
		slog.Error("Error closing file watcher", logfields.Error(err))
	}
}

// addTree registers root and every directory below it. fsnotify watches are
// not recursive; new directories are added as create events arrive.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.isOutput(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				// A new directory needs its own watch before events from
				// inside it can arrive.
				if err := w.addTree(event.Name); err != nil {
					slog.Debug("Skipping new watch target", logfields.Path(event.Name), logfields.Error(err))
				}
			}
			if w.relevant(event) {
				slog.Debug("Source change detected", logfields.Path(event.Name))
				w.fire()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", logfields.Error(err))
		}
	}
}

// relevant filters the raw event stream down to source file changes:
// ecosystem extensions only, never build outputs.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if w.isOutput(event.Name) {
		return false
	}
	ext := filepath.Ext(event.Name)
	for _, e := range w.cfg.Build.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// isOutput reports whether path lies inside the build output tree, whose
// writes are a product of the rebuild itself.
func (w *Watcher) isOutput(path string) bool {
	rel, err := filepath.Rel(w.cfg.OutputPath(), path)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

func (w *Watcher) fire() {
	select {
	case w.trigger <- struct{}{}:
	default:
		// A rebuild is already pending.
	}
}

// runLoop owns the debounce timer and executes rebuilds. Running the
// rebuild inline in this goroutine is what guarantees builds never overlap.
func (w *Watcher) runLoop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.trigger:
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timerC:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.rebuild(ctx); err != nil {
				slog.Error("Rebuild failed", logfields.Error(err))
			}
		}
	}
}

// Package watch reports debounced batches of file changes below a
// repository root.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period that closes a batch.
const DefaultDebounce = 500 * time.Millisecond

// Batch is one debounced set of changes. Paths are root-relative and slash
// separated, sorted.
type Batch struct {
	// Changed holds created or modified files.
	Changed []string

	// Removed holds deleted or renamed-away files.
	Removed []string
}

// All returns changed and removed paths together, sorted.
func (b Batch) All() []string {
	all := append(append([]string{}, b.Changed...), b.Removed...)
	sort.Strings(all)
	return all
}

// Has reports whether the batch touches the root-relative path.
func (b Batch) Has(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range b.All() {
		if p == rel {
			return true
		}
	}
	return false
}

// Handler processes one batch. Errors are logged and watching continues.
type Handler func(ctx context.Context, batch Batch) error

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period after the last event. Defaults to
	// DefaultDebounce.
	Debounce time.Duration

	// Extensions limits reported files, e.g. ".go", ".json". Empty reports
	// every file.
	Extensions []string
}

// Watcher watches a directory tree recursively.
type Watcher struct {
	root    string
	opts    Options
	matcher gitignore.Matcher
	logger  *zap.Logger

	// ready is closed once the tree is watched, when set.
	ready chan struct{}
}

// New creates a watcher for root, honoring its .gitignore.
func New(root string, opts Options, logger *zap.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	matcher, err := LoadMatcher(abs)
	if err != nil {
		// Continue without .gitignore.
		logger.Warn("loading .gitignore", zap.Error(err))
		matcher, _ = LoadMatcher("")
	}
	return &Watcher{root: abs, opts: opts, matcher: matcher, logger: logger}, nil
}

// Run blocks until ctx is cancelled, calling handler once per batch. It
// returns ctx.Err() on cancellation.
func (w *Watcher) Run(ctx context.Context, handler Handler) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return fmt.Errorf("setting up watcher: %w", err)
	}
	w.logger.Info("watching", zap.String("root", w.root), zap.Duration("debounce", w.opts.Debounce))
	if w.ready != nil {
		close(w.ready)
	}

	pending := make(map[string]bool)
	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			rel, ok := w.accept(fw, event)
			if !ok {
				continue
			}
			pending[rel] = true
			timer.Reset(w.opts.Debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := w.batch(pending)
			pending = make(map[string]bool)
			w.logger.Debug("change batch", zap.Int("changed", len(batch.Changed)), zap.Int("removed", len(batch.Removed)))
			if err := handler(ctx, batch); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("processing changes", zap.Error(err))
			}
		}
	}
}

// accept filters an event and returns its root-relative path. New
// directories are added to the watch list.
func (w *Watcher) accept(fw *fsnotify.Watcher, event fsnotify.Event) (string, bool) {
	if event.Op == fsnotify.Chmod {
		return "", false
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !ignored(w.matcher, rel, true) {
				if err := w.addTree(fw, event.Name); err != nil {
					w.logger.Warn("watching new directory", zap.String("dir", rel), zap.Error(err))
				}
			}
			return "", false
		}
	}

	if ignored(w.matcher, rel, false) || !w.wanted(rel) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) wanted(rel string) bool {
	if len(w.opts.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(rel))
	for _, e := range w.opts.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// addTree watches dir and every non-ignored directory below it.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		if ignored(w.matcher, rel, true) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

// batch splits pending paths by whether they still exist.
func (w *Watcher) batch(pending map[string]bool) Batch {
	b := Batch{Changed: []string{}, Removed: []string{}}
	for rel := range pending {
		if _, err := os.Stat(filepath.Join(w.root, filepath.FromSlash(rel))); os.IsNotExist(err) {
			b.Removed = append(b.Removed, rel)
			continue
		}
		b.Changed = append(b.Changed, rel)
	}
	sort.Strings(b.Changed)
	sort.Strings(b.Removed)
	return b
}

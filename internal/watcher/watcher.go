// Package watcher follows the log directory with fsnotify and reports files
// that stopped changing for a debounce interval.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce groups bursts of appends into one notification.
const DefaultDebounce = 400 * time.Millisecond

// Handler is called once per settled file, sequentially.
type Handler func(ctx context.Context, path string) error

// Watcher watches a directory tree for writes to files with one extension.
type Watcher struct {
	root     string
	ext      string
	debounce time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	ready  chan string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the settle interval.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithExtension limits notifications to files with ext (default ".jsonl").
func WithExtension(ext string) Option {
	return func(w *Watcher) { w.ext = ext }
}

// WithLogger sets a logger for watcher events.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a watcher rooted at root. Subdirectories, including ones
// created later (a new month), are watched too.
func New(root string, opts ...Option) *Watcher {
	w := &Watcher{
		root:     filepath.Clean(root),
		ext:      ".jsonl",
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
		timers:   make(map[string]*time.Timer),
		ready:    make(chan string, 16),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is cancelled, calling handle for each settled file.
// Handler errors are logged and do not stop the watch.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("create watch root: %w", err)
	}
	if err := w.addTree(fsw, w.root); err != nil {
		return err
	}
	w.logger.Info("watching", zap.String("root", w.root), zap.String("ext", w.ext),
		zap.Duration("debounce", w.debounce))

	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		case path := <-w.ready:
			if err := handle(ctx, path); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("handling changed file failed", zap.String("path", path), zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			w.cancel(ev.Name)
		}
		return
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if err := w.addTree(fsw, ev.Name); err != nil {
			w.logger.Warn("watching new directory failed", zap.String("path", ev.Name), zap.Error(err))
			return
		}
		w.logger.Debug("watching new directory", zap.String("path", ev.Name))
		// Files may have landed before the directory was added.
		w.scheduleExisting(ctx, ev.Name)
		return
	}
	if w.matches(ev.Name) {
		w.schedule(ctx, ev.Name)
	}
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error { //nolint:wrapcheck // walk errors carry the path
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) scheduleExisting(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && w.matches(path) {
			w.schedule(ctx, path)
		}
		return nil
	})
}

func (w *Watcher) matches(path string) bool {
	return w.ext == "" || strings.EqualFold(filepath.Ext(path), w.ext)
}

// schedule (re)starts the settle timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		w.release(path, t)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-ctx.Done():
		}
	})
	w.timers[path] = t
}

// release forgets the pending timer for path if it is still t. A timer that
// fired while schedule was replacing it must not drop its successor.
// Callers hold w.mu.
func (w *Watcher) release(path string, t *time.Timer) {
	if w.timers[path] == t {
		delete(w.timers, path)
	}
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

package wordlist

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// ReloadFunc receives the reloaded list, or the error that prevented it.
type ReloadFunc func(name string, list *List, err error)

// Watcher reloads list files when they change. Parent directories are
// watched so atomic rename-on-save is seen too.
type Watcher struct {
	watcher  *fsnotify.Watcher
	opts     LoadOptions
	onReload ReloadFunc
	debounce time.Duration
	logger   *log.Logger

	mu     sync.Mutex
	files  map[string]watchedFile // keyed by cleaned absolute path
	timers map[string]*time.Timer
}

type watchedFile struct {
	name   string
	format string
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	Debounce time.Duration
	Load     LoadOptions
	Logger   *log.Logger
}

// NewWatcher creates a watcher. Call Add for each file, then Run.
func NewWatcher(onReload ReloadFunc, opts WatcherOptions) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Watcher{
		watcher:  fw,
		opts:     opts.Load,
		onReload: onReload,
		debounce: opts.Debounce,
		logger:   opts.Logger.WithPrefix("wordlist"),
		files:    make(map[string]watchedFile),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Add starts watching the file backing list name. format overrides
// extension detection when non-empty.
func (w *Watcher) Add(name, path, format string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	w.files[abs] = watchedFile{name: name, format: format}
	w.logger.Debug("watching list", "list", name, "path", abs)
	return nil
}

// Run processes events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(filepath.Clean(event.Name))

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "err", err)
		}
	}
}

// schedule restarts the debounce timer for path, if it is a watched file.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, ok := w.files[path]
	if !ok {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() { w.reload(f, path) })
}

func (w *Watcher) reload(f watchedFile, path string) {
	w.mu.Lock()
	delete(w.timers, path)
	w.mu.Unlock()

	opts := w.opts
	opts.Format = f.format
	name := f.name
	l, err := Load(path, opts)
	if err != nil {
		w.logger.Error("list reload failed", "list", name, "err", err)
	} else {
		w.logger.Info("list reloaded", "list", name, "keywords", len(l.Keywords), "skipped", l.Skipped+l.Invalid)
	}
	if w.onReload != nil {
		w.onReload(name, l, err)
	}
}

func (w *Watcher) close() {
	w.mu.Lock()
	for p, t := range w.timers {
		t.Stop()
		delete(w.timers, p)
	}
	w.mu.Unlock()
	_ = w.watcher.Close()
}

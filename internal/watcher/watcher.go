// Package watcher keeps material directories indexed as files are created, edited and deleted.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/models"
)

const defaultDebounce = 400 * time.Millisecond

// Sink receives the files the watcher sees change.
type Sink interface {
	IndexFile(ctx context.Context, ownerID, path string) (*models.IndexResult, error)
	RemoveFile(ctx context.Context, ownerID, path string) (int, error)
}

// Options selects what is watched and on whose behalf.
type Options struct {
	Directories []string
	// Extensions filters files; empty means every file.
	Extensions []string
	Recursive  bool
	OwnerID    string
	Debounce   time.Duration
}

// Watcher indexes material files under a set of root directories.
type Watcher struct {
	sink       Sink
	ownerID    string
	extensions []string
	recursive  bool
	debounce   time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	ctx      context.Context
	fsw      *fsnotify.Watcher
	roots    map[string][]string // root -> directories registered with fsnotify
	pending  map[string]*time.Timer
	inflight sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher feeding sink. Directories in opts are registered by Start.
func New(sink Sink, opts Options, options ...Option) (*Watcher, error) {
	if opts.OwnerID == "" {
		return nil, models.NewConfigurationError("watch owner id is required")
	}
	w := &Watcher{
		sink:       sink,
		ownerID:    opts.OwnerID,
		extensions: opts.Extensions,
		recursive:  opts.Recursive,
		debounce:   opts.Debounce,
		logger:     zap.NewNop(),
		roots:      make(map[string][]string),
		pending:    make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	for _, opt := range options {
		opt(w)
	}
	for _, d := range opts.Directories {
		abs, err := filepath.Abs(d)
		if err != nil {
			return nil, fmt.Errorf("absolute path: %w", err)
		}
		w.roots[filepath.Clean(abs)] = nil
	}
	return w, nil
}

// Start registers the configured directories and processes events until ctx is
// cancelled or Stop is called. Files already present are not indexed; call Sync.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w.fsw = fsw
	w.ctx = ctx
	for root := range w.roots {
		if err := w.registerLocked(root); err != nil {
			_ = fsw.Close()
			w.fsw = nil
			return err
		}
	}
	w.logger.Info("watching directories",
		zap.Strings("roots", w.directoriesLocked()),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive))
	go w.loop(ctx, fsw)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.watched(path) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.addSubdirectory(path)
			return
		}
		if matchExtension(path, w.extensions) {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancel(path)
		if matchExtension(path, w.extensions) {
			w.remove(path)
		}
	}
}

// addSubdirectory starts watching a directory created under a root and indexes what it holds.
func (w *Watcher) addSubdirectory(dir string) {
	w.mu.Lock()
	if w.fsw == nil || !w.recursive {
		w.mu.Unlock()
		return
	}
	root := w.rootOf(dir)
	added, err := w.addTree(dir)
	if err != nil {
		w.logger.Warn("failed to watch directory", zap.String("path", dir), zap.Error(err))
	}
	w.roots[root] = append(w.roots[root], added...)
	w.mu.Unlock()
	w.syncDir(dir)
}

func (w *Watcher) watched(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rootOf(path) != ""
}

func (w *Watcher) rootOf(path string) string {
	for root := range w.roots {
		if root == path || inDir(root, path) {
			return root
		}
	}
	return ""
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// schedule indexes path once it has been quiet for the debounce interval.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.index(path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) indexContext() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx == nil {
		return context.Background()
	}
	return w.ctx
}

func (w *Watcher) index(path string) {
	w.inflight.Add(1)
	defer w.inflight.Done()
	res, err := w.sink.IndexFile(w.indexContext(), w.ownerID, path)
	if err != nil {
		w.logger.Warn("failed to index file", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Debug("indexed file",
		zap.String("path", path),
		zap.Int("chunks", res.ChunksIndexed),
		zap.Int("failed", len(res.Failed)))
}

func (w *Watcher) remove(path string) {
	n, err := w.sink.RemoveFile(w.indexContext(), w.ownerID, path)
	if err != nil {
		w.logger.Warn("failed to remove file", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Debug("removed file", zap.String("path", path), zap.Int("records", n))
}

// AddDirectory starts watching root, creating it if needed. With syncExisting, files already
// in it are indexed in the background.
func (w *Watcher) AddDirectory(root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	if _, ok := w.roots[abs]; ok {
		w.mu.Unlock()
		return nil
	}
	if w.fsw != nil {
		if err := w.registerLocked(abs); err != nil {
			w.mu.Unlock()
			return err
		}
	} else {
		w.roots[abs] = nil
	}
	w.mu.Unlock()
	w.logger.Info("watch directory added", zap.String("path", abs), zap.Bool("sync", syncExisting))
	if syncExisting {
		go w.syncDir(abs)
	}
	return nil
}

func (w *Watcher) registerLocked(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create watch directory: %w", err)
	}
	var dirs []string
	if w.recursive {
		added, err := w.addTree(root)
		if err != nil {
			return err
		}
		dirs = added
	} else {
		if err := w.fsw.Add(root); err != nil {
			return fmt.Errorf("watch %s: %w", root, err)
		}
		dirs = []string{root}
	}
	w.roots[root] = dirs
	return nil
}

func (w *Watcher) addTree(dir string) ([]string, error) {
	var added []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		added = append(added, path)
		return nil
	})
	return added, err
}

// RemoveDirectory stops watching root. Indexed materials are kept.
func (w *Watcher) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	dirs, ok := w.roots[abs]
	if !ok {
		return nil
	}
	if w.fsw != nil {
		for _, d := range dirs {
			_ = w.fsw.Remove(d)
		}
	}
	delete(w.roots, abs)
	w.logger.Info("watch directory removed", zap.String("path", abs))
	return nil
}

// Directories returns the watched roots, sorted.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.directoriesLocked()
}

func (w *Watcher) directoriesLocked() []string {
	out := make([]string, 0, len(w.roots))
	for root := range w.roots {
		out = append(out, root)
	}
	slices.Sort(out)
	return out
}

// Sync indexes every matching file already present under the watched roots and
// returns how many files were handed to the sink.
func (w *Watcher) Sync() int {
	n := 0
	for _, root := range w.Directories() {
		n += w.syncDir(root)
	}
	return n
}

func (w *Watcher) syncDir(dir string) int {
	n := 0
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && !w.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if matchExtension(path, w.extensions) {
			w.index(path)
			n++
		}
		return nil
	})
	return n
}

// Stop stops watching, drops pending debounced work and waits for in-flight indexing.
func (w *Watcher) Stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	if w.fsw != nil {
		_ = w.fsw.Close()
		w.fsw = nil
	}
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
	w.inflight.Wait()
}

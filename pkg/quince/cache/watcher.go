package cache

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates cache entries when component files change on disk, so
// a cache hit is always behaviorally identical to a fresh parse of current
// content even while files are being edited.
type Watcher struct {
	watcher *fsnotify.Watcher
	cache   *Cache
	exts    []string

	// Debounce rapid change bursts from editors that write multiple times.
	mu         sync.Mutex
	lastChange map[string]time.Time
}

// NewWatcher creates a watcher that invalidates entries of c. exts limits
// reaction to the given file extensions (e.g. ".qml"); empty means all.
func NewWatcher(c *Cache, exts ...string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:    fsWatcher,
		cache:      c,
		exts:       exts,
		lastChange: make(map[string]time.Time),
	}, nil
}

// Add watches a directory (non-recursively) for component changes.
func (w *Watcher) Add(dir string) error {
	return w.watcher.Add(dir)
}

// Start processes events until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Watch errors degrade to a full invalidation: reparsing is
			// always correct, serving stale trees is not.
			w.cache.InvalidateAll()
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if !w.matches(event.Name) {
		return
	}

	w.mu.Lock()
	last := w.lastChange[event.Name]
	now := time.Now()
	w.lastChange[event.Name] = now
	w.mu.Unlock()
	if now.Sub(last) < 50*time.Millisecond {
		return
	}

	w.cache.Invalidate(event.Name)
	// Editors that atomically rename over the target produce events for the
	// temp file; invalidate the destination too.
	if event.Op&fsnotify.Rename != 0 {
		w.cache.Invalidate(filepath.Clean(event.Name))
	}
}

func (w *Watcher) matches(name string) bool {
	if len(w.exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range w.exts {
		if ext == e {
			return true
		}
	}
	return false
}

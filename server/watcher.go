package server

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounce is how long a path must be quiet before its change is handled.
const debounce = 100 * time.Millisecond

// Watcher monitors the content directory and re-renders pages whose
// documents change.
type Watcher struct {
	watcher *fsnotify.Watcher
	pages   *pageHosts
	log     zerolog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
	changes uint64
}

// NewWatcher creates a watcher for the page directory.
func NewWatcher(pages *pageHosts, log zerolog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher: fsWatcher,
		pages:   pages,
		log:     log,
		pending: make(map[string]*time.Timer),
	}, nil
}

// Start begins watching. Events are processed until ctx is done or the
// watcher is closed.
func (w *Watcher) Start(ctx context.Context) error {
	root := w.pages.dir.Root()
	if err := w.watcher.Add(root); err != nil {
		return err
	}
	w.log.Info().Str("dir", root).Msg("watching pages")
	go w.eventLoop(ctx)
	return nil
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			name, ok := w.pages.dir.NameFor(event.Name)
			if !ok {
				continue
			}
			w.schedule(ctx, filepath.Clean(event.Name), name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("watcher error")
		}
	}
}

// schedule debounces rapid changes to one path; editors often write a
// file several times in a row.
func (w *Watcher) schedule(ctx context.Context, path, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok && t.Stop() {
		t.Reset(debounce)
		return
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.changes++
		w.mu.Unlock()
		w.handleChange(ctx, path, name)
	})
	w.pending[path] = t
}

func (w *Watcher) handleChange(ctx context.Context, path, name string) {
	if ctx.Err() != nil {
		return
	}
	w.log.Info().Str("page", name).Str("path", path).Msg("page changed")
	if err := w.pages.Refresh(ctx, name); err != nil {
		w.log.Error().Err(err).Str("page", name).Msg("re-render failed")
	}
}

// Changes returns how many debounced changes have been handled.
func (w *Watcher) Changes() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.changes
}

// Close stops the watcher and waits for in-flight refreshes.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
	return err
}

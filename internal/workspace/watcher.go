package workspace

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads disk-backed documents when their files change. It watches
// directories, since editors commonly replace a file by renaming a new one
// over it.
type Watcher struct {
	ws *Workspace
	fs *fsnotify.Watcher

	mu    sync.Mutex
	dirs  map[string]int // watched directory -> open documents in it
	files map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newWatcher(ws *Workspace) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		ws:     ws,
		fs:     fsw,
		dirs:   make(map[string]int),
		files:  make(map[string]bool),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Add starts following path
func (w *Watcher) Add(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.files[path] {
		return nil
	}
	dir := filepath.Dir(path)
	if w.dirs[dir] == 0 {
		if err := w.fs.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir]++
	w.files[path] = true
	return nil
}

// Remove stops following path
func (w *Watcher) Remove(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.files[path] {
		return
	}
	delete(w.files, path)

	dir := filepath.Dir(path)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		_ = w.fs.Remove(dir)
	}
}

// Watching reports whether path is followed
func (w *Watcher) Watching(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[path]
}

func (w *Watcher) run() {
	defer close(w.done)

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.ws.log.Warningf("watcher error: %s", err.Error())
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	path := filepath.Clean(event.Name)
	if strings.HasPrefix(filepath.Base(path), ".") || !w.Watching(path) {
		return
	}

	if err := w.ws.reload(w.ctx, path); err != nil {
		w.ws.log.Errorf("reload %s: %s", path, err.Error())
	}
}

// Close stops the watcher and waits for an in-flight reload
func (w *Watcher) Close() error {
	w.cancel()
	err := w.fs.Close()
	<-w.done
	return err
}

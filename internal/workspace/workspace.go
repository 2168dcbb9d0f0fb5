package workspace

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/dshills/livedoc/internal/document"
	"github.com/dshills/livedoc/internal/parser"
	"github.com/dshills/livedoc/internal/reparse"
	"github.com/dshills/livedoc/internal/storage"
	"github.com/dshills/livedoc/pkg/types"
)

var (
	// ErrNotOpen is returned for a path with no open document
	ErrNotOpen = errors.New("document is not open")
	// ErrAlreadyOpen is returned when opening a path twice
	ErrAlreadyOpen = errors.New("document is already open")
	// ErrShutdown is returned after Shutdown
	ErrShutdown = errors.New("workspace is shut down")
	// ErrLoadInProgress is returned when LoadDir is already running
	ErrLoadInProgress = errors.New("workspace load already in progress")
)

// Options configure a Workspace
type Options struct {
	Reparse *reparse.Config
	Engine  string          // Recorded in the journal
	Storage storage.Storage // Optional reparse journal
	Watch   bool            // Reload disk-backed documents when their file changes
	Logger  commonlog.Logger
}

type entry struct {
	doc    *document.Document
	onDisk bool
}

// Workspace owns the set of open documents. Each document has its own
// coordinator; the workspace fans their results out to workspace listeners
// and to the journal.
type Workspace struct {
	reparseCfg *reparse.Config
	engine     string
	log        commonlog.Logger
	sessionID  string
	journal    *journal // nil without storage
	watcher    *Watcher // nil unless watching
	listeners  reparse.Registry
	loadLock   LoadLock

	mu       sync.RWMutex
	docs     map[string]*entry
	shutdown bool
}

// New creates a workspace. The caller keeps ownership of opts.Storage.
func New(opts Options) (*Workspace, error) {
	ws := &Workspace{
		reparseCfg: opts.Reparse,
		engine:     opts.Engine,
		log:        opts.Logger,
		sessionID:  uuid.NewString(),
		docs:       make(map[string]*entry),
	}
	if ws.log == nil {
		ws.log = commonlog.GetLogger("livedoc.workspace")
	}
	if ws.engine == "" {
		ws.engine = parser.EngineAST
	}
	if opts.Storage != nil {
		ws.journal = newJournal(opts.Storage, ws.sessionID, ws.log)
	}
	if opts.Watch {
		w, err := newWatcher(ws)
		if err != nil {
			if ws.journal != nil {
				ws.journal.close()
			}
			return nil, fmt.Errorf("failed to start watcher: %w", err)
		}
		ws.watcher = w
	}

	ws.log.Infof("workspace session %s started", ws.sessionID)
	return ws, nil
}

// SessionID identifies this workspace in the journal
func (ws *Workspace) SessionID() string { return ws.sessionID }

// Subscribe registers l for the results of every document, current and future
func (ws *Workspace) Subscribe(l reparse.Listener) (unsubscribe func()) {
	return ws.listeners.Subscribe(l)
}

// Open opens an in-memory document at the absolute path. For small documents
// the first model is published before Open returns.
func (ws *Workspace) Open(ctx context.Context, path, text string) (*document.Document, error) {
	return ws.open(ctx, path, text, false)
}

// OpenFile reads the file at path and opens it. With watching enabled the
// document follows later changes to the file.
func (ws *Workspace) OpenFile(ctx context.Context, path string) (*document.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ws.open(ctx, abs, string(content), true)
}

func (ws *Workspace) open(ctx context.Context, path, text string, onDisk bool) (*document.Document, error) {
	if path == "" {
		return nil, types.ErrMissingPath
	}
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: %s", types.ErrRelativePath, path)
	}
	path = filepath.Clean(path)

	ws.mu.RLock()
	_, exists := ws.docs[path]
	shutdown := ws.shutdown
	ws.mu.RUnlock()
	if shutdown {
		return nil, ErrShutdown
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, path)
	}

	doc, err := document.Open(ctx, path, text, ws.reparseCfg, &forwarder{ws: ws})
	if err != nil {
		return nil, err
	}

	ws.mu.Lock()
	if ws.shutdown || ws.docs[path] != nil {
		shutdown := ws.shutdown
		ws.mu.Unlock()
		_ = doc.Close()
		if shutdown {
			return nil, ErrShutdown
		}
		return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, path)
	}
	ws.docs[path] = &entry{doc: doc, onDisk: onDisk}
	ws.mu.Unlock()

	if ws.journal != nil {
		ws.journal.opened(ws.documentRecord(path, text))
	}

	if onDisk && ws.watcher != nil {
		if err := ws.watcher.Add(path); err != nil {
			ws.log.Warningf("cannot watch %s: %s", path, err.Error())
		}
	}

	ws.log.Debugf("opened %s (%d lines)", path, doc.LineCount())
	return doc, nil
}

func (ws *Workspace) documentRecord(path, text string) *storage.Document {
	rec := &storage.Document{
		Path:        path,
		Engine:      ws.engine,
		LineCount:   strings.Count(text, "\n") + 1,
		SizeBytes:   int64(len(text)),
		ContentHash: sha256.Sum256([]byte(text)),
		OpenedAt:    time.Now(),
	}
	if mod, err := parser.FindModule(filepath.Dir(path)); err == nil && mod != nil {
		rec.ModuleName = mod.Path
	}
	return rec
}

// Get returns the open document at path
func (ws *Workspace) Get(path string) (*document.Document, error) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	e, ok := ws.docs[filepath.Clean(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotOpen, path)
	}
	return e.doc, nil
}

// Edit applies changes to the open document at path
func (ws *Workspace) Edit(ctx context.Context, path string, changes ...document.Change) error {
	doc, err := ws.Get(path)
	if err != nil {
		return err
	}
	return doc.Apply(ctx, changes...)
}

// Close closes the document at path, cancelling its queued reparse
func (ws *Workspace) Close(path string) error {
	path = filepath.Clean(path)

	ws.mu.Lock()
	e, ok := ws.docs[path]
	if ok {
		delete(ws.docs, path)
	}
	ws.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotOpen, path)
	}

	return ws.closeEntry(path, e)
}

func (ws *Workspace) closeEntry(path string, e *entry) error {
	if e.onDisk && ws.watcher != nil {
		ws.watcher.Remove(path)
	}
	err := e.doc.Close()
	if ws.journal != nil {
		ws.journal.closedDoc(path, time.Now())
	}
	ws.log.Debugf("closed %s", path)
	return err
}

// Documents returns the open paths in sorted order
func (ws *Workspace) Documents() []string {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return slices.Sorted(maps.Keys(ws.docs))
}

// Len returns the number of open documents
func (ws *Workspace) Len() int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.docs)
}

// DroppedRecords returns how many reparse records the journal discarded
func (ws *Workspace) DroppedRecords() int64 {
	if ws.journal == nil {
		return 0
	}
	return ws.journal.Dropped()
}

// reload replaces the text of a disk-backed document with the file content
func (ws *Workspace) reload(ctx context.Context, path string) error {
	ws.mu.RLock()
	e, ok := ws.docs[path]
	ws.mu.RUnlock()
	if !ok || !e.onDisk {
		return nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if string(content) == e.doc.Text() {
		return nil
	}

	ws.log.Infof("reloading %s from disk", path)
	return e.doc.SetText(ctx, string(content))
}

// Shutdown closes every document, stops the watcher and flushes the journal.
// Later calls return nil.
func (ws *Workspace) Shutdown() error {
	ws.mu.Lock()
	if ws.shutdown {
		ws.mu.Unlock()
		return nil
	}
	ws.shutdown = true
	docs := ws.docs
	ws.docs = make(map[string]*entry)
	ws.mu.Unlock()

	var errs []error
	if ws.watcher != nil {
		errs = append(errs, ws.watcher.Close())
	}
	for _, path := range slices.Sorted(maps.Keys(docs)) {
		errs = append(errs, ws.closeEntry(path, docs[path]))
	}
	ws.listeners.Clear()
	if ws.journal != nil {
		ws.journal.close()
	}

	ws.log.Infof("workspace session %s ended", ws.sessionID)
	return errors.Join(errs...)
}

// forwarder is subscribed to every document. It journals each outcome and
// then fans it out to the workspace listeners.
type forwarder struct {
	ws *Workspace
}

func (f *forwarder) ReparseFinished(result *types.ParseResult) {
	if f.ws.journal != nil {
		f.ws.journal.ReparseFinished(result)
	}
	if err := f.ws.listeners.Notify(result); err != nil {
		f.ws.log.Errorf("workspace listener failed for %s: %s", result.Path, err.Error())
	}
}

func (f *forwarder) ReparseFailed(failure *reparse.Failure) {
	if f.ws.journal != nil {
		f.ws.journal.ReparseFailed(failure)
	}
	if err := f.ws.listeners.NotifyFailure(failure); err != nil {
		f.ws.log.Errorf("workspace listener failed for %s: %s", failure.Path, err.Error())
	}
}

package workspace

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"

	"github.com/dshills/livedoc/internal/reparse"
	"github.com/dshills/livedoc/internal/storage"
	"github.com/dshills/livedoc/pkg/types"
)

const (
	journalQueueSize = 256
	journalTimeout   = 5 * time.Second
)

type journalOp func(ctx context.Context, store storage.Storage) error

// journal writes document lifecycle events and reparse outcomes to storage on
// its own goroutine, in the order they were reported. Reparse records are
// dropped when the queue is full so a slow disk never stalls a reparse.
type journal struct {
	store     storage.Storage
	sessionID string
	log       commonlog.Logger

	mu      sync.Mutex
	closed  bool
	ops     chan journalOp
	done    chan struct{}
	dropped atomic.Int64
}

func newJournal(store storage.Storage, sessionID string, log commonlog.Logger) *journal {
	j := &journal{
		store:     store,
		sessionID: sessionID,
		log:       log,
		ops:       make(chan journalOp, journalQueueSize),
		done:      make(chan struct{}),
	}
	go j.run()
	return j
}

func (j *journal) run() {
	defer close(j.done)
	for op := range j.ops {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		if err := op(ctx, j.store); err != nil {
			j.log.Warningf("journal write failed: %s", err.Error())
		}
		cancel()
	}
}

// enqueue blocks until the op is queued
func (j *journal) enqueue(op journalOp) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	j.ops <- op
}

// offer queues the op unless the queue is full
func (j *journal) offer(op journalOp) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	select {
	case j.ops <- op:
	default:
		if j.dropped.Add(1) == 1 {
			j.log.Warningf("journal queue full, dropping reparse records")
		}
	}
}

// Dropped returns how many reparse records were discarded
func (j *journal) Dropped() int64 {
	return j.dropped.Load()
}

func (j *journal) opened(doc *storage.Document) {
	doc.SessionID = j.sessionID
	j.enqueue(func(ctx context.Context, s storage.Storage) error {
		return s.UpsertDocument(ctx, doc)
	})
}

func (j *journal) closedDoc(path string, at time.Time) {
	j.enqueue(func(ctx context.Context, s storage.Storage) error {
		return s.MarkClosed(ctx, path, at)
	})
}

// ReparseFinished implements reparse.Listener
func (j *journal) ReparseFinished(result *types.ParseResult) {
	rec := storage.ReparseFromResult(j.sessionID, result)
	j.offer(func(ctx context.Context, s storage.Storage) error {
		return s.RecordReparse(ctx, rec)
	})
}

// ReparseFailed implements reparse.FailureListener
func (j *journal) ReparseFailed(f *reparse.Failure) {
	rec := &storage.Reparse{
		Path:      f.Path,
		SessionID: j.sessionID,
		Version:   f.Version,
		Mode:      string(f.Mode),
		Success:   false,
		Duration:  f.Duration,
		ParsedAt:  time.Now(),
	}
	if f.Err != nil {
		rec.Error = f.Err.Error()
	}
	j.offer(func(ctx context.Context, s storage.Storage) error {
		return s.RecordReparse(ctx, rec)
	})
}

// close drains the queue and waits for the last write
func (j *journal) close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		<-j.done
		return
	}
	j.closed = true
	close(j.ops)
	j.mu.Unlock()
	<-j.done
}

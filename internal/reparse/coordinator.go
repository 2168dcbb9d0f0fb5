package reparse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"github.com/dshills/livedoc/pkg/types"
)

// State is the freshness of the published model
type State int

const (
	// StateFresh means the published model reflects the current buffer
	StateFresh State = iota
	// StateStale means an edit happened after the published model was computed
	StateStale
	// StateParsing means a reparse is executing
	StateParsing
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	case StateParsing:
		return "parsing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stats are counters of one coordinator
type Stats struct {
	InlineReparses     int64
	BackgroundReparses int64
	Superseded         int64 // background requests replaced before they ran
	Failures           int64
	ListenerPanics     int64
	LastDuration       time.Duration
	LastError          string
	Listeners          int
}

// Coordinator keeps the parsed model of one buffer consistent with the buffer
// while it is being edited.
//
// Small buffers reparse inline inside AfterEdit. Large buffers reparse on the
// scheduler's worker after a quiet period, and a burst of edits collapses into
// one reparse. At most one reparse executes at any time, and readers block
// until no edit or reparse is outstanding.
type Coordinator struct {
	buffer    Buffer
	cfg       Config
	log       commonlog.Logger
	scheduler *Scheduler
	listeners Registry

	mu        sync.Mutex
	cond      *sync.Cond
	engine    Engine
	inline    bool // mode chosen by the edit in progress
	editing   bool
	queued    bool
	queuedSeq uint64
	running   bool
	notifying bool
	fresh     bool
	closed    bool
	result    *types.ParseResult
	stats     Stats
}

// New creates a coordinator for buffer. The engine is bound lazily on the
// first edit.
func New(buffer Buffer, cfg *Config) *Coordinator {
	c := &Coordinator{
		buffer: buffer,
		cfg:    cfg.withDefaults(),
	}
	c.log = c.cfg.Logger
	c.cond = sync.NewCond(&c.mu)
	c.scheduler = NewScheduler(c.cfg.Debounce, c.runScheduled)
	return c
}

// BeforeEdit must be called on the editing goroutine before the buffer is
// mutated. It binds the engine on first use and may block: inline edits wait
// for an executing reparse, and with BackpressureBlock background edits also
// wait for the queued one. A binding failure is returned immediately and
// leaves the coordinator unchanged, so the caller must not apply the edit.
func (c *Coordinator) BeforeEdit(ctx context.Context) error {
	if err := c.bind(); err != nil {
		return err
	}

	inline := c.buffer.LineCount() < c.cfg.SyncLineThreshold

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.editing {
		return ErrEditInProgress
	}

	switch {
	case inline:
		if err := c.waitLocked(ctx, c.slotTakenLocked); err != nil {
			return err
		}
		// The inline reparse after this edit covers whatever was queued.
		if c.queued {
			c.dropQueuedLocked()
		}
	case c.cfg.Backpressure == BackpressureBlock:
		if err := c.waitLocked(ctx, func() bool { return c.queued || c.slotTakenLocked() }); err != nil {
			return err
		}
	}

	c.inline = inline
	c.editing = true
	c.fresh = false
	return nil
}

// AfterEdit must be called after the buffer mutation completed. Inline edits
// reparse before it returns; background edits schedule a debounced reparse
// that supersedes any request that has not started.
func (c *Coordinator) AfterEdit() error {
	c.mu.Lock()

	if !c.editing {
		c.mu.Unlock()
		return ErrNoEdit
	}
	c.editing = false

	if c.closed {
		c.cond.Broadcast()
		c.mu.Unlock()
		return ErrClosed
	}

	if c.inline {
		c.running = true
		snap := c.buffer.Snapshot()
		engine := c.engine
		c.mu.Unlock()

		c.reparse(engine, snap, types.ModeInline)
		return nil
	}
	defer c.mu.Unlock()

	if c.queued {
		c.stats.Superseded++
	}
	c.queuedSeq++
	c.queued = true
	err := c.scheduler.Schedule(Request{Seq: c.queuedSeq, ScheduledAt: time.Now()})
	if err != nil {
		c.queued = false
		c.cond.Broadcast()
		return err
	}
	return nil
}

// Latest returns the most recently published result, blocking while an edit
// or reparse is outstanding. After an engine failure it returns the last good
// result, which IsFresh then reports as stale.
//
// A listener of this coordinator must not call Latest with a context that
// never ends: an edit made during notification queues a reparse
// that cannot start until the listener returns. Listeners use the result
// they are given, or Current.
func (c *Coordinator) Latest(ctx context.Context) (*types.ParseResult, error) {
	result, _, err := c.Await(ctx)
	return result, err
}

// Await is Latest that also reports whether the returned result was fresh
// at the instant the wait ended. The pair is read under one lock, so a later
// edit cannot make a fresh result look stale.
func (c *Coordinator) Await(ctx context.Context) (*types.ParseResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.waitLocked(ctx, c.outstandingLocked); err != nil {
		return nil, false, err
	}
	if c.result == nil {
		return nil, false, ErrNoResult
	}
	return c.result, c.fresh, nil
}

// LatestModel is Latest projected into the read-only model
func (c *Coordinator) LatestModel(ctx context.Context) (*types.Model, error) {
	result, err := c.Latest(ctx)
	if err != nil {
		return nil, err
	}
	return result.Model(), nil
}

// Current returns the published result without waiting
func (c *Coordinator) Current() (*types.ParseResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.fresh
}

// IsFresh reports whether the published result reflects the current buffer
func (c *Coordinator) IsFresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fresh
}

// State returns the coordinator state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.running:
		return StateParsing
	case c.fresh:
		return StateFresh
	default:
		return StateStale
	}
}

// Stats returns a copy of the counters
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	stats := c.stats
	c.mu.Unlock()

	stats.Listeners = c.listeners.Len()
	return stats
}

// Subscribe registers l for every published result until the returned
// function is called or the coordinator closes.
func (c *Coordinator) Subscribe(l Listener) (unsubscribe func()) {
	return c.listeners.Subscribe(l)
}

// Close cancels the queued reparse, waits for an executing one and removes
// every listener. Blocked readers return ErrClosed. Close must not be called
// from a listener.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.queued {
		c.dropQueuedLocked()
	}
	c.cond.Broadcast()
	c.mu.Unlock()

	c.listeners.Clear()
	c.scheduler.Close()
	c.log.Debugf("coordinator closed: %s", c.buffer.Path())
	return nil
}

func (c *Coordinator) bind() error {
	c.mu.Lock()
	bound := c.engine != nil
	c.mu.Unlock()
	if bound {
		return nil
	}

	engine, err := c.cfg.Binder(c.buffer.Path())
	if err != nil {
		c.log.Errorf("bind %s: %s", c.buffer.Path(), err.Error())
		return fmt.Errorf("%w: %w", ErrBinding, err)
	}

	c.mu.Lock()
	if c.engine == nil {
		c.engine = engine
	}
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) runScheduled(req Request) {
	c.mu.Lock()
	for c.current(req) && c.slotTakenLocked() {
		c.cond.Wait()
	}
	if !c.current(req) {
		// superseded, already counted where it was replaced
		c.mu.Unlock()
		return
	}
	c.queued = false
	c.running = true
	snap := c.buffer.Snapshot()
	engine := c.engine
	c.mu.Unlock()

	c.log.Debugf("background reparse %s (version %d, waited %s)",
		c.buffer.Path(), snap.Version, time.Since(req.ScheduledAt))
	c.reparse(engine, snap, types.ModeBackground)
}

func (c *Coordinator) current(req Request) bool {
	return !c.closed && c.queued && c.queuedSeq == req.Seq
}

// reparse runs the engine outside the lock with the slot held, publishes the
// outcome, then notifies listeners. The slot is released before notification
// so readers see the result first, but no new reparse starts until every
// listener returned.
func (c *Coordinator) reparse(engine Engine, snap Snapshot, mode types.ReparseMode) {
	start := time.Now()
	result, err := c.parse(engine, snap)
	elapsed := time.Since(start)
	if err == nil {
		err = c.stamp(result, snap, mode, elapsed)
	}

	c.mu.Lock()
	c.running = false
	c.notifying = true
	c.stats.LastDuration = elapsed

	if err != nil {
		c.stats.Failures++
		c.stats.LastError = err.Error()
		c.fresh = false
		c.cond.Broadcast()
		c.mu.Unlock()

		c.log.Errorf("reparse %s (version %d) failed: %s", c.buffer.Path(), snap.Version, err.Error())
		c.finishNotify(c.listeners.NotifyFailure(&Failure{
			Path:     c.buffer.Path(),
			Version:  snap.Version,
			Mode:     mode,
			Err:      err,
			Duration: elapsed,
		}))
		return
	}

	c.result = result
	c.fresh = !c.editing && !c.queued && snap.Version == c.buffer.Version()
	if mode == types.ModeInline {
		c.stats.InlineReparses++
	} else {
		c.stats.BackgroundReparses++
	}
	c.stats.LastError = ""
	c.cond.Broadcast()
	c.mu.Unlock()

	c.log.Debugf("reparse %s (version %d, %s) took %s: %d symbols, %d errors",
		result.Path, result.Version, mode, elapsed, len(result.Symbols), len(result.Errors))
	c.finishNotify(c.listeners.Notify(result))
}

func (c *Coordinator) parse(engine Engine, snap Snapshot) (result *types.ParseResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: panic: %v", ErrEngineFailure, r)
		}
	}()

	// A reparse that started always runs to completion.
	result, err = engine.Parse(context.Background(), c.buffer.Path(), snap.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineFailure, err)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: engine returned no result", ErrEngineFailure)
	}
	return result, nil
}

// stamp records which buffer state result was computed from. A result that
// does not identify its buffer is never published.
func (c *Coordinator) stamp(result *types.ParseResult, snap Snapshot, mode types.ReparseMode, elapsed time.Duration) error {
	if result.Path == "" {
		result.Path = c.buffer.Path()
	}
	result.Version = snap.Version
	result.Mode = mode
	result.ParsedAt = time.Now()
	if result.Duration == 0 {
		result.Duration = elapsed
	}
	if err := result.ValidateIdentity(); err != nil {
		return fmt.Errorf("%w: %w", ErrEngineFailure, err)
	}
	return nil
}

func (c *Coordinator) finishNotify(listenerErr error) {
	if listenerErr != nil {
		c.log.Errorf("reparse listener: %s", listenerErr.Error())
	}

	c.mu.Lock()
	if listenerErr != nil {
		c.stats.ListenerPanics += int64(countJoined(listenerErr))
	}
	c.notifying = false
	c.cond.Broadcast()
	c.mu.Unlock()
}

func (c *Coordinator) dropQueuedLocked() {
	c.scheduler.Cancel()
	c.queued = false
	c.stats.Superseded++
	c.cond.Broadcast()
}

// slotTakenLocked reports whether a new reparse would overlap one in flight
func (c *Coordinator) slotTakenLocked() bool {
	return c.running || c.notifying
}

// outstandingLocked reports whether a reader would see a result older than
// the buffer
func (c *Coordinator) outstandingLocked() bool {
	return c.editing || c.queued || c.running
}

// waitLocked waits on the condition until blocked returns false. c.mu must be
// held. The wait ends early when the coordinator closes or ctx is done.
func (c *Coordinator) waitLocked(ctx context.Context, blocked func() bool) error {
	if c.closed {
		return ErrClosed
	}
	if !blocked() {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	for blocked() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrWaitInterrupted, err)
		}
		c.cond.Wait()
		if c.closed {
			return ErrClosed
		}
	}
	return nil
}

func countJoined(err error) int {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return len(joined.Unwrap())
	}
	return 1
}

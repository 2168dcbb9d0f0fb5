package reparse

import (
	"context"
	"fmt"
	"time"

	"github.com/tliron/commonlog"

	"github.com/dshills/livedoc/internal/parser"
	"github.com/dshills/livedoc/pkg/types"
)

const (
	// DefaultDebounce is the quiet period before a background reparse runs
	DefaultDebounce = 250 * time.Millisecond
	// DefaultSyncLineThreshold is the line count from which reparses move off
	// the editing goroutine
	DefaultSyncLineThreshold = 800
)

// Backpressure selects how edits on large buffers are throttled against
// unfinished background reparses.
type Backpressure string

const (
	// BackpressureCoalesce never stalls the editing goroutine. Only the queued
	// request is bounded: a new edit replaces a request that has not started.
	BackpressureCoalesce Backpressure = "coalesce"
	// BackpressureBlock makes an edit wait until the previous background
	// reparse has executed and released the slot. A second edit inside the
	// debounce window therefore stalls for the rest of that window plus the
	// parse itself.
	BackpressureBlock Backpressure = "block"
)

// Validate checks the policy name
func (b Backpressure) Validate() error {
	switch b {
	case BackpressureCoalesce, BackpressureBlock:
		return nil
	default:
		return fmt.Errorf("invalid backpressure policy %q", string(b))
	}
}

// Engine parses one snapshot of a buffer
type Engine interface {
	Parse(ctx context.Context, path string, content []byte) (*types.ParseResult, error)
}

// Binder creates the engine for a buffer on its first edit
type Binder func(path string) (Engine, error)

// Buffer is the read side of the live text the coordinator keeps a model of.
// The coordinator never mutates it.
type Buffer interface {
	Path() string
	LineCount() int
	Version() uint64
	Snapshot() Snapshot
}

// Snapshot is the buffer content at one version
type Snapshot struct {
	Content []byte
	Version uint64
}

// Config contains the construction-time settings of a Coordinator
type Config struct {
	Debounce          time.Duration // Quiet period before a background reparse (default: 250ms)
	SyncLineThreshold int           // Buffers with fewer lines reparse inline (default: 800)
	Backpressure      Backpressure  // default: coalesce
	Binder            Binder        // default: the go/ast engine bound to the buffer's module
	Logger            commonlog.Logger
}

// DefaultBinder binds the go/ast engine to the document's module
func DefaultBinder(path string) (Engine, error) {
	return parser.Bind(parser.EngineAST, path)
}

// EngineBinder returns a Binder for the named parser engine
func EngineBinder(name string) Binder {
	return func(path string) (Engine, error) {
		return parser.Bind(name, path)
	}
}

func (c *Config) withDefaults() Config {
	var cfg Config
	if c != nil {
		cfg = *c
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.SyncLineThreshold <= 0 {
		cfg.SyncLineThreshold = DefaultSyncLineThreshold
	}
	if cfg.Backpressure == "" {
		cfg.Backpressure = BackpressureCoalesce
	}
	if cfg.Binder == nil {
		cfg.Binder = DefaultBinder
	}
	if cfg.Logger == nil {
		cfg.Logger = commonlog.GetLogger("livedoc.reparse")
	}
	return cfg
}

package reparse

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dshills/livedoc/pkg/types"
)

// testBuffer is an in-memory Buffer whose line count is set directly
type testBuffer struct {
	mu      sync.RWMutex
	path    string
	text    string
	version uint64
	lines   int
}

func newTestBuffer(lines int) *testBuffer {
	return &testBuffer{path: "/src/app/main.go", lines: lines}
}

func (b *testBuffer) Path() string { return b.path }

func (b *testBuffer) LineCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lines
}

func (b *testBuffer) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

func (b *testBuffer) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{Content: []byte(b.text), Version: b.version}
}

func (b *testBuffer) set(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = text
	b.version++
}

func (b *testBuffer) setLines(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = n
}

// fakeEngine echoes the content into PackageName and records concurrency
type fakeEngine struct {
	delay     time.Duration
	active    atomic.Int32
	maxActive atomic.Int32
	calls     atomic.Int32
	failNext  atomic.Bool
	panicNext atomic.Bool

	mu   sync.Mutex
	seen []string
}

func (e *fakeEngine) Parse(ctx context.Context, path string, content []byte) (*types.ParseResult, error) {
	n := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		m := e.maxActive.Load()
		if n <= m || e.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	e.calls.Add(1)

	if e.delay > 0 {
		time.Sleep(e.delay)
	}

	e.mu.Lock()
	e.seen = append(e.seen, string(content))
	e.mu.Unlock()

	if e.failNext.Swap(false) {
		return nil, errors.New("engine exploded")
	}
	if e.panicNext.Swap(false) {
		panic("engine panicked")
	}

	return &types.ParseResult{
		PackageName: string(content),
		Engine:      "fake",
		Symbols: []types.Symbol{
			{Name: "Shape", Kind: types.KindStruct, Scope: types.ScopeExported},
			{Name: "Width", Kind: types.KindField, Parent: "Shape", Scope: types.ScopeExported},
		},
	}, nil
}

func (e *fakeEngine) last() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.seen) == 0 {
		return ""
	}
	return e.seen[len(e.seen)-1]
}

// recorder collects notifications in order
type recorder struct {
	mu       sync.Mutex
	results  []*types.ParseResult
	failures []*Failure
}

func (r *recorder) ReparseFinished(result *types.ParseResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *recorder) ReparseFailed(failure *Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, failure)
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	texts := make([]string, 0, len(r.results))
	for _, res := range r.results {
		texts = append(texts, res.PackageName)
	}
	return texts
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func (r *recorder) failureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures)
}

func newTestCoordinator(t *testing.T, buf *testBuffer, engine Engine, cfg *Config) *Coordinator {
	t.Helper()

	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.Binder == nil {
		c.Binder = func(string) (Engine, error) { return engine, nil }
	}

	coord := New(buf, &c)
	t.Cleanup(func() { _ = coord.Close() })
	return coord
}

func applyEdit(ctx context.Context, c *Coordinator, b *testBuffer, text string) error {
	if err := c.BeforeEdit(ctx); err != nil {
		return err
	}
	b.set(text)
	return c.AfterEdit()
}

func edit(t *testing.T, c *Coordinator, b *testBuffer, text string) {
	t.Helper()
	require.NoError(t, applyEdit(context.Background(), c, b, text))
}

func latest(t *testing.T, c *Coordinator) *types.ParseResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := c.Latest(ctx)
	require.NoError(t, err)
	return result
}

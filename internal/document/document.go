package document

import (
	"context"
	"fmt"
	"sync"

	"github.com/dshills/livedoc/internal/reparse"
	"github.com/dshills/livedoc/pkg/types"
)

// Position is a zero-based line and UTF-16 character offset
type Position struct {
	Line      int
	Character int
}

// Range is a half-open span of positions
type Range struct {
	Start Position
	End   Position
}

// Change is one edit. A nil Range replaces the whole text.
type Change struct {
	Range *Range
	Text  string
}

// Document couples a Buffer with the coordinator that keeps its model
// current. It is the only writer of its buffer and brackets every mutation
// with BeforeEdit/AfterEdit.
type Document struct {
	buffer *Buffer
	coord  *reparse.Coordinator

	editMu sync.Mutex // one editing goroutine at a time
}

// Open creates an empty document and applies text as its first edit, so the
// engine binds before Open returns. The gate measures the empty buffer, so
// that first parse always runs inline and Open returns with a fresh model,
// whatever the size of text. Later edits of a large document reparse in the
// background. listeners are subscribed before the first edit.
func Open(ctx context.Context, path, text string, cfg *reparse.Config, listeners ...reparse.Listener) (*Document, error) {
	d := &Document{buffer: NewBuffer(path, "")}
	d.coord = reparse.New(d.buffer, cfg)
	for _, l := range listeners {
		d.coord.Subscribe(l)
	}

	if err := d.SetText(ctx, text); err != nil {
		_ = d.coord.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return d, nil
}

// Path returns the document path
func (d *Document) Path() string { return d.buffer.Path() }

// Text returns the current text
func (d *Document) Text() string { return d.buffer.Text() }

// LineCount returns the current line count
func (d *Document) LineCount() int { return d.buffer.LineCount() }

// Version returns the number of edits applied
func (d *Document) Version() uint64 { return d.buffer.Version() }

// Buffer returns the underlying buffer for read access
func (d *Document) Buffer() *Buffer { return d.buffer }

// Replace replaces length bytes at offset with text
func (d *Document) Replace(ctx context.Context, offset, length int, text string) error {
	d.editMu.Lock()
	defer d.editMu.Unlock()

	if err := d.buffer.checkRange(offset, length); err != nil {
		return err
	}
	return d.edit(ctx, offset, length, text)
}

// Insert inserts text at offset
func (d *Document) Insert(ctx context.Context, offset int, text string) error {
	return d.Replace(ctx, offset, 0, text)
}

// Delete removes length bytes at offset
func (d *Document) Delete(ctx context.Context, offset, length int) error {
	return d.Replace(ctx, offset, length, "")
}

// SetText replaces the whole text
func (d *Document) SetText(ctx context.Context, text string) error {
	d.editMu.Lock()
	defer d.editMu.Unlock()
	return d.edit(ctx, 0, d.buffer.Len(), text)
}

// Apply applies changes in order. Each change is a separate edit, and the
// positions of a change refer to the text after the previous one.
func (d *Document) Apply(ctx context.Context, changes ...Change) error {
	for i, change := range changes {
		var err error
		if change.Range == nil {
			err = d.SetText(ctx, change.Text)
		} else {
			err = d.ApplyChange(ctx, *change.Range, change.Text)
		}
		if err != nil {
			return fmt.Errorf("change %d: %w", i, err)
		}
	}
	return nil
}

// ApplyChange replaces the text in r
func (d *Document) ApplyChange(ctx context.Context, r Range, text string) error {
	d.editMu.Lock()
	defer d.editMu.Unlock()

	start, err := d.buffer.OffsetAt(r.Start.Line, r.Start.Character)
	if err != nil {
		return err
	}
	end, err := d.buffer.OffsetAt(r.End.Line, r.End.Character)
	if err != nil {
		return err
	}
	if end < start {
		return fmt.Errorf("%w: range end before start", ErrOutOfRange)
	}
	return d.edit(ctx, start, end-start, text)
}

func (d *Document) edit(ctx context.Context, offset, length int, text string) error {
	if err := d.coord.BeforeEdit(ctx); err != nil {
		return err
	}
	d.buffer.replace(offset, length, text)
	return d.coord.AfterEdit()
}

// Latest blocks until the model reflects every edit and returns the result
func (d *Document) Latest(ctx context.Context) (*types.ParseResult, error) {
	return d.coord.Latest(ctx)
}

// Await is Latest plus the freshness of the returned result, read together
func (d *Document) Await(ctx context.Context) (*types.ParseResult, bool, error) {
	return d.coord.Await(ctx)
}

// LatestModel is Latest projected into the read-only model
func (d *Document) LatestModel(ctx context.Context) (*types.Model, error) {
	return d.coord.LatestModel(ctx)
}

// Current returns the published result without waiting
func (d *Document) Current() (*types.ParseResult, bool) {
	return d.coord.Current()
}

// IsFresh reports whether the published model reflects the current text
func (d *Document) IsFresh() bool { return d.coord.IsFresh() }

// State returns the coordinator state
func (d *Document) State() reparse.State { return d.coord.State() }

// Stats returns the coordinator counters
func (d *Document) Stats() reparse.Stats { return d.coord.Stats() }

// Subscribe registers a listener for published results
func (d *Document) Subscribe(l reparse.Listener) func() {
	return d.coord.Subscribe(l)
}

// Close stops the coordinator. Further edits return reparse.ErrClosed.
func (d *Document) Close() error {
	return d.coord.Close()
}

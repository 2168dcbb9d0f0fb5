package document

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/dshills/livedoc/internal/reparse"
)

// ErrOutOfRange is returned for offsets or positions outside the buffer
var ErrOutOfRange = errors.New("position out of range")

// Buffer holds the live text of one document. Only Document writes to it;
// any goroutine may read it.
type Buffer struct {
	path string

	mu      sync.RWMutex
	text    []byte
	lines   int
	version uint64
}

// NewBuffer creates a buffer at version 0
func NewBuffer(path, text string) *Buffer {
	b := &Buffer{path: path, text: []byte(text)}
	b.lines = bytes.Count(b.text, []byte{'\n'}) + 1
	return b
}

// Path returns the document path
func (b *Buffer) Path() string {
	return b.path
}

// Text returns a copy of the current text
func (b *Buffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return string(b.text)
}

// Bytes returns a copy of the current text
func (b *Buffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bytes.Clone(b.text)
}

// Len returns the text length in bytes
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.text)
}

// LineCount returns the number of newline characters plus one
func (b *Buffer) LineCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lines
}

// Version returns the number of edits applied so far
func (b *Buffer) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// Snapshot returns the text and the version it belongs to
func (b *Buffer) Snapshot() reparse.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return reparse.Snapshot{Content: bytes.Clone(b.text), Version: b.version}
}

// OffsetAt converts a zero-based line and UTF-16 character position to a byte
// offset. A character past the end of the line clamps to the line end.
func (b *Buffer) OffsetAt(line, character int) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return offsetAt(b.text, line, character)
}

func (b *Buffer) checkRange(offset, length int) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if offset < 0 || length < 0 || offset+length > len(b.text) {
		return fmt.Errorf("%w: [%d, %d) in buffer of %d bytes", ErrOutOfRange, offset, offset+length, len(b.text))
	}
	return nil
}

// replace swaps text[offset:offset+length] for text and bumps the version.
// The range must have been checked.
func (b *Buffer) replace(offset, length int, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := b.text[offset : offset+length]
	b.lines += bytes.Count([]byte(text), []byte{'\n'}) - bytes.Count(removed, []byte{'\n'})

	next := make([]byte, 0, len(b.text)-length+len(text))
	next = append(next, b.text[:offset]...)
	next = append(next, text...)
	next = append(next, b.text[offset+length:]...)
	b.text = next
	b.version++
}

func offsetAt(text []byte, line, character int) (int, error) {
	if line < 0 || character < 0 {
		return 0, fmt.Errorf("%w: line %d character %d", ErrOutOfRange, line, character)
	}

	start := 0
	for l := 0; l < line; l++ {
		i := bytes.IndexByte(text[start:], '\n')
		if i < 0 {
			return 0, fmt.Errorf("%w: line %d beyond end of buffer", ErrOutOfRange, line)
		}
		start += i + 1
	}

	offset := start
	units := 0
	for offset < len(text) && units < character {
		r, size := utf8.DecodeRune(text[offset:])
		if r == '\n' {
			break
		}
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		units += n
		offset += size
	}
	return offset, nil
}

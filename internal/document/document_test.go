package document

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/livedoc/internal/reparse"
	"github.com/dshills/livedoc/pkg/types"
)

const shapes = `package shapes

type Rect struct {
	W, H float64
}

func (r Rect) Area() float64 {
	return r.W * r.H
}
`

func openTestDocument(t *testing.T, text string, cfg *reparse.Config) *Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shapes.go")
	doc, err := Open(context.Background(), path, text, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = doc.Close() })
	return doc
}

func TestOpen(t *testing.T) {
	doc := openTestDocument(t, shapes, nil)

	assert.Equal(t, uint64(1), doc.Version())
	assert.Equal(t, 10, doc.LineCount())
	assert.True(t, doc.IsFresh())

	result, err := doc.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "shapes", result.PackageName)
	assert.Equal(t, types.ModeInline, result.Mode)
	assert.Equal(t, uint64(1), result.Version)

	model, err := doc.LatestModel(context.Background())
	require.NoError(t, err)
	decl, ok := model.Lookup("Rect")
	require.True(t, ok)
	assert.Len(t, decl.Children, 3) // W, H, Area
}

func TestOpen_LargeDocumentParsesInline(t *testing.T) {
	doc := openTestDocument(t, shapes, &reparse.Config{SyncLineThreshold: 5})
	require.GreaterOrEqual(t, doc.LineCount(), 5)

	result, fresh := doc.Current()
	require.NotNil(t, result)
	assert.True(t, fresh)
	assert.Equal(t, types.ModeInline, result.Mode)

	result, fresh, err := doc.Await(context.Background())
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, uint64(1), result.Version)
}

func TestOpen_RelativePath(t *testing.T) {
	_, err := Open(context.Background(), "shapes.go", shapes, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, reparse.ErrBinding)
}

func TestDocument_Edits(t *testing.T) {
	doc := openTestDocument(t, "package a\n", nil)
	ctx := context.Background()

	require.NoError(t, doc.Insert(ctx, doc.Buffer().Len(), "\nfunc Hello() {}\n"))
	assert.Equal(t, "package a\n\nfunc Hello() {}\n", doc.Text())

	offset := len("package a\n\nfunc ")
	require.NoError(t, doc.Replace(ctx, offset, len("Hello"), "Goodbye"))

	result, err := doc.Latest(ctx)
	require.NoError(t, err)
	require.Len(t, result.Symbols, 1)
	assert.Equal(t, "Goodbye", result.Symbols[0].Name)
	assert.Equal(t, uint64(3), result.Version)

	require.NoError(t, doc.Delete(ctx, len("package a\n"), doc.Buffer().Len()-len("package a\n")))
	assert.Equal(t, "package a\n", doc.Text())
	assert.Equal(t, 2, doc.LineCount())

	result, err = doc.Latest(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Symbols)
}

func TestDocument_OutOfRangeLeavesModelFresh(t *testing.T) {
	doc := openTestDocument(t, "package a\n", nil)
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"negative offset", func() error { return doc.Insert(ctx, -1, "x") }},
		{"past end", func() error { return doc.Insert(ctx, 100, "x") }},
		{"delete past end", func() error { return doc.Delete(ctx, 5, 50) }},
		{"line past end", func() error {
			return doc.ApplyChange(ctx, Range{Start: Position{Line: 9}, End: Position{Line: 9}}, "x")
		}},
		{"inverted range", func() error {
			return doc.ApplyChange(ctx, Range{Start: Position{Line: 0, Character: 5}, End: Position{Line: 0, Character: 1}}, "x")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			assert.ErrorIs(t, err, ErrOutOfRange)
			assert.Equal(t, uint64(1), doc.Version())
			assert.True(t, doc.IsFresh())
		})
	}
}

func TestDocument_ApplyChange(t *testing.T) {
	doc := openTestDocument(t, "package a\n\nvar s = \"héllo\"\n", nil)
	ctx := context.Background()

	// Replace "llo" after the two-byte é; positions count UTF-16 units
	err := doc.ApplyChange(ctx, Range{
		Start: Position{Line: 2, Character: 11},
		End:   Position{Line: 2, Character: 14},
	}, "y")
	require.NoError(t, err)
	assert.Equal(t, "package a\n\nvar s = \"héy\"\n", doc.Text())
}

func TestDocument_Apply(t *testing.T) {
	doc := openTestDocument(t, "package a\n", nil)
	ctx := context.Background()

	err := doc.Apply(ctx,
		Change{Text: "package b\n"},
		Change{Range: &Range{Start: Position{Line: 1}, End: Position{Line: 1}}, Text: "const X = 1\n"},
	)
	require.NoError(t, err)
	assert.Equal(t, "package b\nconst X = 1\n", doc.Text())
	assert.Equal(t, uint64(3), doc.Version())

	result, err := doc.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", result.PackageName)
	require.Len(t, result.Symbols, 1)
	assert.Equal(t, types.KindConst, result.Symbols[0].Kind)
}

func TestDocument_BackgroundReparse(t *testing.T) {
	doc := openTestDocument(t, shapes, &reparse.Config{
		SyncLineThreshold: 5,
		Debounce:          10 * time.Millisecond,
	})
	ctx := context.Background()

	// Opening parsed inline: the empty buffer was below the threshold
	require.NoError(t, doc.Insert(ctx, doc.Buffer().Len(), "\nfunc Perimeter() float64 { return 0 }\n"))

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	result, err := doc.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.ModeBackground, result.Mode)
	assert.Equal(t, doc.Version(), result.Version)

	model, err := doc.LatestModel(ctx)
	require.NoError(t, err)
	_, ok := model.Lookup("Perimeter")
	assert.True(t, ok)

	stats := doc.Stats()
	assert.Equal(t, int64(1), stats.InlineReparses)
	assert.Equal(t, int64(1), stats.BackgroundReparses)
}

func TestDocument_SyntaxErrorsAreModelData(t *testing.T) {
	doc := openTestDocument(t, "package a\n", nil)
	ctx := context.Background()

	require.NoError(t, doc.SetText(ctx, "package a\n\nfunc Broken( {\n"))

	model, err := doc.LatestModel(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, model.Diagnostics)
	assert.True(t, doc.IsFresh())
}

func TestDocument_Close(t *testing.T) {
	doc := openTestDocument(t, "package a\n", nil)
	require.NoError(t, doc.Close())

	err := doc.Insert(context.Background(), 0, "// x\n")
	assert.ErrorIs(t, err, reparse.ErrClosed)
	assert.Equal(t, "package a\n", doc.Text())
}

func TestDocument_SubscribeAtOpen(t *testing.T) {
	var got []uint64
	path := filepath.Join(t.TempDir(), "a.go")
	doc, err := Open(context.Background(), path, "package a\n", nil,
		reparse.ListenerFunc(func(r *types.ParseResult) { got = append(got, r.Version) }))
	require.NoError(t, err)
	defer doc.Close()

	require.NoError(t, doc.Insert(context.Background(), 0, "// doc\n"))
	assert.Equal(t, []uint64{1, 2}, got)
}

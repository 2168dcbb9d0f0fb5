package lsp

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/dshills/livedoc/internal/document"
	"github.com/dshills/livedoc/internal/workspace"
	"github.com/dshills/livedoc/pkg/types"
)

type notifications struct {
	mu     sync.Mutex
	params []protocol.PublishDiagnosticsParams
}

func (n *notifications) notify(method string, params any) {
	if method != "textDocument/publishDiagnostics" {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.params = append(n.params, params.(protocol.PublishDiagnosticsParams))
}

func (n *notifications) last() protocol.PublishDiagnosticsParams {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.params[len(n.params)-1]
}

func (n *notifications) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.params)
}

func newTestServer(t *testing.T) (*Server, *glsp.Context, *notifications) {
	t.Helper()
	ws, err := workspace.New(workspace.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Shutdown() })

	n := &notifications{}
	return NewServer(ws), &glsp.Context{Notify: n.notify}, n
}

func TestURIConversion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dir with space", "a.go")

	uri := pathToURI(path)
	assert.Contains(t, uri, "file://")

	back, err := uriToPath(uri)
	require.NoError(t, err)
	assert.Equal(t, path, back)

	_, err = uriToPath("https://example.com/a.go")
	assert.Error(t, err)
}

func TestToChanges(t *testing.T) {
	changes, err := toChanges([]any{
		protocol.TextDocumentContentChangeEventWhole{Text: "package a\n"},
		protocol.TextDocumentContentChangeEvent{
			Range: &protocol.Range{
				Start: protocol.Position{Line: 0, Character: 8},
				End:   protocol.Position{Line: 0, Character: 9},
			},
			Text: "b",
		},
	})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Nil(t, changes[0].Range)
	assert.Equal(t, &document.Range{
		Start: document.Position{Line: 0, Character: 8},
		End:   document.Position{Line: 0, Character: 9},
	}, changes[1].Range)

	_, err = toChanges([]any{"nonsense"})
	assert.Error(t, err)
}

func TestToDiagnostics(t *testing.T) {
	diagnostics := toDiagnostics([]types.ParseError{
		{Line: 3, Column: 7, Message: "syntax error: unexpected }"},
		{Line: 0, Column: 0, Message: "whole file"},
	})
	require.Len(t, diagnostics, 2)

	assert.Equal(t, protocol.Position{Line: 2, Character: 6}, diagnostics[0].Range.Start)
	assert.Equal(t, "syntax error: unexpected }", diagnostics[0].Message)
	assert.Equal(t, protocol.DiagnosticSeverityError, *diagnostics[0].Severity)
	assert.Equal(t, protocol.Position{}, diagnostics[1].Range.Start)
}

func TestToDocumentSymbols(t *testing.T) {
	result := &types.ParseResult{
		Symbols: []types.Symbol{
			{Name: "Rect", Kind: types.KindStruct, Start: types.Position{Line: 3, Column: 6}, End: types.Position{Line: 5, Column: 2}},
			{Name: "W", Kind: types.KindField, Parent: "Rect", Start: types.Position{Line: 4, Column: 2}},
			{Name: "New", Kind: types.KindFunction, Signature: "func New() Rect"},
		},
	}

	symbols := toDocumentSymbols(result.Model())
	require.Len(t, symbols, 2)
	assert.Equal(t, "Rect", symbols[0].Name)
	assert.Equal(t, protocol.SymbolKindStruct, symbols[0].Kind)
	assert.Equal(t, protocol.UInteger(2), symbols[0].Range.Start.Line)
	require.Len(t, symbols[0].Children, 1)
	assert.Equal(t, protocol.SymbolKindField, symbols[0].Children[0].Kind)
	require.NotNil(t, symbols[1].Detail)
	assert.Equal(t, "func New() Rect", *symbols[1].Detail)
}

func TestInitialize(t *testing.T) {
	ls, ctx, _ := newTestServer(t)

	res, err := ls.initialize(ctx, &protocol.InitializeParams{})
	require.NoError(t, err)

	init, ok := res.(protocol.InitializeResult)
	require.True(t, ok)
	assert.Equal(t, lsName, init.ServerInfo.Name)
	syncOpts, ok := init.Capabilities.TextDocumentSync.(*protocol.TextDocumentSyncOptions)
	require.True(t, ok)
	assert.Equal(t, protocol.TextDocumentSyncKindIncremental, *syncOpts.Change)
	assert.NotNil(t, init.Capabilities.DocumentSymbolProvider)
}

func TestDocumentLifecycle(t *testing.T) {
	ls, ctx, n := newTestServer(t)
	path := filepath.Join(t.TempDir(), "a.go")
	uri := pathToURI(path)

	err := ls.textDocumentDidOpen(ctx, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, LanguageID: "go", Version: 1, Text: "package a\n\nfunc F( {\n"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, n.count())
	assert.Equal(t, uri, n.last().URI)
	assert.NotEmpty(t, n.last().Diagnostics)

	// close the parameter list
	err = ls.textDocumentDidChange(ctx, &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
			Version:                2,
		},
		ContentChanges: []any{
			protocol.TextDocumentContentChangeEvent{
				Range: &protocol.Range{
					Start: protocol.Position{Line: 2, Character: 7},
					End:   protocol.Position{Line: 2, Character: 7},
				},
				Text: ")",
			},
			protocol.TextDocumentContentChangeEvent{
				Range: &protocol.Range{
					Start: protocol.Position{Line: 3, Character: 0},
					End:   protocol.Position{Line: 3, Character: 0},
				},
				Text: "}\n",
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n.count())
	assert.Empty(t, n.last().Diagnostics)

	res, err := ls.textDocumentDocumentSymbol(ctx, &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	})
	require.NoError(t, err)
	symbols := res.([]protocol.DocumentSymbol)
	require.Len(t, symbols, 1)
	assert.Equal(t, "F", symbols[0].Name)

	text := "package a\n\nvar V = 1\n"
	err = ls.textDocumentDidSave(ctx, &protocol.DidSaveTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Text:         &text,
	})
	require.NoError(t, err)
	doc, err := ls.workspace.Get(path)
	require.NoError(t, err)
	assert.Equal(t, text, doc.Text())

	err = ls.textDocumentDidClose(ctx, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	})
	require.NoError(t, err)
	assert.Empty(t, n.last().Diagnostics)
	_, err = ls.workspace.Get(path)
	assert.ErrorIs(t, err, workspace.ErrNotOpen)
}

func TestDidOpen_AlreadyLoaded(t *testing.T) {
	ls, ctx, _ := newTestServer(t)
	path := filepath.Join(t.TempDir(), "a.go")

	_, err := ls.workspace.Open(context.Background(), path, "package old\n")
	require.NoError(t, err)

	err = ls.textDocumentDidOpen(ctx, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: pathToURI(path), Text: "package fresh\n"},
	})
	require.NoError(t, err)

	doc, err := ls.workspace.Get(path)
	require.NoError(t, err)
	assert.Equal(t, "package fresh\n", doc.Text())
}

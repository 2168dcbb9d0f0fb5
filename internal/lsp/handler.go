package lsp

import (
	con "context"
	"errors"
	"time"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/dshills/livedoc/internal/document"
	"github.com/dshills/livedoc/internal/workspace"
)

// How long documentSymbol waits for a pending background reparse
const symbolTimeout = 5 * time.Second

func (ls *Server) initialize(
	context *glsp.Context,
	params *protocol.InitializeParams,
) (any, error) {
	ls.bind(context)

	capabilities := ls.handler.CreateServerCapabilities()
	syncKind := protocol.TextDocumentSyncKindIncremental
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &protocol.True,
		Change:    &syncKind,
		Save:      &protocol.SaveOptions{IncludeText: &protocol.True},
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lsName,
			Version: &version,
		},
	}, nil
}

func (ls *Server) initialized(
	context *glsp.Context,
	params *protocol.InitializedParams,
) error {
	ls.bind(context)
	ls.log.Infof("client initialized")
	return nil
}

func (ls *Server) shutdown(context *glsp.Context) error {
	ls.log.Infof("client requested shutdown")
	protocol.SetTraceValue(protocol.TraceValueOff)
	return nil
}

func (ls *Server) setTrace(context *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

func (ls *Server) textDocumentDidOpen(
	context *glsp.Context,
	params *protocol.DidOpenTextDocumentParams,
) error {
	ls.bind(context)

	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return err
	}

	_, err = ls.workspace.Open(con.Background(), path, params.TextDocument.Text)
	if errors.Is(err, workspace.ErrAlreadyOpen) {
		// Loaded from disk earlier; the client's text wins
		return ls.workspace.Edit(con.Background(), path, document.Change{Text: params.TextDocument.Text})
	}
	return err
}

func (ls *Server) textDocumentDidChange(
	context *glsp.Context,
	params *protocol.DidChangeTextDocumentParams,
) error {
	ls.bind(context)

	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return err
	}

	changes, err := toChanges(params.ContentChanges)
	if err != nil {
		return err
	}
	return ls.workspace.Edit(con.Background(), path, changes...)
}

func (ls *Server) textDocumentDidSave(
	context *glsp.Context,
	params *protocol.DidSaveTextDocumentParams,
) error {
	if params.Text == nil {
		return nil
	}

	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return err
	}
	doc, err := ls.workspace.Get(path)
	if err != nil {
		return err
	}
	if doc.Text() == *params.Text {
		return nil
	}
	return doc.SetText(con.Background(), *params.Text)
}

func (ls *Server) textDocumentDidClose(
	context *glsp.Context,
	params *protocol.DidCloseTextDocumentParams,
) error {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return err
	}

	if err := ls.workspace.Close(path); err != nil {
		return err
	}
	ls.publish(params.TextDocument.URI, nil)
	return nil
}

func (ls *Server) textDocumentDocumentSymbol(
	context *glsp.Context,
	params *protocol.DocumentSymbolParams,
) (any, error) {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	doc, err := ls.workspace.Get(path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := con.WithTimeout(con.Background(), symbolTimeout)
	defer cancel()

	model, err := doc.LatestModel(ctx)
	if err != nil {
		return nil, err
	}
	return toDocumentSymbols(model), nil
}

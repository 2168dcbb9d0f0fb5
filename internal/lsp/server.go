package lsp

import (
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"github.com/dshills/livedoc/internal/reparse"
	"github.com/dshills/livedoc/internal/workspace"
	"github.com/dshills/livedoc/pkg/types"
)

const lsName = "livedoc"

var version = "1.0.0"

// Server is a language server over a workspace. Every published model is
// pushed to the client as diagnostics.
type Server struct {
	workspace *workspace.Workspace
	handler   protocol.Handler
	log       commonlog.Logger

	mu          sync.Mutex
	notify      glsp.NotifyFunc
	unsubscribe func()
}

// NewServer creates a language server for ws
func NewServer(ws *workspace.Workspace) *Server {
	ls := &Server{
		workspace: ws,
		log:       commonlog.GetLogger("livedoc.lsp"),
	}

	ls.handler = protocol.Handler{
		Initialize:                 ls.initialize,
		Initialized:                ls.initialized,
		Shutdown:                   ls.shutdown,
		SetTrace:                   ls.setTrace,
		TextDocumentDidOpen:        ls.textDocumentDidOpen,
		TextDocumentDidChange:      ls.textDocumentDidChange,
		TextDocumentDidSave:        ls.textDocumentDidSave,
		TextDocumentDidClose:       ls.textDocumentDidClose,
		TextDocumentDocumentSymbol: ls.textDocumentDocumentSymbol,
	}

	ls.unsubscribe = ws.Subscribe(diagnosticsPublisher{ls})
	return ls
}

// RunStdio serves the protocol on stdin/stdout until the client exits
func (ls *Server) RunStdio() error {
	defer ls.unsubscribe()
	return server.NewServer(&ls.handler, lsName, false).RunStdio()
}

// bind remembers how to reach the client
func (ls *Server) bind(context *glsp.Context) {
	if context == nil || context.Notify == nil {
		return
	}
	ls.mu.Lock()
	ls.notify = context.Notify
	ls.mu.Unlock()
}

func (ls *Server) publish(uri protocol.DocumentUri, diagnostics []protocol.Diagnostic) {
	ls.mu.Lock()
	notify := ls.notify
	ls.mu.Unlock()
	if notify == nil {
		return
	}

	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}
	notify("textDocument/publishDiagnostics", protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnosticsPublisher pushes the diagnostics of every result to the client
type diagnosticsPublisher struct {
	ls *Server
}

func (p diagnosticsPublisher) ReparseFinished(result *types.ParseResult) {
	p.ls.publish(pathToURI(result.Path), toDiagnostics(result.Errors))
}

func (p diagnosticsPublisher) ReparseFailed(f *reparse.Failure) {
	p.ls.log.Warningf("reparse of %s failed: %s", f.Path, f.Err.Error())
}

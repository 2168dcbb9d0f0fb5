package mcp

import (
	"context"
	"errors"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/tliron/commonlog"

	"github.com/dshills/livedoc/internal/config"
	"github.com/dshills/livedoc/internal/storage"
	"github.com/dshills/livedoc/internal/workspace"
)

const (
	// ServerName is the MCP server name
	ServerName = "livedoc"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp       *server.MCPServer
	cfg       *config.Config
	workspace *workspace.Workspace
	storage   storage.Storage // nil when the journal is disabled
	log       commonlog.Logger
}

// NewServer creates an MCP server exposing ws. store may be nil, in which
// case the journal tools report that no journal is configured.
func NewServer(cfg *config.Config, ws *workspace.Workspace, store storage.Storage) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if ws == nil {
		return nil, errors.New("workspace is required")
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		mcp:       mcpServer,
		cfg:       cfg,
		workspace: ws,
		storage:   store,
		log:       commonlog.GetLogger("livedoc.mcp"),
	}
	s.registerTools()

	return s, nil
}

// Serve runs the MCP server on stdio and blocks until stdin closes or ctx is
// cancelled
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	s.log.Noticef("serving MCP on stdio")
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(openDocumentTool(), s.handleOpenDocument)
	s.mcp.AddTool(editDocumentTool(), s.handleEditDocument)
	s.mcp.AddTool(getModelTool(), s.handleGetModel)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(reparseHistoryTool(), s.handleReparseHistory)
	s.mcp.AddTool(loadWorkspaceTool(), s.handleLoadWorkspace)
	s.mcp.AddTool(closeDocumentTool(), s.handleCloseDocument)
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/livedoc/internal/document"
	"github.com/dshills/livedoc/internal/reparse"
	"github.com/dshills/livedoc/internal/storage"
	"github.com/dshills/livedoc/internal/workspace"
	"github.com/dshills/livedoc/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams   = -32602 // Invalid method parameters
	ErrorCodeInternalError   = -32603 // Internal JSON-RPC error
	ErrorCodeNotOpen         = -32001 // Document is not open
	ErrorCodeLoadInProgress  = -32002 // Another load_workspace is already running
	ErrorCodeAlreadyOpen     = -32003 // Document is already open
	ErrorCodeWaitInterrupted = -32004 // Waiting for a fresh model timed out
	ErrorCodeNoModel         = -32005 // No model has been published yet
	ErrorCodeBindingFailed   = -32006 // No parse engine could be bound
	ErrorCodeNoJournal       = -32007 // The reparse journal is disabled
)

const (
	defaultModelTimeout = 5 * time.Second
	maxModelTimeoutMs   = 60000
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// handleOpenDocument handles the open_document tool invocation
func (s *Server) handleOpenDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requireDocumentPath(args)
	if err != nil {
		return nil, err
	}

	var doc *document.Document
	if text, ok := args["text"].(string); ok {
		doc, err = s.workspace.Open(ctx, path, text)
	} else {
		doc, err = s.workspace.OpenFile(ctx, path)
	}
	if err != nil {
		return nil, s.toMCPError("failed to open document", err)
	}

	return mcp.NewToolResultText(formatJSON(s.documentSummary(doc))), nil
}

// handleEditDocument handles the edit_document tool invocation
func (s *Server) handleEditDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requireDocumentPath(args)
	if err != nil {
		return nil, err
	}

	text, ok := args["text"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "text parameter is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing or not a string",
		})
	}

	change := document.Change{Text: text}
	_, hasStart := args["start"]
	_, hasEnd := args["end"]
	if hasStart || hasEnd {
		start, err := getPosition(args, "start")
		if err != nil {
			return nil, err
		}
		end, err := getPosition(args, "end")
		if err != nil {
			return nil, err
		}
		change.Range = &document.Range{Start: start, End: end}
	}

	doc, err := s.workspace.Get(path)
	if err != nil {
		return nil, s.toMCPError("failed to edit document", err)
	}
	if err := doc.Apply(ctx, change); err != nil {
		return nil, s.toMCPError("failed to edit document", err)
	}

	return mcp.NewToolResultText(formatJSON(s.documentSummary(doc))), nil
}

// handleGetModel handles the get_model tool invocation
func (s *Server) handleGetModel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requireDocumentPath(args)
	if err != nil {
		return nil, err
	}

	wait := getBoolDefault(args, "wait", true)
	timeoutMs := getIntDefault(args, "timeout_ms", int(defaultModelTimeout/time.Millisecond))
	if timeoutMs < 1 || timeoutMs > maxModelTimeoutMs {
		return nil, newMCPError(ErrorCodeInvalidParams, "timeout_ms must be between 1 and 60000", map[string]interface{}{
			"param": "timeout_ms",
			"value": timeoutMs,
		})
	}

	doc, err := s.workspace.Get(path)
	if err != nil {
		return nil, s.toMCPError("failed to get model", err)
	}

	var (
		result *types.ParseResult
		fresh  bool
	)
	if wait {
		waitCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
		result, fresh, err = doc.Await(waitCtx)
		if err != nil {
			return nil, s.toMCPError("failed to get model", err)
		}
	} else {
		result, fresh = doc.Current()
		if result == nil {
			return nil, s.toMCPError("failed to get model", reparse.ErrNoResult)
		}
	}

	return mcp.NewToolResultText(formatJSON(formatModel(result, fresh))), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	path := getStringDefault(args, "path", "")
	if path == "" {
		return mcp.NewToolResultText(formatJSON(s.workspaceStatus())), nil
	}
	if !filepath.IsAbs(path) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": ErrPathNotAbsolute.Error(),
		})
	}

	response := map[string]interface{}{
		"path": path,
		"open": false,
	}

	doc, err := s.workspace.Get(path)
	if err == nil {
		stats := doc.Stats()
		response["open"] = true
		response["document"] = s.documentSummary(doc)
		reparses := map[string]interface{}{
			"inline":          stats.InlineReparses,
			"background":      stats.BackgroundReparses,
			"superseded":      stats.Superseded,
			"failures":        stats.Failures,
			"listener_panics": stats.ListenerPanics,
			"listeners":       stats.Listeners,
			"last_duration":   stats.LastDuration.String(),
		}
		if stats.LastError != "" {
			reparses["last_error"] = stats.LastError
		}
		response["reparses"] = reparses
	}

	journaled := false
	if s.storage != nil {
		status, err := s.storage.GetStatus(ctx, path)
		switch {
		case err == nil:
			journaled = true
			response["journal"] = formatJournalStatus(status)
		case errors.Is(err, storage.ErrNotFound):
		default:
			return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	if doc == nil && !journaled {
		return nil, newMCPError(ErrorCodeNotOpen, "document is not open and has no journal entries", map[string]interface{}{
			"path": path,
		})
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleReparseHistory handles the reparse_history tool invocation
func (s *Server) handleReparseHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requireDocumentPath(args)
	if err != nil {
		return nil, err
	}

	limit := getIntDefault(args, "limit", defaultHistoryLimit)
	if limit < 1 || limit > maxHistoryLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 500", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	if s.storage == nil {
		return nil, newMCPError(ErrorCodeNoJournal, "reparse journal is disabled", nil)
	}

	reparses, err := s.storage.ListReparses(ctx, path, limit)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list reparses", map[string]interface{}{
			"error": err.Error(),
		})
	}

	entries := make([]map[string]interface{}, 0, len(reparses))
	for _, r := range reparses {
		entries = append(entries, formatReparse(r))
	}

	response := map[string]interface{}{
		"path":     path,
		"count":    len(entries),
		"reparses": entries,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleLoadWorkspace handles the load_workspace tool invocation
func (s *Server) handleLoadWorkspace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	opts := &workspace.LoadOptions{
		Workers:       s.cfg.LoadWorkers,
		IncludeTests:  getBoolDefault(args, "include_tests", true),
		IncludeVendor: getBoolDefault(args, "include_vendor", false),
	}

	stats, err := s.workspace.LoadDir(ctx, path, opts)
	if err != nil {
		return nil, s.toMCPError("load failed", err)
	}

	response := map[string]interface{}{
		"loaded":        true,
		"files_found":   stats.FilesFound,
		"files_opened":  stats.FilesOpened,
		"files_skipped": stats.FilesSkipped,
		"files_failed":  stats.FilesFailed,
		"duration_ms":   stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCloseDocument handles the close_document tool invocation
func (s *Server) handleCloseDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requireDocumentPath(args)
	if err != nil {
		return nil, err
	}

	if err := s.workspace.Close(path); err != nil {
		return nil, s.toMCPError("failed to close document", err)
	}

	response := map[string]interface{}{
		"closed": true,
		"path":   path,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Response builders

func (s *Server) documentSummary(doc *document.Document) map[string]interface{} {
	mode := types.ModeInline
	if doc.LineCount() >= s.cfg.SyncLineThreshold {
		mode = types.ModeBackground
	}
	return map[string]interface{}{
		"path":        doc.Path(),
		"version":     doc.Version(),
		"line_count":  doc.LineCount(),
		"state":       doc.State().String(),
		"fresh":       doc.IsFresh(),
		"reparse_via": string(mode),
	}
}

func (s *Server) workspaceStatus() map[string]interface{} {
	docs := s.workspace.Documents()
	return map[string]interface{}{
		"server":          ServerName,
		"version":         ServerVersion,
		"session_id":      s.workspace.SessionID(),
		"open_documents":  len(docs),
		"documents":       docs,
		"journal_enabled": s.storage != nil,
		"dropped_records": s.workspace.DroppedRecords(),
		"settings": map[string]interface{}{
			"debounce":            s.cfg.Debounce.String(),
			"sync_line_threshold": s.cfg.SyncLineThreshold,
			"backpressure":        s.cfg.Backpressure,
			"engine":              s.cfg.Engine,
		},
	}
}

func formatModel(result *types.ParseResult, fresh bool) map[string]interface{} {
	model := result.Model()

	declarations := make([]map[string]interface{}, 0, len(model.Declarations))
	for _, d := range model.Declarations {
		decl := formatSymbol(d.Symbol)
		if len(d.Children) > 0 {
			children := make([]map[string]interface{}, 0, len(d.Children))
			for _, c := range d.Children {
				children = append(children, formatSymbol(c))
			}
			decl["children"] = children
		}
		declarations = append(declarations, decl)
	}

	imports := make([]string, 0, len(model.Imports))
	for _, imp := range model.Imports {
		imports = append(imports, imp.Path)
	}

	diagnostics := make([]map[string]interface{}, 0, len(model.Diagnostics))
	for _, d := range model.Diagnostics {
		diagnostics = append(diagnostics, map[string]interface{}{
			"line":    d.Line,
			"column":  d.Column,
			"message": d.Message,
		})
	}

	return map[string]interface{}{
		"path":         model.Path,
		"version":      model.Version,
		"fresh":        fresh,
		"package":      model.PackageName,
		"module":       model.ModuleName,
		"engine":       result.Engine,
		"mode":         string(result.Mode),
		"parsed_at":    result.ParsedAt.Format(time.RFC3339Nano),
		"duration":     result.Duration.String(),
		"imports":      imports,
		"declarations": declarations,
		"diagnostics":  diagnostics,
	}
}

func formatSymbol(sym types.Symbol) map[string]interface{} {
	out := map[string]interface{}{
		"name":       sym.Name,
		"kind":       string(sym.Kind),
		"start_line": sym.Start.Line,
		"end_line":   sym.End.Line,
	}
	if sym.Signature != "" {
		out["signature"] = sym.Signature
	}
	return out
}

func formatJournalStatus(status *storage.DocumentStatus) map[string]interface{} {
	out := map[string]interface{}{
		"reparse_count":    status.ReparseCount,
		"failure_count":    status.FailureCount,
		"inline_count":     status.InlineCount,
		"background_count": status.BackgroundCount,
		"avg_duration":     status.AvgDuration.String(),
		"max_duration":     status.MaxDuration.String(),
		"database_size":    humanize.Bytes(uint64(max(status.DatabaseBytes, 0))),
		"health": map[string]interface{}{
			"database_accessible": status.Health.DatabaseAccessible,
			"schema_version":      status.Health.SchemaVersion,
		},
	}
	if doc := status.Document; doc != nil {
		out["module"] = doc.ModuleName
		out["opened"] = humanize.Time(doc.OpenedAt)
		if doc.ClosedAt != nil {
			out["closed"] = humanize.Time(*doc.ClosedAt)
		}
	}
	if status.LastReparse != nil {
		out["last_reparse"] = formatReparse(status.LastReparse)
	}
	return out
}

func formatReparse(r *storage.Reparse) map[string]interface{} {
	out := map[string]interface{}{
		"version":          r.Version,
		"mode":             r.Mode,
		"engine":           r.Engine,
		"success":          r.Success,
		"symbol_count":     r.SymbolCount,
		"diagnostic_count": r.DiagnosticCount,
		"line_count":       r.LineCount,
		"duration":         r.Duration.String(),
		"parsed_at":        r.ParsedAt.Format(time.RFC3339Nano),
		"age":              humanize.Time(r.ParsedAt),
		"session_id":       r.SessionID,
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	return out
}

// Helper functions

// toMCPError maps workspace and coordinator errors onto MCP error codes
func (s *Server) toMCPError(message string, err error) error {
	data := map[string]interface{}{"error": err.Error()}

	switch {
	case errors.Is(err, workspace.ErrNotOpen):
		return newMCPError(ErrorCodeNotOpen, "document is not open", data)
	case errors.Is(err, workspace.ErrAlreadyOpen):
		return newMCPError(ErrorCodeAlreadyOpen, "document is already open", data)
	case errors.Is(err, workspace.ErrLoadInProgress):
		return newMCPError(ErrorCodeLoadInProgress, "another load is in progress", data)
	case errors.Is(err, reparse.ErrWaitInterrupted):
		return newMCPError(ErrorCodeWaitInterrupted, "timed out waiting for a fresh model", data)
	case errors.Is(err, reparse.ErrNoResult):
		return newMCPError(ErrorCodeNoModel, "no model has been published", data)
	case errors.Is(err, reparse.ErrBinding):
		return newMCPError(ErrorCodeBindingFailed, "no parse engine for document", data)
	case errors.Is(err, document.ErrOutOfRange),
		errors.Is(err, types.ErrRelativePath),
		errors.Is(err, types.ErrMissingPath):
		return newMCPError(ErrorCodeInvalidParams, message, data)
	}

	s.log.Errorf("%s: %s", message, err.Error())
	return newMCPError(ErrorCodeInternalError, message, data)
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// requireDocumentPath extracts the absolute document path argument
func requireDocumentPath(args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if !filepath.IsAbs(path) {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": ErrPathNotAbsolute.Error(),
		})
	}
	return filepath.Clean(path), nil
}

// validatePath checks that a workspace root exists and holds Go files
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	// Check if path is absolute
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	// Check if path exists
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	// Check if it's a directory
	if !info.IsDir() {
		return ErrNotDirectory
	}

	// Stop at the first Go file
	errFound := errors.New("found")
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(p, ".go") {
			return errFound
		}
		return nil
	})
	if !errors.Is(err, errFound) {
		return ErrNoGoFiles
	}

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getPosition extracts a {line, character} object parameter
func getPosition(args map[string]interface{}, key string) (document.Position, error) {
	raw, ok := args[key].(map[string]interface{})
	if !ok {
		return document.Position{}, newMCPError(ErrorCodeInvalidParams, "start and end must be given together", map[string]interface{}{
			"param":  key,
			"reason": "missing or not an object",
		})
	}
	line := getIntDefault(raw, "line", -1)
	character := getIntDefault(raw, "character", -1)
	if line < 0 || character < 0 {
		return document.Position{}, newMCPError(ErrorCodeInvalidParams, "position requires non-negative line and character", map[string]interface{}{
			"param": key,
		})
	}
	return document.Position{Line: line, Character: character}, nil
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrNoGoFiles       = errors.New("directory does not contain Go files")
)

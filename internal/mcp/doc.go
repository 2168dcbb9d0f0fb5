// Package mcp implements the Model Context Protocol (MCP) server for livedoc.
//
// The MCP server lets AI coding assistants edit Go documents held in memory
// and read their parsed models while the edits are in flight:
//   - open_document: Open a document from text or from disk
//   - edit_document: Replace a range, or the whole text, of an open document
//   - get_model: Read declarations and diagnostics, waiting for a fresh model
//   - get_status: Reparse counters of a document, or a workspace summary
//   - reparse_history: Journaled reparses of a document, newest first
//   - load_workspace: Open every Go file under a directory
//   - close_document: Close a document and cancel its pending reparse
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is the default transport of the livedoc command:
//
//	livedoc --transport mcp
//
// # Freshness
//
// A model returned by get_model with wait=true (the default) reflects every
// edit made before the call. Small documents reparse inside edit_document, so
// the wait is immediate; documents at or above sync_line_threshold lines
// reparse after the debounce period, and get_model blocks until that reparse
// is published or timeout_ms elapses:
//
//	Request:
//	{
//	  "name": "get_model",
//	  "arguments": {"path": "/src/shapes/rect.go", "timeout_ms": 2000}
//	}
//
//	Response:
//	{
//	  "path": "/src/shapes/rect.go",
//	  "version": 7,
//	  "fresh": true,
//	  "package": "shapes",
//	  "mode": "background",
//	  "declarations": [{"name": "Rect", "kind": "struct", "children": [...]}],
//	  "diagnostics": []
//	}
//
// With wait=false the published model is returned immediately and "fresh"
// tells whether later edits are still pending.
//
// # Error Codes
//
// Failures are returned as MCPError values:
//
//	-32602  invalid parameters
//	-32603  internal error
//	-32001  document is not open
//	-32002  another load_workspace is running
//	-32003  document is already open
//	-32004  timed out waiting for a fresh model
//	-32005  no model has been published yet
//	-32006  no parse engine could be bound to the document
//	-32007  the reparse journal is disabled
package mcp

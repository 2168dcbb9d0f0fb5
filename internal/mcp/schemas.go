package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func pathProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func positionProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
		"properties": map[string]interface{}{
			"line": map[string]interface{}{
				"type":        "integer",
				"description": "Zero-based line",
				"minimum":     0,
			},
			"character": map[string]interface{}{
				"type":        "integer",
				"description": "Zero-based UTF-16 offset within the line",
				"minimum":     0,
			},
		},
		"required": []string{"line", "character"},
	}
}

// openDocumentTool returns the tool definition for open_document
func openDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "open_document",
		Description: "Open a Go source document and publish its first model. Without text the file is read from disk and followed for changes.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty("Absolute path of the document"),
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Initial content. If omitted, the file at path is read.",
				},
			},
			Required: []string{"path"},
		},
	}
}

// editDocumentTool returns the tool definition for edit_document
func editDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "edit_document",
		Description: "Replace a range of an open document, or its whole text when no range is given. Small documents reparse before the call returns; large ones reparse after a quiet period.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty("Absolute path of an open document"),
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Replacement text",
				},
				"start": positionProperty("Start of the replaced range"),
				"end":   positionProperty("End of the replaced range (exclusive)"),
			},
			Required: []string{"path", "text"},
		},
	}
}

// getModelTool returns the tool definition for get_model
func getModelTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_model",
		Description: "Return the declarations and diagnostics of an open document. By default waits until the model reflects every edit.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty("Absolute path of an open document"),
				"wait": map[string]interface{}{
					"type":        "boolean",
					"description": "If false, return the published model immediately even if it is stale",
					"default":     true,
				},
				"timeout_ms": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum time to wait for a fresh model",
					"default":     5000,
					"minimum":     1,
					"maximum":     60000,
				},
			},
			Required: []string{"path"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report the reparse state of an open document, or of the whole workspace when no path is given",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty("Absolute path of a document"),
			},
		},
	}
}

// reparseHistoryTool returns the tool definition for reparse_history
func reparseHistoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "reparse_history",
		Description: "List the most recent journaled reparses of a document, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty("Absolute path of a document"),
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of entries (1-500)",
					"default":     20,
					"minimum":     1,
					"maximum":     500,
				},
			},
			Required: []string{"path"},
		},
	}
}

// loadWorkspaceTool returns the tool definition for load_workspace
func loadWorkspaceTool() mcp.Tool {
	return mcp.Tool{
		Name:        "load_workspace",
		Description: "Open every Go file under a directory",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty("Absolute path to the directory"),
				"include_tests": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, open *_test.go files",
					"default":     true,
				},
				"include_vendor": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, open files under vendor/",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// closeDocumentTool returns the tool definition for close_document
func closeDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "close_document",
		Description: "Close an open document and cancel its pending reparse",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty("Absolute path of an open document"),
			},
			Required: []string{"path"},
		},
	}
}

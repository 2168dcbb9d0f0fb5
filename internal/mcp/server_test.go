package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/livedoc/internal/config"
	"github.com/dshills/livedoc/internal/storage"
	"github.com/dshills/livedoc/internal/workspace"
)

type handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func newTestServer(t *testing.T, withJournal bool) *Server {
	t.Helper()

	cfg := config.DefaultConfig()
	var store storage.Storage
	if withJournal {
		sqlite, err := storage.NewSQLiteStorage(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = sqlite.Close() })
		store = sqlite
	}

	ws, err := workspace.New(workspace.Options{
		Reparse: cfg.ReparseConfig(),
		Engine:  cfg.Engine,
		Storage: store,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Shutdown() })

	s, err := NewServer(cfg, ws, store)
	require.NoError(t, err)
	return s
}

func call(t *testing.T, h handler, args map[string]interface{}) (map[string]interface{}, error) {
	t.Helper()

	var req mcp.CallToolRequest
	req.Params.Arguments = args
	result, err := h(context.Background(), req)
	if err != nil {
		return nil, err
	}

	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out, nil
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	var mErr *MCPError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, code, mErr.Code)
}

func TestNewServer(t *testing.T) {
	s := newTestServer(t, false)
	assert.NotNil(t, s.mcp)
	assert.NotNil(t, s.workspace)
	assert.Nil(t, s.storage)

	_, err := NewServer(nil, nil, nil)
	assert.Error(t, err)
}

func TestOpenEditGetModel(t *testing.T) {
	s := newTestServer(t, false)
	path := filepath.Join(t.TempDir(), "shapes.go")

	out, err := call(t, s.handleOpenDocument, map[string]interface{}{
		"path": path,
		"text": "package shapes\n\ntype Rect struct {\n\tW, H float64\n}\n",
	})
	require.NoError(t, err)
	assert.Equal(t, path, out["path"])
	assert.Equal(t, float64(1), out["version"])
	assert.Equal(t, "inline", out["reparse_via"])
	assert.Equal(t, true, out["fresh"])

	// rename Rect to Box
	out, err = call(t, s.handleEditDocument, map[string]interface{}{
		"path":  path,
		"text":  "Box",
		"start": map[string]interface{}{"line": float64(2), "character": float64(5)},
		"end":   map[string]interface{}{"line": float64(2), "character": float64(9)},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(2), out["version"])

	out, err = call(t, s.handleGetModel, map[string]interface{}{"path": path})
	require.NoError(t, err)
	assert.Equal(t, "shapes", out["package"])
	assert.Equal(t, true, out["fresh"])
	assert.Equal(t, "inline", out["mode"])

	decls, ok := out["declarations"].([]interface{})
	require.True(t, ok)
	require.Len(t, decls, 1)
	box := decls[0].(map[string]interface{})
	assert.Equal(t, "Box", box["name"])
	assert.Equal(t, "struct", box["kind"])
	assert.Len(t, box["children"], 2)
}

func TestEditDocument_WholeText(t *testing.T) {
	s := newTestServer(t, false)
	path := filepath.Join(t.TempDir(), "a.go")

	_, err := call(t, s.handleOpenDocument, map[string]interface{}{"path": path, "text": "package a\n"})
	require.NoError(t, err)

	_, err = call(t, s.handleEditDocument, map[string]interface{}{"path": path, "text": "package b\n\nfunc F() {}\n"})
	require.NoError(t, err)

	out, err := call(t, s.handleGetModel, map[string]interface{}{"path": path, "wait": false})
	require.NoError(t, err)
	assert.Equal(t, "b", out["package"])
	assert.Len(t, out["declarations"], 1)
}

func TestEditDocument_Errors(t *testing.T) {
	s := newTestServer(t, false)
	path := filepath.Join(t.TempDir(), "a.go")

	_, err := call(t, s.handleEditDocument, map[string]interface{}{"path": path, "text": "x"})
	requireCode(t, err, ErrorCodeNotOpen)

	_, err = call(t, s.handleOpenDocument, map[string]interface{}{"path": path, "text": "package a\n"})
	require.NoError(t, err)

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing text", map[string]interface{}{"path": path}},
		{"start without end", map[string]interface{}{
			"path":  path,
			"text":  "x",
			"start": map[string]interface{}{"line": float64(0), "character": float64(0)},
		}},
		{"negative line", map[string]interface{}{
			"path":  path,
			"text":  "x",
			"start": map[string]interface{}{"line": float64(-1), "character": float64(0)},
			"end":   map[string]interface{}{"line": float64(0), "character": float64(0)},
		}},
		{"end before start", map[string]interface{}{
			"path":  path,
			"text":  "x",
			"start": map[string]interface{}{"line": float64(0), "character": float64(5)},
			"end":   map[string]interface{}{"line": float64(0), "character": float64(1)},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(t, s.handleEditDocument, tt.args)
			requireCode(t, err, ErrorCodeInvalidParams)
		})
	}
}

func TestOpenDocument_Errors(t *testing.T) {
	s := newTestServer(t, false)
	path := filepath.Join(t.TempDir(), "a.go")

	_, err := call(t, s.handleOpenDocument, map[string]interface{}{})
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = call(t, s.handleOpenDocument, map[string]interface{}{"path": "relative.go", "text": ""})
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = call(t, s.handleOpenDocument, map[string]interface{}{"path": path, "text": "package a\n"})
	require.NoError(t, err)
	_, err = call(t, s.handleOpenDocument, map[string]interface{}{"path": path, "text": "package a\n"})
	requireCode(t, err, ErrorCodeAlreadyOpen)

	_, err = call(t, s.handleOpenDocument, map[string]interface{}{"path": filepath.Join(t.TempDir(), "missing.go")})
	requireCode(t, err, ErrorCodeInternalError)
}

func TestOpenDocument_FromDisk(t *testing.T) {
	s := newTestServer(t, false)
	path := filepath.Join(t.TempDir(), "disk.go")
	require.NoError(t, os.WriteFile(path, []byte("package disk\n\nconst Answer = 42\n"), 0o644))

	out, err := call(t, s.handleOpenDocument, map[string]interface{}{"path": path})
	require.NoError(t, err)
	// three newline-terminated lines plus the empty last line
	assert.Equal(t, float64(4), out["line_count"])

	out, err = call(t, s.handleGetModel, map[string]interface{}{"path": path, "timeout_ms": float64(1000)})
	require.NoError(t, err)
	assert.Equal(t, "disk", out["package"])
}

func TestGetModel_Errors(t *testing.T) {
	s := newTestServer(t, false)
	path := filepath.Join(t.TempDir(), "a.go")

	_, err := call(t, s.handleGetModel, map[string]interface{}{"path": path})
	requireCode(t, err, ErrorCodeNotOpen)

	_, err = call(t, s.handleGetModel, map[string]interface{}{"path": path, "timeout_ms": float64(0)})
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestGetStatus(t *testing.T) {
	s := newTestServer(t, true)
	path := filepath.Join(t.TempDir(), "a.go")

	_, err := call(t, s.handleOpenDocument, map[string]interface{}{"path": path, "text": "package a\n"})
	require.NoError(t, err)

	out, err := call(t, s.handleGetStatus, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, ServerName, out["server"])
	assert.Equal(t, float64(1), out["open_documents"])
	assert.Equal(t, true, out["journal_enabled"])
	assert.Equal(t, s.workspace.SessionID(), out["session_id"])

	require.Eventually(t, func() bool {
		out, err = call(t, s.handleGetStatus, map[string]interface{}{"path": path})
		if err != nil {
			return false
		}
		_, ok := out["journal"]
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, true, out["open"])
	reparses := out["reparses"].(map[string]interface{})
	assert.Equal(t, float64(1), reparses["inline"])
	journal := out["journal"].(map[string]interface{})
	assert.Equal(t, float64(1), journal["reparse_count"])
	assert.NotEmpty(t, journal["database_size"])

	_, err = call(t, s.handleGetStatus, map[string]interface{}{"path": "relative.go"})
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = call(t, s.handleGetStatus, map[string]interface{}{"path": filepath.Join(t.TempDir(), "never.go")})
	requireCode(t, err, ErrorCodeNotOpen)
}

func TestReparseHistory(t *testing.T) {
	s := newTestServer(t, true)
	path := filepath.Join(t.TempDir(), "a.go")

	_, err := call(t, s.handleOpenDocument, map[string]interface{}{"path": path, "text": "package a\n"})
	require.NoError(t, err)
	_, err = call(t, s.handleEditDocument, map[string]interface{}{"path": path, "text": "package a\n\nvar V int\n"})
	require.NoError(t, err)

	var out map[string]interface{}
	require.Eventually(t, func() bool {
		out, err = call(t, s.handleReparseHistory, map[string]interface{}{"path": path})
		return err == nil && out["count"] == float64(2)
	}, 5*time.Second, 10*time.Millisecond)

	entries := out["reparses"].([]interface{})
	newest := entries[0].(map[string]interface{})
	assert.Equal(t, float64(2), newest["version"])
	assert.Equal(t, true, newest["success"])
	assert.Equal(t, float64(1), newest["symbol_count"])

	_, err = call(t, s.handleReparseHistory, map[string]interface{}{"path": path, "limit": float64(0)})
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestReparseHistory_NoJournal(t *testing.T) {
	s := newTestServer(t, false)

	_, err := call(t, s.handleReparseHistory, map[string]interface{}{"path": filepath.Join(t.TempDir(), "a.go")})
	requireCode(t, err, ErrorCodeNoJournal)
}

func TestLoadWorkspace(t *testing.T) {
	s := newTestServer(t, false)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a_test.go"), []byte("package a\n"), 0o644))

	out, err := call(t, s.handleLoadWorkspace, map[string]interface{}{"path": root, "include_tests": false})
	require.NoError(t, err)
	assert.Equal(t, true, out["loaded"])
	assert.Equal(t, float64(1), out["files_opened"])
	assert.Equal(t, []string{filepath.Join(root, "a.go")}, s.workspace.Documents())

	_, err = call(t, s.handleLoadWorkspace, map[string]interface{}{"path": t.TempDir()})
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = call(t, s.handleLoadWorkspace, map[string]interface{}{"path": "relative"})
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestCloseDocument(t *testing.T) {
	s := newTestServer(t, false)
	path := filepath.Join(t.TempDir(), "a.go")

	_, err := call(t, s.handleOpenDocument, map[string]interface{}{"path": path, "text": "package a\n"})
	require.NoError(t, err)

	out, err := call(t, s.handleCloseDocument, map[string]interface{}{"path": path})
	require.NoError(t, err)
	assert.Equal(t, true, out["closed"])

	_, err = call(t, s.handleCloseDocument, map[string]interface{}{"path": path})
	requireCode(t, err, ErrorCodeNotOpen)
}

func TestValidatePath(t *testing.T) {
	withGo := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(withGo, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(withGo, "pkg", "a.go"), []byte("package pkg\n"), 0o644))
	file := filepath.Join(withGo, "pkg", "a.go")

	tests := []struct {
		name string
		path string
		want error
	}{
		{"valid", withGo, nil},
		{"empty", "", ErrPathRequired},
		{"relative", "pkg", ErrPathNotAbsolute},
		{"missing", filepath.Join(withGo, "missing"), ErrPathNotFound},
		{"file", file, ErrNotDirectory},
		{"no go files", t.TempDir(), ErrNoGoFiles},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResult_Model(t *testing.T) {
	result := &ParseResult{
		Path:        "/src/app/server.go",
		Version:     3,
		PackageName: "app",
		Imports:     []Import{{Path: "context"}},
		Symbols: []Symbol{
			{Name: "Server", Kind: KindStruct},
			{Name: "addr", Kind: KindField, Parent: "Server"},
			{Name: "Run", Kind: KindMethod, Receiver: "Server"},
			{Name: "Close", Kind: KindMethod, Receiver: "Elsewhere"},
			{Name: "New", Kind: KindFunction},
			{Name: "DefaultAddr", Kind: KindConst},
		},
		Errors: []ParseError{{Line: 9, Message: "expected ';'"}},
	}

	m := result.Model()
	assert.Equal(t, "/src/app/server.go", m.Path)
	assert.Equal(t, uint64(3), m.Version)
	assert.Equal(t, "app", m.PackageName)
	assert.Len(t, m.Imports, 1)
	assert.Len(t, m.Diagnostics, 1)

	names := make([]string, 0, len(m.Declarations))
	for _, d := range m.Declarations {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"Server", "New", "DefaultAddr", "Close"}, names)

	server, ok := m.Lookup("Server")
	require.True(t, ok)
	require.Len(t, server.Children, 2)
	assert.Equal(t, "addr", server.Children[0].Name)
	assert.Equal(t, "Run", server.Children[1].Name)

	_, ok = m.Lookup("missing")
	assert.False(t, ok)
}

func TestParseResult_ModelDoesNotAlias(t *testing.T) {
	result := &ParseResult{Imports: []Import{{Path: "fmt"}}}
	m := result.Model()
	m.Imports[0].Path = "os"
	assert.Equal(t, "fmt", result.Imports[0].Path)
}

func TestParseResult_ValidateIdentity(t *testing.T) {
	tests := []struct {
		name    string
		result  ParseResult
		wantErr error
	}{
		{"valid", ParseResult{Path: "/a/b.go", Version: 1}, nil},
		{"missing path", ParseResult{Version: 1}, ErrMissingPath},
		{"relative path", ParseResult{Path: "b.go", Version: 1}, ErrRelativePath},
		{"zero version", ParseResult{Path: "/a/b.go"}, ErrInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.ValidateIdentity()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSymbol_Validate(t *testing.T) {
	base := Symbol{
		Name:    "Run",
		Kind:    KindMethod,
		Package: "app",
		Scope:   ScopeExported,
		Start:   Position{Line: 1, Column: 1},
		End:     Position{Line: 3, Column: 2},
	}

	missingReceiver := base
	assert.Error(t, missingReceiver.Validate())

	method := base
	method.Receiver = "Server"
	assert.NoError(t, method.Validate())
	assert.True(t, method.IsExported())

	field := base
	field.Kind = KindField
	assert.Error(t, field.Validate(), "fields need a parent")
	field.Parent = "Server"
	assert.NoError(t, field.Validate())

	inverted := method
	inverted.Start.Line = 5
	assert.Error(t, inverted.Validate())
}

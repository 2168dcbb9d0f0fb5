package types

import "time"

// ReparseMode records which path of the coordinator produced a result
type ReparseMode string

const (
	// ModeInline results were parsed on the editing goroutine
	ModeInline ReparseMode = "inline"
	// ModeBackground results were parsed by the debounce worker
	ModeBackground ReparseMode = "background"
)

// ParseResult represents the output of parsing one state of a Go source buffer.
//
// A published ParseResult is shared by reference between readers and must be
// treated as read-only.
type ParseResult struct {
	// Extracted data
	Symbols     []Symbol
	Imports     []Import
	PackageName string
	ModuleName  string // Module path of the enclosing go.mod, if any

	// Errors encountered during parsing
	Errors []ParseError

	// Identity of the text this result was computed from
	Path        string
	Version     uint64 // Buffer version the snapshot reflects
	LineCount   int
	ContentHash [32]byte

	// Provenance
	Engine   string
	Mode     ReparseMode
	ParsedAt time.Time
	Duration time.Duration
}

// Import represents an import statement in a Go file
type Import struct {
	Path  string // Import path (e.g., "github.com/pkg/errors")
	Alias string // Import alias if present (e.g., ".")
}

// ParseError represents an error that occurred during parsing
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
}

// Error implements the error interface
func (pe *ParseError) Error() string {
	return pe.Message
}

// HasErrors returns true if any parsing errors occurred
func (pr *ParseResult) HasErrors() bool {
	return len(pr.Errors) > 0
}

// AddError adds a parsing error to the result
func (pr *ParseResult) AddError(file string, line, col int, msg string) {
	pr.Errors = append(pr.Errors, ParseError{
		File:    file,
		Line:    line,
		Column:  col,
		Message: msg,
	})
}

// SymbolCount returns the number of extracted symbols, fields included
func (pr *ParseResult) SymbolCount() int {
	return len(pr.Symbols)
}

package types

import (
	"errors"
	"go/token"
)

// SymbolKind represents the type of Go language symbol
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindStruct    SymbolKind = "struct"
	KindInterface SymbolKind = "interface"
	KindType      SymbolKind = "type"
	KindConst     SymbolKind = "const"
	KindVar       SymbolKind = "var"
	KindField     SymbolKind = "field"
)

// SymbolScope represents the visibility scope of a symbol
type SymbolScope string

const (
	ScopeExported   SymbolScope = "exported"
	ScopeUnexported SymbolScope = "unexported"
)

// Position represents a 1-based location in source code
type Position struct {
	Line   int
	Column int
}

// Symbol represents a code symbol extracted from a parsed buffer
type Symbol struct {
	// Identification
	Name    string
	Kind    SymbolKind
	Package string

	// Content
	Signature  string // Function signature or type definition
	DocComment string

	// Scope
	Scope    SymbolScope
	Receiver string // For methods: receiver type name
	Parent   string // For fields: enclosing struct name

	// Location
	Start Position
	End   Position
}

// ValidateKind checks if the symbol kind is valid
func (s *Symbol) ValidateKind() error {
	switch s.Kind {
	case KindFunction, KindMethod, KindStruct, KindInterface, KindType, KindConst, KindVar, KindField:
		return nil
	default:
		return errors.New("invalid symbol kind")
	}
}

// ValidateScope checks if the symbol scope is valid
func (s *Symbol) ValidateScope() error {
	switch s.Scope {
	case ScopeExported, ScopeUnexported:
		return nil
	default:
		return errors.New("invalid symbol scope")
	}
}

// IsExported returns true if the symbol is exported (visible outside package)
func (s *Symbol) IsExported() bool {
	return s.Scope == ScopeExported && token.IsExported(s.Name)
}

// Validate performs comprehensive validation of the symbol
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return errors.New("symbol name is required")
	}

	if err := s.ValidateKind(); err != nil {
		return err
	}

	if err := s.ValidateScope(); err != nil {
		return err
	}

	if s.Package == "" {
		return errors.New("package name is required")
	}

	// Methods must have a receiver
	if s.Kind == KindMethod && s.Receiver == "" {
		return errors.New("methods must have a receiver type")
	}

	// Non-methods should not have a receiver
	if s.Kind != KindMethod && s.Receiver != "" {
		return errors.New("only methods can have a receiver type")
	}

	if s.Kind == KindField && s.Parent == "" {
		return errors.New("fields must have a parent type")
	}

	// Position validation
	if s.Start.Line <= 0 || s.End.Line <= 0 {
		return errors.New("invalid position: line numbers must be positive")
	}

	if s.Start.Line > s.End.Line {
		return errors.New("invalid position: start line must be before or equal to end line")
	}

	return nil
}
